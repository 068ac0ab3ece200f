package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/oglauncher/internal/progress"
)

// Download GETs url into destinationPath, emitting {total, 0} before the first
// read and one event per chunk after that. A failure mid-stream leaves the
// partial file in place.
func (e *Engine) Download(ctx context.Context, correlationID, url, destinationPath string) error {
	emitter := progress.NewEmitter(e.sink, correlationID)
	fail := func(kind Kind, msg string, err error) error {
		log.Debug().Str("op", "transfer/download").Str("id", correlationID).Err(err).Msg(msg)
		return &Error{Kind: kind, Op: "download", URL: url, Path: destinationPath, Msg: msg, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(ConnectFailed, "error creating GET request", err)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := e.client.Do(req)
	if err != nil {
		return fail(ConnectFailed, "error executing GET request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(ConnectFailed, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}
	if resp.ContentLength < 0 {
		return fail(UnknownSize, "server didn't provide Content-Length header", nil)
	}
	total := uint64(resp.ContentLength)

	outFile, err := os.Create(destinationPath)
	if err != nil {
		return fail(FileCreateFailed, "error creating output file", err)
	}
	defer outFile.Close()

	log.Debug().Str("op", "transfer/download").Str("id", correlationID).Uint64("total", total).Msgf("Starting download of %s", url)
	emitter.Emit(total, 0)

	var current uint64
	buffer := make([]byte, e.bufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return fail(WriteFailed, "error writing to output file", writeErr)
			}
			// a body longer than its declared length never pushes current past total
			current += min(uint64(bytesRead), total-current)
			emitter.Emit(total, current)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fail(ReadFailed, "error reading response body", readErr)
		}
	}
	if err := outFile.Close(); err != nil {
		return fail(WriteFailed, "error closing output file", err)
	}
	if current < total {
		log.Warn().Str("op", "transfer/download").Str("id", correlationID).Msgf("Stream ended at %d of %d declared bytes", current, total)
	}
	log.Info().Str("op", "transfer/download").Str("id", correlationID).Msgf("Download complete for %s", destinationPath)
	return nil
}
