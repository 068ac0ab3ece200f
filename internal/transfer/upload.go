package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/oglauncher/internal/progress"
)

// progressReader feeds an upload body and reports every chunk it hands to the
// transport.
type progressReader struct {
	r         io.Reader
	emitter   *progress.Emitter
	total     uint64
	current   uint64
	chunkSize int
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if len(buf) > p.chunkSize {
		buf = buf[:p.chunkSize]
	}
	n, err := p.r.Read(buf)
	if n > 0 {
		// clamped like downloads: a file that grows after Stat never reports past total
		p.current += min(uint64(n), p.total-p.current)
		p.emitter.Emit(p.total, p.current)
	}
	return n, err
}

// Upload PUTs sourcePath to url as a streamed body with Content-Length set to
// the file size. Header keys are sent exactly as supplied. The response body
// is returned on a 2xx status.
func (e *Engine) Upload(ctx context.Context, correlationID, url, sourcePath string, headers map[string]string) (string, error) {
	fail := func(kind Kind, msg string, err error) error {
		log.Debug().Str("op", "transfer/upload").Str("id", correlationID).Err(err).Msg(msg)
		return &Error{Kind: kind, Op: "upload", URL: url, Path: sourcePath, Msg: msg, Err: err}
	}

	file, err := os.Open(sourcePath)
	if err != nil {
		return "", fail(FileOpenFailed, "error opening source file", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", fail(FileOpenFailed, "error reading source file metadata", err)
	}
	if info.IsDir() {
		return "", fail(FileOpenFailed, "source is a directory", errors.New(sourcePath))
	}
	total := uint64(info.Size())

	body := &progressReader{
		r:         file,
		emitter:   progress.NewEmitter(e.sink, correlationID),
		total:     total,
		chunkSize: e.chunkSize,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", fail(UploadFailed, "error creating PUT request", err)
	}
	req.ContentLength = info.Size()
	if total == 0 {
		req.Body = http.NoBody
	}
	for key, value := range headers {
		req.Header[key] = []string{value}
	}

	log.Debug().Str("op", "transfer/upload").Str("id", correlationID).Uint64("total", total).Msgf("Starting upload of %s", sourcePath)
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fail(UploadFailed, "error executing PUT request", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fail(UploadFailed, "error reading response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fail(UploadFailed, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}
	log.Info().Str("op", "transfer/upload").Str("id", correlationID).Msgf("Upload complete for %s", sourcePath)
	return string(data), nil
}
