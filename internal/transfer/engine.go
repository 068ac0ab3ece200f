package transfer

import (
	"context"
	"fmt"

	"github.com/tanq16/oglauncher/internal/progress"
	"github.com/tanq16/oglauncher/internal/utils"
)

type Direction int

const (
	Download Direction = iota + 1
	Upload
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Request describes one logical transfer. Headers only apply to uploads.
type Request struct {
	CorrelationID string
	Direction     Direction
	RemoteURL     string
	LocalPath     string
	Headers       map[string]string
}

// Engine streams bytes between HTTP endpoints and local files. Calls on
// distinct correlation ids may run concurrently; each uses its own file
// handle and request.
type Engine struct {
	client     utils.HTTPDoer
	sink       progress.Sink
	bufferSize int
	chunkSize  int
}

type Option func(*Engine)

// WithBufferSize caps how many bytes a single response-body read may return.
func WithBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithChunkSize caps how many bytes are read from a local file per upload chunk.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

func NewEngine(client utils.HTTPDoer, sink progress.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = progress.Discard
	}
	e := &Engine{
		client:     client,
		sink:       sink,
		bufferSize: utils.DownloadBufferSize,
		chunkSize:  utils.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs req and returns the upload response body (empty for downloads).
func (e *Engine) Do(ctx context.Context, req Request) (string, error) {
	switch req.Direction {
	case Download:
		return "", e.Download(ctx, req.CorrelationID, req.RemoteURL, req.LocalPath)
	case Upload:
		return e.Upload(ctx, req.CorrelationID, req.RemoteURL, req.LocalPath, req.Headers)
	default:
		return "", fmt.Errorf("unsupported transfer direction: %s", req.Direction)
	}
}
