package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/oglauncher/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Runner executes a single transfer; *transfer.Engine satisfies it.
type Runner interface {
	Do(ctx context.Context, req transfer.Request) (string, error)
}

// Reporter receives per-transfer lifecycle updates; *output.Manager satisfies it.
type Reporter interface {
	Register(id, label string)
	Complete(id, message string)
	ReportError(id string, err error)
}

// Result is the outcome of one request, in input order.
type Result struct {
	Request transfer.Request
	Body    string
	Err     error
}

// Run starts every request at once, one goroutine each, and waits for all of
// them. A failed transfer does not stop the others; the returned error only
// summarizes how many failed.
func Run(ctx context.Context, runner Runner, reporter Reporter, reqs []transfer.Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	for _, req := range reqs {
		reporter.Register(req.CorrelationID, label(req))
	}

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			body, err := runner.Do(ctx, req)
			results[i] = Result{Request: req, Body: body, Err: err}
			if err != nil {
				log.Debug().Str("op", "scheduler/run").Str("id", req.CorrelationID).Err(err).Msg("transfer failed")
				reporter.ReportError(req.CorrelationID, err)
				return nil
			}
			reporter.Complete(req.CorrelationID, completion(req))
			return nil
		})
	}
	g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d transfers failed", failed, len(reqs))
	}
	return results, nil
}

func label(req transfer.Request) string {
	if req.Direction == transfer.Upload {
		return fmt.Sprintf("%s -> %s", filepath.Base(req.LocalPath), req.RemoteURL)
	}
	return fmt.Sprintf("%s -> %s", req.RemoteURL, req.LocalPath)
}

func completion(req transfer.Request) string {
	if req.Direction == transfer.Upload {
		return fmt.Sprintf("Uploaded %s", req.LocalPath)
	}
	return fmt.Sprintf("Downloaded %s", req.LocalPath)
}
