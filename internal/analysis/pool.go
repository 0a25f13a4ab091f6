package analysis

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when none is given.
const DefaultWorkers = 4

// Outcome pairs a request with its result or error
type Outcome struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
	Error  string  `json:"error,omitempty"` // Err as text
}

// Pool runs independent requests concurrently on a bounded number of
// workers. Requests may share the same price data.
type Pool struct {
	runner  *Runner
	workers int
	logger  *zap.Logger
}

// NewPool creates a Pool. workers <= 0 selects DefaultWorkers.
func NewPool(runner *Runner, workers int, logger ...*zap.Logger) *Pool {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{runner: runner, workers: workers, logger: l}
}

// RunAll runs every request and returns the outcomes in request order. A
// failed request does not stop the others; its error is kept in the
// outcome. The returned error is non-nil only when ctx is cancelled.
func (p *Pool) RunAll(ctx context.Context, reqs []Request) ([]Outcome, error) {
	outcomes := make([]Outcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, req := range reqs {
		outcomes[i] = Outcome{ID: req.ID, Name: req.Name}
		if ctx.Err() != nil {
			outcomes[i].Err = ctx.Err()
			continue
		}
		g.Go(func() error {
			res, err := p.runner.Run(ctx, req)
			outcomes[i].Result = res
			outcomes[i].Err = err
			if res != nil {
				outcomes[i].ID = res.RunID
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for i := range outcomes {
		if outcomes[i].Err != nil {
			outcomes[i].Error = outcomes[i].Err.Error()
			failed++
		}
	}
	p.logger.Info("batch complete",
		zap.Int("requests", len(reqs)),
		zap.Int("failed", failed),
		zap.Int("workers", p.workers),
	)
	return outcomes, ctx.Err()
}
