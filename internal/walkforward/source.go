package walkforward

import (
	"context"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/strategy"
)

// SignalSource supplies the signals evaluated inside one sub-range
type SignalSource interface {
	Signals(ctx context.Context, w strategy.Window) ([]core.Signal, error)
	// Fixed reports whether the same signal set is reused for every
	// sub-range instead of being regenerated from its own data.
	Fixed() bool
}

// StaticSource reuses one fixed signal set for every sub-range. Timed
// signals are eligible only inside the sub-range; untimed signals are
// placed by the simulator's untimed policy. Out-of-sample results are
// therefore weaker evidence than true walk-forward validation.
type StaticSource struct {
	Set []core.Signal
}

func (s StaticSource) Signals(_ context.Context, w strategy.Window) ([]core.Signal, error) {
	return core.SignalsBetween(s.Set, w.Start, w.End), nil
}

func (s StaticSource) Fixed() bool { return true }

// StrategySource regenerates signals from the sub-range's own bars.
type StrategySource struct {
	Strategy strategy.Strategy
}

func (s StrategySource) Signals(ctx context.Context, w strategy.Window) ([]core.Signal, error) {
	signals, err := s.Strategy.Generate(ctx, w)
	if err != nil {
		return nil, err
	}
	for i := range signals {
		signals[i].Strategy = s.Strategy.Name()
	}
	return signals, nil
}

func (s StrategySource) Fixed() bool { return false }
