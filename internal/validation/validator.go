// Package validation re-runs a backtest over distinct trailing windows of
// history to measure how stable the result is across samples.
package validation

import (
	"context"
	"time"

	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/performance"
	"github.com/newthinker/edgelab/internal/stats"
	"go.uber.org/zap"
)

// Config configures the window validator
type Config struct {
	Iterations int `mapstructure:"iterations" json:"iterations"`
	WindowBars int `mapstructure:"window_bars" json:"window_bars"`
	StepBars   int `mapstructure:"step_bars" json:"step_bars"`
}

// DefaultConfig returns the validator defaults.
func DefaultConfig() Config {
	return Config{Iterations: 10, WindowBars: 252, StepBars: 21}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "iterations must be positive, got %d", c.Iterations)
	}
	if c.WindowBars < 2 {
		return core.Errorf(core.ErrConfigInvalid, "window_bars must be >= 2, got %d", c.WindowBars)
	}
	if c.StepBars <= 0 {
		return core.Errorf(core.ErrConfigInvalid, "step_bars must be positive, got %d", c.StepBars)
	}
	return nil
}

// Window is the outcome of one historical window
type Window struct {
	Index   int                 `json:"index"`
	Start   time.Time           `json:"start"`
	End     time.Time           `json:"end"`
	Trades  int                 `json:"trades"`
	Metrics performance.Metrics `json:"metrics"`
}

// Result summarizes every window. Returns are percentages.
type Result struct {
	Windows         []Window `json:"windows"`
	MeanReturn      float64  `json:"mean_return"`
	StdReturn       float64  `json:"std_return"`
	ProfitableShare float64  `json:"profitable_share"`
}

// Validator runs the simulator over distinct windows
type Validator struct {
	cfg    Config
	sim    *backtest.Simulator
	logger *zap.Logger
}

// New creates a Validator.
func New(cfg Config, sim *backtest.Simulator, logger ...*zap.Logger) *Validator {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Validator{cfg: cfg, sim: sim, logger: l}
}

// Run evaluates up to Iterations windows of WindowBars bars on the union
// date axis. Window k ends k*StepBars bars before the last date; windows
// that would start before the first date are not generated.
func (v *Validator) Run(ctx context.Context, signals []core.Signal, prices core.PriceMap) (*Result, error) {
	if err := v.cfg.Validate(); err != nil {
		return nil, err
	}

	dates := prices.Dates()
	result := &Result{}
	var totals []float64

	for k := 0; k < v.cfg.Iterations; k++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		endIdx := len(dates) - 1 - k*v.cfg.StepBars
		startIdx := endIdx - v.cfg.WindowBars + 1
		if startIdx < 0 {
			break
		}

		start, last := dates[startIdx], dates[endIdx]
		end := last.Add(time.Nanosecond)
		if endIdx+1 < len(dates) {
			end = dates[endIdx+1]
		}

		sim, err := v.sim.Run(ctx, core.SignalsBetween(signals, start, end), prices.Restrict(start, end))
		if err != nil {
			return nil, err
		}
		m := performance.Calculate(performance.FromTrades(sim.Trades))

		result.Windows = append(result.Windows, Window{
			Index:   k,
			Start:   start,
			End:     last,
			Trades:  len(sim.Trades),
			Metrics: m,
		})
		totals = append(totals, m.TotalReturn)
	}

	if len(totals) > 0 {
		var profitable int
		for _, t := range totals {
			if t > 0 {
				profitable++
			}
		}
		result.MeanReturn, result.StdReturn = stats.MeanStdDev(totals)
		result.ProfitableShare = float64(profitable) / float64(len(totals))
	}

	v.logger.Debug("window validation complete",
		zap.Int("windows", len(result.Windows)),
		zap.Float64("mean_return", result.MeanReturn),
	)
	return result, nil
}
