// Package walkforward measures whether performance persists out of sample
// by re-running the simulator over partitioned sub-ranges of history.
package walkforward

import (
	"context"
	"time"

	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/performance"
	"github.com/newthinker/edgelab/internal/stats"
	"github.com/newthinker/edgelab/internal/strategy"
	"go.uber.org/zap"
)

// NeutralRobustness is reported when the in-sample average is not positive.
const NeutralRobustness = 0.5

// Config configures the analyzer
type Config struct {
	Splits           int     `mapstructure:"splits" json:"splits"`
	InSampleFraction float64 `mapstructure:"in_sample_fraction" json:"in_sample_fraction"`
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{Splits: 5, InSampleFraction: 0.7}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Splits < 1 {
		return core.Errorf(core.ErrConfigInvalid, "splits must be >= 1, got %d", c.Splits)
	}
	if !(c.InSampleFraction > 0 && c.InSampleFraction < 1) {
		return core.Errorf(core.ErrConfigInvalid, "in_sample_fraction must be in (0,1), got %v", c.InSampleFraction)
	}
	return nil
}

// SplitResult holds the metrics of one split
type SplitResult struct {
	Split
	InSample      performance.Metrics `json:"in_sample"`
	OutSample     performance.Metrics `json:"out_sample"`
	InSampleSkip  int                 `json:"in_sample_skipped"`
	OutSampleSkip int                 `json:"out_sample_skipped"`
}

// Result aggregates every split. Returns are percentages.
type Result struct {
	Splits              []SplitResult `json:"splits"`
	InSampleAvgReturn   float64       `json:"in_sample_avg_return"`
	OutSampleAvgReturn  float64       `json:"out_sample_avg_return"`
	Degradation         float64       `json:"degradation"`
	RobustnessScore     float64       `json:"robustness_score"`
	RobustnessHeuristic bool          `json:"robustness_heuristic"`
	FixedSignals        bool          `json:"fixed_signals"`
}

// Analyzer runs walk-forward analysis
type Analyzer struct {
	cfg    Config
	sim    *backtest.Simulator
	source SignalSource
	logger *zap.Logger
}

// New creates an Analyzer.
func New(cfg Config, sim *backtest.Simulator, source SignalSource, logger ...*zap.Logger) *Analyzer {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, sim: sim, source: source, logger: l}
}

// Run partitions the date range spanned by prices and evaluates every
// in-sample and out-of-sample sub-range independently.
func (a *Analyzer) Run(ctx context.Context, prices core.PriceMap) (*Result, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{FixedSignals: a.source.Fixed()}
	start, end, ok := prices.DateRange()
	if !ok {
		a.logger.Debug("walk-forward skipped, no price data")
		a.aggregate(result)
		return result, nil
	}

	splits, err := Partition(start, end, a.cfg.Splits, a.cfg.InSampleFraction)
	if err != nil {
		return nil, err
	}

	for _, sp := range splits {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sr := SplitResult{Split: sp}
		inStart, inEnd := sp.InSample()
		if sr.InSample, sr.InSampleSkip, err = a.evaluate(ctx, prices, inStart, inEnd); err != nil {
			return nil, err
		}
		outStart, outEnd := sp.OutSample()
		if sr.OutSample, sr.OutSampleSkip, err = a.evaluate(ctx, prices, outStart, outEnd); err != nil {
			return nil, err
		}
		result.Splits = append(result.Splits, sr)
	}

	a.aggregate(result)
	a.logger.Debug("walk-forward complete",
		zap.Int("splits", len(result.Splits)),
		zap.Float64("robustness", result.RobustnessScore),
	)
	return result, nil
}

func (a *Analyzer) evaluate(ctx context.Context, prices core.PriceMap, start, end time.Time) (performance.Metrics, int, error) {
	sub := prices.Restrict(start, end)
	signals, err := a.source.Signals(ctx, strategy.Window{Start: start, End: end, Prices: sub})
	if err != nil {
		return performance.Metrics{}, 0, core.WrapError(core.ErrAnalysisFailed, err)
	}
	sim, err := a.sim.Run(ctx, signals, sub)
	if err != nil {
		return performance.Metrics{}, 0, err
	}
	return performance.Calculate(performance.FromTrades(sim.Trades)), sim.SkippedTotal(), nil
}

func (a *Analyzer) aggregate(r *Result) {
	var ins, outs []float64
	for _, s := range r.Splits {
		if s.InSample.Observations > 0 {
			ins = append(ins, s.InSample.MeanReturn)
		}
		if s.OutSample.Observations > 0 {
			outs = append(outs, s.OutSample.MeanReturn)
		}
	}
	r.InSampleAvgReturn = stats.Mean(ins)
	r.OutSampleAvgReturn = stats.Mean(outs)
	r.Degradation = r.InSampleAvgReturn - r.OutSampleAvgReturn

	if r.InSampleAvgReturn > 0 {
		r.RobustnessScore = min(r.OutSampleAvgReturn/r.InSampleAvgReturn, 1)
	} else {
		r.RobustnessScore = NeutralRobustness
		r.RobustnessHeuristic = true
	}
}
