// Package analysis runs the full edge validation pipeline over one set of
// signals and price histories.
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/metrics"
	"github.com/newthinker/edgelab/internal/montecarlo"
	"github.com/newthinker/edgelab/internal/performance"
	"github.com/newthinker/edgelab/internal/portfolio"
	"github.com/newthinker/edgelab/internal/significance"
	"github.com/newthinker/edgelab/internal/strategy"
	"github.com/newthinker/edgelab/internal/validation"
	"github.com/newthinker/edgelab/internal/walkforward"
	"go.uber.org/zap"
)

// PortfolioResult is the basket view of the signal set
type PortfolioResult struct {
	Holdings     []portfolio.Holding  `json:"holdings"`
	Equity       []core.Point         `json:"equity"`
	Drawdown     []core.Point         `json:"drawdown"`
	Metrics      performance.Metrics  `json:"metrics"`
	Significance *significance.Result `json:"significance,omitempty"`
}

// Result is the outcome of one analysis run
type Result struct {
	RunID        string                      `json:"run_id"`
	Name         string                      `json:"name,omitempty"`
	Strategy     string                      `json:"strategy,omitempty"`
	StartedAt    time.Time                   `json:"started_at"`
	CompletedAt  time.Time                   `json:"completed_at"`
	Timings      map[string]float64          `json:"timings_ms"`
	Options      Options                     `json:"options"`
	Signals      int                         `json:"signals"`
	Trades       []core.Trade                `json:"trades"`
	Skipped      map[backtest.SkipReason]int `json:"skipped,omitempty"`
	Metrics      performance.Metrics         `json:"metrics"`
	Significance *significance.Result        `json:"significance,omitempty"`
	Portfolio    *PortfolioResult            `json:"portfolio,omitempty"`
	WalkForward  *walkforward.Result         `json:"walk_forward,omitempty"`
	MonteCarlo   *montecarlo.Result          `json:"monte_carlo,omitempty"`
	Validation   *validation.Result          `json:"validation,omitempty"`
}

// Runner executes analysis requests. A Runner holds no per-run state and
// is safe for concurrent use.
type Runner struct {
	strategies *strategy.Registry
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewRunner creates a Runner. strategies and m may be nil.
func NewRunner(strategies *strategy.Registry, m *metrics.Registry, logger ...*zap.Logger) *Runner {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	if strategies == nil {
		strategies = strategy.NewRegistry(l)
	}
	return &Runner{strategies: strategies, metrics: m, logger: l}
}

// Run validates the request and executes every enabled stage. Per-signal
// problems are counted in Skipped; only configuration errors, invalid
// price series, strategy failures and cancellation fail the run.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res, err := r.run(ctx, req, started)
	status := "success"
	if err != nil {
		status = "failed"
	}
	if r.metrics != nil {
		r.metrics.RecordAnalysis(status, time.Since(started).Seconds())
	}
	if err != nil {
		r.logger.Error("analysis failed",
			zap.String("name", req.Name),
			zap.Error(err),
		)
		return nil, err
	}
	r.logger.Info("analysis complete",
		zap.String("run_id", res.RunID),
		zap.String("name", res.Name),
		zap.Int("signals", res.Signals),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("total_return", res.Metrics.TotalReturn),
		zap.Duration("duration", res.CompletedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request, started time.Time) (*Result, error) {
	opts := req.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := req.Prices.Validate(); err != nil {
		return nil, err
	}

	var strat strategy.Strategy
	if req.Strategy != "" {
		s, ok := r.strategies.Get(req.Strategy)
		if !ok {
			return nil, core.Errorf(core.ErrConfigInvalid, "unknown strategy %q", req.Strategy)
		}
		strat = s
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	res := &Result{
		RunID:     id,
		Name:      req.Name,
		Strategy:  req.Strategy,
		StartedAt: started,
		Timings:   make(map[string]float64),
		Options:   opts,
	}

	signals := req.Signals
	if strat != nil && len(signals) == 0 {
		generated, err := r.generate(ctx, req)
		if err != nil {
			return nil, err
		}
		signals = generated
	}
	res.Signals = len(signals)

	sim := backtest.New(opts.Backtest, r.logger)
	var trades *backtest.Result
	err := r.stage(res, StageSimulate, func() error {
		var err error
		trades, err = sim.Run(ctx, signals, req.Prices)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Trades = trades.Trades
	res.Skipped = trades.Skipped
	res.Metrics = performance.Calculate(performance.FromTrades(trades.Trades))
	r.recordTrades(trades)

	benchmark, hasBenchmark := req.Prices[opts.Benchmark]
	if opts.Benchmark != "" && !hasBenchmark {
		r.logger.Warn("benchmark ticker not in price data, comparison disabled",
			zap.String("benchmark", opts.Benchmark))
	}

	if opts.RunPortfolio {
		err := r.stage(res, StagePortfolio, func() error {
			curve, err := portfolio.New(opts.Portfolio, r.logger).Build(ctx, signals, req.Prices)
			if err != nil {
				return err
			}
			res.Portfolio = &PortfolioResult{
				Holdings: curve.Holdings,
				Equity:   curve.Equity,
				Drawdown: curve.Drawdown,
				Metrics:  performance.Calculate(curve.PerformanceInput()),
			}
			if opts.RunSignificance {
				in := significance.Input{Mode: performance.ModeCompound, Returns: curve.Returns}
				if hasBenchmark {
					in.Benchmark = curveBenchmarkReturns(curve, benchmark)
				}
				sig := significance.Test(in)
				res.Portfolio.Significance = &sig
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.RunSignificance {
		err := r.stage(res, StageSignificance, func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in := significance.Input{Mode: performance.ModeTrades, Returns: trades.Returns()}
			if hasBenchmark {
				in.Benchmark = tradeBenchmarkReturns(trades.Trades, benchmark)
			}
			sig := significance.Test(in)
			res.Significance = &sig
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.RunWalkForward {
		var source walkforward.SignalSource = walkforward.StaticSource{Set: signals}
		if strat != nil {
			source = walkforward.StrategySource{Strategy: strat}
		}
		err := r.stage(res, StageWalkForward, func() error {
			wf, err := walkforward.New(opts.WalkForward, sim, source, r.logger).Run(ctx, req.Prices)
			res.WalkForward = wf
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.RunMonteCarlo {
		err := r.stage(res, StageMonteCarlo, func() error {
			pool := montecarlo.PooledReturns(req.Prices, trades.Tickers())
			mc, err := montecarlo.New(opts.MonteCarlo, r.logger).Run(ctx, pool)
			res.MonteCarlo = mc
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.RunValidation {
		err := r.stage(res, StageValidation, func() error {
			v, err := validation.New(opts.Validation, sim, r.logger).Run(ctx, signals, req.Prices)
			res.Validation = v
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	res.CompletedAt = time.Now()
	return res, nil
}

// generate asks the request's strategy for signals over the whole history.
func (r *Runner) generate(ctx context.Context, req Request) ([]core.Signal, error) {
	start, end, ok := req.Prices.DateRange()
	if !ok {
		return nil, nil
	}
	w := strategy.Window{Start: start, End: end.Add(time.Nanosecond), Prices: req.Prices}
	return r.strategies.Generate(ctx, req.Strategy, w)
}

func (r *Runner) stage(res *Result, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	res.Timings[name] = float64(elapsed.Microseconds()) / 1000
	if r.metrics != nil {
		r.metrics.RecordStage(name, elapsed.Seconds())
	}
	return err
}

func (r *Runner) recordTrades(res *backtest.Result) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordTrades(len(res.Trades))
	for reason, n := range res.Skipped {
		r.metrics.RecordSkipped(string(reason), n)
	}
}
