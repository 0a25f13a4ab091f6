package analysis

import (
	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/montecarlo"
	"github.com/newthinker/edgelab/internal/portfolio"
	"github.com/newthinker/edgelab/internal/validation"
	"github.com/newthinker/edgelab/internal/walkforward"
)

// Stage names used for timings and metrics.
const (
	StageSimulate     = "simulate"
	StagePortfolio    = "portfolio"
	StageSignificance = "significance"
	StageWalkForward  = "walk_forward"
	StageMonteCarlo   = "monte_carlo"
	StageValidation   = "validation"
)

// Options selects the analysis stages and configures each one
type Options struct {
	Backtest    backtest.Config    `json:"backtest"`
	Portfolio   portfolio.Config   `json:"portfolio"`
	WalkForward walkforward.Config `json:"walk_forward"`
	MonteCarlo  montecarlo.Config  `json:"monte_carlo"`
	Validation  validation.Config  `json:"validation"`

	// Benchmark is the ticker paired with trade and curve returns.
	Benchmark string `json:"benchmark,omitempty"`

	RunPortfolio    bool `json:"run_portfolio"`
	RunSignificance bool `json:"run_significance"`
	RunWalkForward  bool `json:"run_walk_forward"`
	RunMonteCarlo   bool `json:"run_monte_carlo"`
	RunValidation   bool `json:"run_validation"`
}

// DefaultOptions enables every stage except the historical window
// validator.
func DefaultOptions() Options {
	return Options{
		Backtest:        backtest.DefaultConfig(),
		Portfolio:       portfolio.DefaultConfig(),
		WalkForward:     walkforward.DefaultConfig(),
		MonteCarlo:      montecarlo.DefaultConfig(),
		Validation:      validation.DefaultConfig(),
		RunPortfolio:    true,
		RunSignificance: true,
		RunWalkForward:  true,
		RunMonteCarlo:   true,
	}
}

// Validate checks the simulator configuration and the configuration of
// every enabled stage.
func (o Options) Validate() error {
	if err := o.Backtest.Validate(); err != nil {
		return err
	}
	if o.RunPortfolio {
		if err := o.Portfolio.Validate(); err != nil {
			return err
		}
	}
	if o.RunWalkForward {
		if err := o.WalkForward.Validate(); err != nil {
			return err
		}
	}
	if o.RunMonteCarlo {
		if err := o.MonteCarlo.Validate(); err != nil {
			return err
		}
	}
	if o.RunValidation {
		if err := o.Validation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Request is one analysis job. Prices are shared read-only and must not
// be modified while the request runs.
type Request struct {
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Signals  []core.Signal `json:"signals,omitempty"`
	Prices   core.PriceMap `json:"prices"`
	Strategy string        `json:"strategy,omitempty"`
	Options  Options       `json:"options"`
}
