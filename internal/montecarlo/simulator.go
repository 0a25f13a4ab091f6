// Package montecarlo projects the distribution of terminal returns by
// resampling pooled historical per-bar returns.
package montecarlo

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/stats"
	"go.uber.org/zap"
)

// Percentiles is the terminal return ladder in percent
type Percentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// Result holds the simulated terminal return distribution. Returns are
// percentages; ProbabilityOfProfit is a fraction.
type Result struct {
	RunID               string      `json:"run_id"`
	Method              Method      `json:"method"`
	Simulations         int         `json:"simulations"`
	Horizon             int         `json:"horizon"`
	Seed                int64       `json:"seed"`
	PoolSize            int         `json:"pool_size"`
	PoolMean            float64     `json:"pool_mean"`
	PoolStd             float64     `json:"pool_std"`
	Percentiles         Percentiles `json:"percentiles"`
	VaR95               float64     `json:"var_95"`
	CVaR95              float64     `json:"cvar_95"`
	ProbabilityOfProfit float64     `json:"probability_of_profit"`
	ExpectedReturn      float64     `json:"expected_return"`
	Outcomes            []float64   `json:"outcomes"`
}

// Simulator runs Monte Carlo projections
type Simulator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Simulator.
func New(cfg Config, logger ...*zap.Logger) *Simulator {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: l}
}

// Run simulates cfg.Simulations paths of cfg.Horizon bars from the pooled
// percentage returns. Each run owns its random source, so concurrent runs
// are independent and a non-zero seed reproduces the same result.
func (s *Simulator) Run(ctx context.Context, pool []float64) (*Result, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	sampler := NewSampler(s.cfg, pool)
	outcomes := make([]float64, s.cfg.Simulations)
	path := make([]float64, s.cfg.Horizon)

	if len(pool) > 0 {
		for i := range outcomes {
			if i%64 == 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
				}
			}
			sampler.Path(rng, path)
			outcomes[i] = terminal(path)
		}
	}

	poolMean, poolStd := stats.MeanStdDev(pool)
	result := summarize(outcomes, s.cfg.SampleSize)
	result.RunID = uuid.New().String()
	result.Method = sampler.Method()
	result.Simulations = s.cfg.Simulations
	result.Horizon = s.cfg.Horizon
	result.Seed = seed
	result.PoolSize = len(pool)
	result.PoolMean = poolMean
	result.PoolStd = poolStd

	s.logger.Debug("monte carlo complete",
		zap.String("run_id", result.RunID),
		zap.String("method", string(result.Method)),
		zap.Int("pool", len(pool)),
		zap.Float64("var_95", result.VaR95),
	)
	return result, nil
}

// terminal compounds percentage returns into one terminal percentage.
func terminal(path []float64) float64 {
	c := 1.0
	for _, r := range path {
		c *= 1 + r/100
	}
	return (c - 1) * 100
}

func summarize(outcomes []float64, sampleSize int) *Result {
	sorted := stats.Sorted(outcomes)
	r := &Result{
		Percentiles: Percentiles{
			P5:  stats.Percentile(sorted, 5),
			P25: stats.Percentile(sorted, 25),
			P50: stats.Percentile(sorted, 50),
			P75: stats.Percentile(sorted, 75),
			P95: stats.Percentile(sorted, 95),
		},
		Outcomes: downsample(sorted, sampleSize),
	}
	if len(sorted) == 0 {
		return r
	}

	var profitable int
	for _, v := range sorted {
		if v > 0 {
			profitable++
		}
	}
	r.ProbabilityOfProfit = float64(profitable) / float64(len(sorted))
	r.VaR95 = r.Percentiles.P5

	if sorted[0] == sorted[len(sorted)-1] {
		r.CVaR95 = sorted[0]
		r.ExpectedReturn = sorted[0]
		return r
	}

	var tail []float64
	for _, v := range sorted {
		if v > r.VaR95 {
			break
		}
		tail = append(tail, v)
	}
	r.CVaR95 = stats.Mean(tail)
	r.ExpectedReturn = stats.Mean(sorted)
	return r
}

// downsample picks k evenly spaced points of a sorted sample, keeping both
// extremes.
func downsample(sorted []float64, k int) []float64 {
	if k <= 0 || len(sorted) <= k {
		out := make([]float64, len(sorted))
		copy(out, sorted)
		return out
	}
	if k == 1 {
		return []float64{sorted[len(sorted)/2]}
	}
	out := make([]float64, k)
	last := len(sorted) - 1
	for i := range out {
		out[i] = sorted[i*last/(k-1)]
	}
	return out
}

// PooledReturns flattens the per-bar percentage returns of the given
// tickers into one sample. Unknown tickers and duplicates are ignored.
func PooledReturns(prices core.PriceMap, tickers []string) []float64 {
	seen := make(map[string]bool, len(tickers))
	var pool []float64
	for _, t := range tickers {
		if seen[t] {
			continue
		}
		seen[t] = true
		for _, r := range prices[t].Returns() {
			pool = append(pool, r*100)
		}
	}
	return pool
}
