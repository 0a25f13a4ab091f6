package montecarlo

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_ConstantPoolIsDegenerate(t *testing.T) {
	pool := make([]float64, 50)
	for i := range pool {
		pool[i] = 0.1
	}
	cfg := DefaultConfig()
	cfg.Seed = 42

	for _, method := range []Method{MethodParametric, MethodBlockBootstrap} {
		t.Run(string(method), func(t *testing.T) {
			cfg.Method = method
			r, err := New(cfg).Run(context.Background(), pool)
			require.NoError(t, err)

			want := (math.Pow(1.001, float64(cfg.Horizon)) - 1) * 100
			for _, o := range r.Outcomes {
				assert.InDelta(t, want, o, 1e-9)
			}
			assert.Equal(t, r.VaR95, r.CVaR95)
			assert.Equal(t, r.VaR95, r.ExpectedReturn)
			assert.Equal(t, 1.0, r.ProbabilityOfProfit)
		})
	}
}

func TestSimulator_EmptyPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 1
	r, err := New(cfg).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.VaR95)
	assert.Equal(t, 0.0, r.CVaR95)
	assert.Equal(t, 0.0, r.ExpectedReturn)
	assert.Equal(t, 0.0, r.ProbabilityOfProfit)
	assert.Equal(t, Percentiles{}, r.Percentiles)
	for _, o := range r.Outcomes {
		assert.Equal(t, 0.0, o)
	}
}

func TestSimulator_SeedReproducible(t *testing.T) {
	pool := []float64{1.5, -0.7, 0.3, 2.1, -1.9, 0.4, -0.2}
	cfg := DefaultConfig()
	cfg.Simulations = 200
	cfg.Seed = 7

	for _, method := range []Method{MethodParametric, MethodBlockBootstrap} {
		cfg.Method = method
		a, err := New(cfg).Run(context.Background(), pool)
		require.NoError(t, err)
		b, err := New(cfg).Run(context.Background(), pool)
		require.NoError(t, err)

		assert.Equal(t, a.Outcomes, b.Outcomes, "method %s", method)
		assert.Equal(t, a.Percentiles, b.Percentiles, "method %s", method)
		assert.NotEqual(t, a.RunID, b.RunID)
	}
}

func TestSimulator_ConcurrentRunsIndependent(t *testing.T) {
	pool := []float64{1, -1, 2, -2, 0.5}
	cfg := DefaultConfig()
	cfg.Simulations = 100
	cfg.Seed = 99

	want, err := New(cfg).Run(context.Background(), pool)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = New(cfg).Run(context.Background(), pool)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, want.Outcomes, r.Outcomes)
	}
}

func TestSimulator_DistributionShape(t *testing.T) {
	pool := []float64{1, -1, 0.5, -0.5, 0.2, -0.2, 0.8, -0.6}
	cfg := DefaultConfig()
	cfg.Seed = 3

	r, err := New(cfg).Run(context.Background(), pool)
	require.NoError(t, err)

	p := r.Percentiles
	assert.LessOrEqual(t, p.P5, p.P25)
	assert.LessOrEqual(t, p.P25, p.P50)
	assert.LessOrEqual(t, p.P50, p.P75)
	assert.LessOrEqual(t, p.P75, p.P95)
	assert.Equal(t, p.P5, r.VaR95)
	assert.LessOrEqual(t, r.CVaR95, r.VaR95)
	assert.GreaterOrEqual(t, r.ProbabilityOfProfit, 0.0)
	assert.LessOrEqual(t, r.ProbabilityOfProfit, 1.0)
	assert.Len(t, r.Outcomes, cfg.SampleSize)
	assert.IsNonDecreasing(t, r.Outcomes)
	assert.Equal(t, len(pool), r.PoolSize)
}

func TestBlockBootstrap_PreservesBlocks(t *testing.T) {
	pool := []float64{1, 2, 3, 4, 5}
	b := BlockBootstrap{Pool: pool, BlockSize: 3}
	dst := make([]float64, 9)
	b.Path(rand.New(rand.NewSource(5)), dst)

	for i := 0; i < len(dst); i += 3 {
		for j := 1; j < 3; j++ {
			prev, cur := dst[i+j-1], dst[i+j]
			assert.Equal(t, math.Mod(prev, 5)+1, cur, "block %d not contiguous: %v", i/3, dst)
		}
	}
}

func TestFitParametric(t *testing.T) {
	p := FitParametric([]float64{0.1, 0.1, 0.1})
	assert.Equal(t, 0.1, p.Mean)
	assert.Equal(t, 0.0, p.Std)

	p = FitParametric([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, 3, p.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), p.Std, 1e-12)
}

func TestDownsample(t *testing.T) {
	sorted := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, []float64{0, 5, 10}, downsample(sorted, 3))
	assert.Equal(t, sorted, downsample(sorted, 20))
	assert.Len(t, downsample(sorted, 0), len(sorted))
}

func TestPooledReturns(t *testing.T) {
	d := func(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }
	prices := core.PriceMap{
		"AAA": {{Date: d(1), Close: 100}, {Date: d(2), Close: 110}},
		"BBB": {{Date: d(1), Close: 50}, {Date: d(2), Close: 45}, {Date: d(3), Close: 45}},
	}
	pool := PooledReturns(prices, []string{"AAA", "BBB", "AAA", "MISSING"})

	require.Len(t, pool, 3)
	assert.InDelta(t, 10, pool[0], 1e-9)
	assert.InDelta(t, -10, pool[1], 1e-9)
	assert.InDelta(t, 0, pool[2], 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero simulations", func(c *Config) { c.Simulations = 0 }},
		{"zero horizon", func(c *Config) { c.Horizon = 0 }},
		{"bad method", func(c *Config) { c.Method = "garch" }},
		{"zero block", func(c *Config) { c.Method = MethodBlockBootstrap; c.BlockSize = 0 }},
		{"negative sample", func(c *Config) { c.SampleSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg).Run(context.Background(), []float64{1})
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Run() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestSimulator_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultConfig()).Run(ctx, []float64{1, 2})
	assert.ErrorIs(t, err, context.Canceled)
}
