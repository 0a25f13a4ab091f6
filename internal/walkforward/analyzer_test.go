package walkforward

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return base.AddDate(0, 0, n)
}

func growth(n int, rate float64) core.PriceSeries {
	ps := make(core.PriceSeries, n)
	for i := range ps {
		ps[i] = core.Bar{Date: day(i), Close: 100 * math.Pow(1+rate, float64(i))}
	}
	return ps
}

type recordingStrategy struct {
	windows []strategy.Window
}

func (r *recordingStrategy) Name() string                   { return "recorder" }
func (r *recordingStrategy) Description() string            { return "records windows" }
func (r *recordingStrategy) Init(cfg strategy.Config) error { return nil }
func (r *recordingStrategy) Generate(ctx context.Context, w strategy.Window) ([]core.Signal, error) {
	r.windows = append(r.windows, w)
	var out []core.Signal
	for _, ticker := range w.Prices.Tickers() {
		out = append(out, core.Signal{
			Ticker:    ticker,
			Direction: core.DirectionBuy,
			Score:     60,
			Timestamp: w.Prices[ticker][0].Date,
		})
	}
	return out, nil
}

func TestAnalyzer_StaticSourceSteadyGrowth(t *testing.T) {
	prices := core.PriceMap{"AAA": growth(200, 0.01)}
	var signals []core.Signal
	for i := 0; i < 200; i += 5 {
		signals = append(signals, core.Signal{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(i)})
	}

	sim := backtest.New(backtest.Config{HoldingPeriod: 3})
	a := New(DefaultConfig(), sim, StaticSource{Set: signals})

	r, err := a.Run(context.Background(), prices)
	require.NoError(t, err)
	require.Len(t, r.Splits, 5)
	assert.True(t, r.FixedSignals)

	for _, s := range r.Splits {
		assert.Greater(t, s.InSample.Observations, 0)
		assert.Greater(t, s.OutSample.Observations, 0)
	}
	assert.Greater(t, r.InSampleAvgReturn, 0.0)
	assert.Greater(t, r.OutSampleAvgReturn, 0.0)
	assert.False(t, r.RobustnessHeuristic)
	assert.LessOrEqual(t, r.RobustnessScore, 1.0)
	assert.InDelta(t, r.InSampleAvgReturn-r.OutSampleAvgReturn, r.Degradation, 1e-12)
}

func TestAnalyzer_TimedSignalsConfinedToSubRange(t *testing.T) {
	prices := core.PriceMap{"AAA": growth(100, 0.01)}
	// one signal only, in the first split's in-sample range
	signals := []core.Signal{{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(2)}}

	sim := backtest.New(backtest.Config{HoldingPeriod: 3})
	r, err := New(DefaultConfig(), sim, StaticSource{Set: signals}).Run(context.Background(), prices)
	require.NoError(t, err)

	var in, out int
	for _, s := range r.Splits {
		in += s.InSample.Observations
		out += s.OutSample.Observations
	}
	assert.Equal(t, 1, in)
	assert.Equal(t, 0, out)
}

func TestAnalyzer_NegativeInSampleIsNeutral(t *testing.T) {
	prices := core.PriceMap{"AAA": growth(120, -0.01)}
	var signals []core.Signal
	for i := 0; i < 120; i += 4 {
		signals = append(signals, core.Signal{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(i)})
	}

	sim := backtest.New(backtest.Config{HoldingPeriod: 2})
	r, err := New(DefaultConfig(), sim, StaticSource{Set: signals}).Run(context.Background(), prices)
	require.NoError(t, err)

	assert.Less(t, r.InSampleAvgReturn, 0.0)
	assert.Equal(t, NeutralRobustness, r.RobustnessScore)
	assert.True(t, r.RobustnessHeuristic)
}

func TestAnalyzer_RobustnessClampedAtOne(t *testing.T) {
	r := &Result{Splits: []SplitResult{{}}}
	r.Splits[0].InSample.Observations = 1
	r.Splits[0].InSample.MeanReturn = 1
	r.Splits[0].OutSample.Observations = 1
	r.Splits[0].OutSample.MeanReturn = 3

	(&Analyzer{}).aggregate(r)
	assert.Equal(t, 1.0, r.RobustnessScore)
	assert.Equal(t, -2.0, r.Degradation)
}

func TestAnalyzer_StrategySourceRegeneratesPerSubRange(t *testing.T) {
	prices := core.PriceMap{"AAA": growth(100, 0.01)}
	rec := &recordingStrategy{}

	cfg := Config{Splits: 2, InSampleFraction: 0.5}
	sim := backtest.New(backtest.Config{HoldingPeriod: 2})
	r, err := New(cfg, sim, StrategySource{Strategy: rec}).Run(context.Background(), prices)
	require.NoError(t, err)

	assert.False(t, r.FixedSignals)
	require.Len(t, rec.windows, 4)
	for _, w := range rec.windows {
		for _, b := range w.Prices["AAA"] {
			assert.False(t, b.Date.Before(w.Start), "bar %s before window %s", b.Date, w.Start)
			assert.True(t, b.Date.Before(w.End), "bar %s not before window end %s", b.Date, w.End)
		}
	}
	for _, s := range r.Splits {
		assert.Equal(t, 1, s.InSample.Observations)
		assert.Equal(t, 1, s.OutSample.Observations)
	}
}

func TestAnalyzer_NoPrices(t *testing.T) {
	sim := backtest.New(backtest.DefaultConfig())
	r, err := New(DefaultConfig(), sim, StaticSource{}).Run(context.Background(), core.PriceMap{})
	require.NoError(t, err)
	assert.Empty(t, r.Splits)
	assert.Equal(t, NeutralRobustness, r.RobustnessScore)
}

func TestAnalyzer_InvalidConfig(t *testing.T) {
	sim := backtest.New(backtest.DefaultConfig())
	for _, cfg := range []Config{{Splits: 0, InSampleFraction: 0.7}, {Splits: 3, InSampleFraction: 1.2}} {
		_, err := New(cfg, sim, StaticSource{}).Run(context.Background(), nil)
		if !errors.Is(err, core.ErrConfigInvalid) {
			t.Errorf("Run(%+v) error = %v, want ErrConfigInvalid", cfg, err)
		}
	}
}
