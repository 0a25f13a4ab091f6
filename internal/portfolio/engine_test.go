package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/performance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func seriesFrom(start int, closes ...float64) core.PriceSeries {
	ps := make(core.PriceSeries, len(closes))
	for i, c := range closes {
		ps[i] = core.Bar{Date: day(start + i), Close: c}
	}
	return ps
}

func buy(ticker string, score float64) core.Signal {
	return core.Signal{Ticker: ticker, Direction: core.DirectionBuy, Score: score}
}

func TestEngine_EqualWeightBuyAndHold(t *testing.T) {
	prices := core.PriceMap{
		"AAA": seriesFrom(0, 100, 110, 120),
		"BBB": seriesFrom(0, 50, 50, 25),
	}
	cfg := DefaultConfig()
	cfg.InitialCapital = 1000

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("AAA", 80), buy("BBB", 60)}, prices)
	require.NoError(t, err)

	require.Len(t, curve.Equity, 3)
	assert.InDelta(t, 1000, curve.Equity[0].Value, 1e-9)
	assert.InDelta(t, 500*1.1+500, curve.Equity[1].Value, 1e-9)
	assert.InDelta(t, 500*1.2+250, curve.Equity[2].Value, 1e-9)

	require.Len(t, curve.Returns, 2)
	assert.InDelta(t, 0.05, curve.Returns[0], 1e-12)
	assert.True(t, curve.Dates[0].Equal(day(1)))

	assert.InDelta(t, 0.0, curve.Drawdown[1].Value, 1e-12)
	assert.InDelta(t, 850.0/1050-1, curve.Drawdown[2].Value, 1e-12)
}

func TestEngine_ScoreWeighted(t *testing.T) {
	prices := core.PriceMap{
		"AAA": seriesFrom(0, 100, 200),
		"BBB": seriesFrom(0, 100, 100),
	}
	cfg := DefaultConfig()
	cfg.Sizing = SizingScoreWeighted
	cfg.InitialCapital = 100

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("AAA", 75), buy("BBB", 25)}, prices)
	require.NoError(t, err)

	require.Len(t, curve.Holdings, 2)
	assert.Equal(t, "AAA", curve.Holdings[0].Ticker)
	assert.InDelta(t, 0.75, curve.Holdings[0].Weight, 1e-12)
	assert.InDelta(t, 0.25, curve.Holdings[1].Weight, 1e-12)
	assert.InDelta(t, 175, curve.Equity[1].Value, 1e-9)
}

func TestEngine_ScoreWeightedZeroScoresFallsBackToEqual(t *testing.T) {
	prices := core.PriceMap{"AAA": seriesFrom(0, 1, 2), "BBB": seriesFrom(0, 1, 2)}
	cfg := DefaultConfig()
	cfg.Sizing = SizingScoreWeighted

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("AAA", 0), buy("BBB", 0)}, prices)
	require.NoError(t, err)
	for _, h := range curve.Holdings {
		assert.InDelta(t, 0.5, h.Weight, 1e-12)
	}
}

func TestEngine_SelectionRules(t *testing.T) {
	prices := core.PriceMap{
		"AAA": seriesFrom(0, 1, 1),
		"BBB": seriesFrom(0, 1, 1),
		"CCC": seriesFrom(0, 1, 1),
		"DDD": seriesFrom(0, 1, 1),
	}
	signals := []core.Signal{
		buy("AAA", 10),
		buy("AAA", 90), // highest score per ticker wins
		buy("BBB", 50),
		buy("CCC", 50),
		{Ticker: "DDD", Direction: core.DirectionSell, Score: 99},
	}
	cfg := DefaultConfig()
	cfg.MaxPositions = 2

	curve, err := New(cfg).Build(context.Background(), signals, prices)
	require.NoError(t, err)

	require.Len(t, curve.Holdings, 2)
	assert.Equal(t, "AAA", curve.Holdings[0].Ticker)
	assert.Equal(t, 90.0, curve.Holdings[0].Score)
	assert.Equal(t, "BBB", curve.Holdings[1].Ticker, "ticker breaks score ties")
}

func TestEngine_SellOnlySignalsAreFlat(t *testing.T) {
	prices := core.PriceMap{"AAA": seriesFrom(0, 1, 1)}
	signals := []core.Signal{{Ticker: "AAA", Direction: core.DirectionSell, Score: 90}}

	curve, err := New(DefaultConfig()).Build(context.Background(), signals, prices)
	require.NoError(t, err)
	assert.Empty(t, curve.Holdings)
}

func TestEngine_LateListingHeldAsCash(t *testing.T) {
	prices := core.PriceMap{
		"AAA": seriesFrom(0, 100, 100, 100),
		"NEW": seriesFrom(1, 10, 20),
	}
	cfg := DefaultConfig()
	cfg.InitialCapital = 100

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("AAA", 1), buy("NEW", 1)}, prices)
	require.NoError(t, err)

	assert.InDelta(t, 100, curve.Equity[0].Value, 1e-9)
	assert.InDelta(t, 100, curve.Equity[1].Value, 1e-9)
	assert.InDelta(t, 150, curve.Equity[2].Value, 1e-9)
}

func TestEngine_ForwardFillsGaps(t *testing.T) {
	prices := core.PriceMap{
		"AAA": seriesFrom(0, 100, 120, 130),
		"BBB": core.PriceSeries{{Date: day(0), Close: 10}, {Date: day(2), Close: 20}},
	}
	cfg := DefaultConfig()
	cfg.InitialCapital = 100

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("AAA", 1), buy("BBB", 1)}, prices)
	require.NoError(t, err)

	assert.InDelta(t, 50*1.2+50, curve.Equity[1].Value, 1e-9)
	assert.InDelta(t, 50*1.3+100, curve.Equity[2].Value, 1e-9)
}

func TestEngine_DateWindow(t *testing.T) {
	prices := core.PriceMap{
		"AAA": seriesFrom(0, 100, 50, 200, 400, 800),
		"OUT": seriesFrom(10, 1, 2),
	}
	cfg := DefaultConfig()
	cfg.InitialCapital = 100
	cfg.Start = day(1)
	cfg.End = day(3)

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("AAA", 1), buy("OUT", 2)}, prices)
	require.NoError(t, err)

	require.Len(t, curve.Holdings, 1, "ticker without bars in window is dropped")
	require.Len(t, curve.Equity, 3)
	assert.True(t, curve.Equity[0].Date.Equal(day(1)))
	assert.InDelta(t, 800, curve.Equity[2].Value, 1e-9)
}

func TestEngine_NoEligibleTickersIsFlat(t *testing.T) {
	prices := core.PriceMap{"AAA": seriesFrom(0, 1, 2, 3)}
	cfg := DefaultConfig()

	curve, err := New(cfg).Build(context.Background(), []core.Signal{buy("MISSING", 90)}, prices)
	require.NoError(t, err)

	assert.Empty(t, curve.Holdings)
	require.Len(t, curve.Equity, 3)
	for _, p := range curve.Equity {
		assert.Equal(t, cfg.InitialCapital, p.Value)
	}
	for _, r := range curve.Returns {
		assert.Equal(t, 0.0, r)
	}

	m := performance.Calculate(curve.PerformanceInput())
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.CalmarRatio)
}

func TestEngine_PerformanceInput(t *testing.T) {
	prices := core.PriceMap{"AAA": seriesFrom(0, 100, 110, 99)}
	curve, err := New(DefaultConfig()).Build(context.Background(), []core.Signal{buy("AAA", 1)}, prices)
	require.NoError(t, err)

	in := curve.PerformanceInput()
	assert.Equal(t, performance.ModeCompound, in.Mode)
	assert.True(t, in.Start.Equal(day(0)))
	assert.True(t, in.End.Equal(day(2)))

	m := performance.Calculate(in)
	assert.InDelta(t, -1.0, m.TotalReturn, 1e-9)
	assert.InDelta(t, -10.0, m.MaxDrawdown, 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero positions", func(c *Config) { c.MaxPositions = 0 }},
		{"bad sizing", func(c *Config) { c.Sizing = "kelly" }},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"end before start", func(c *Config) { c.Start = day(5); c.End = day(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg).Build(context.Background(), nil, nil)
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Build() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}
