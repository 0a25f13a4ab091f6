package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return base.AddDate(0, 0, n)
}

// risingSeries grows 1% per bar from 100.
func risingSeries(n int) core.PriceSeries {
	ps := make(core.PriceSeries, n)
	for i := range ps {
		c := 100 * math.Pow(1.01, float64(i))
		ps[i] = core.Bar{Date: day(i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return ps
}

func TestSimulator_DirectionalCorrectness(t *testing.T) {
	prices := core.PriceMap{"AAA": risingSeries(30)}
	signals := []core.Signal{
		{Ticker: "AAA", Direction: core.DirectionBuy, Score: 80, Timestamp: day(0)},
		{Ticker: "AAA", Direction: core.DirectionSell, Score: 60, Timestamp: day(0)},
	}

	sim := New(Config{HoldingPeriod: 10})
	result, err := sim.Run(context.Background(), signals, prices)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	growth := math.Pow(1.01, 10)
	var buy, sell core.Trade
	for _, tr := range result.Trades {
		if tr.Direction == core.DirectionBuy {
			buy = tr
		} else {
			sell = tr
		}
	}

	assert.InDelta(t, (growth-1)*100, buy.ReturnPct, 1e-9)
	assert.InDelta(t, 10.4622, buy.ReturnPct, 1e-3)
	assert.InDelta(t, (1/growth-1)*100, sell.ReturnPct, 1e-9)
	assert.Less(t, sell.ReturnPct, 0.0)
	assert.Equal(t, 10, buy.HoldingDays)
	assert.Equal(t, 80.0, buy.ModelScore)
	assert.True(t, buy.EntryDate.Before(buy.ExitDate))
}

func TestSimulator_EntryOnOrAfterTimestamp(t *testing.T) {
	ps := core.PriceSeries{}
	for i := 0; i < 20; i += 2 { // bars on even days only
		ps = append(ps, core.Bar{Date: day(i), Close: float64(100 + i)})
	}
	prices := core.PriceMap{"AAA": ps}

	sim := New(Config{HoldingPeriod: 2})
	result, err := sim.Run(context.Background(), []core.Signal{
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(3)},
	}, prices)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	assert.True(t, tr.EntryDate.Equal(day(4)), "entry = %s", tr.EntryDate)
	assert.True(t, tr.ExitDate.Equal(day(8)), "exit = %s", tr.ExitDate)
}

func TestSimulator_ExitClampedToSeriesEnd(t *testing.T) {
	prices := core.PriceMap{"AAA": risingSeries(15)}
	sim := New(Config{HoldingPeriod: 10})

	result, err := sim.Run(context.Background(), []core.Signal{
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(10)},
	}, prices)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, 4, result.Trades[0].HoldingDays)
	assert.True(t, result.Trades[0].ExitDate.Equal(day(14)))
}

func TestSimulator_Skips(t *testing.T) {
	prices := core.PriceMap{
		"AAA":   risingSeries(30),
		"SHORT": risingSeries(5),
		"ZERO":  append(core.PriceSeries{{Date: day(0), Close: 0}}, risingSeries(30)[1:]...),
	}
	signals := []core.Signal{
		{Ticker: "AAA", Direction: core.DirectionHold, Timestamp: day(0)},
		{Ticker: "MISSING", Direction: core.DirectionBuy, Timestamp: day(0)},
		{Ticker: "SHORT", Direction: core.DirectionBuy, Timestamp: day(0)},
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(100)},
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(29)},
		{Ticker: "ZERO", Direction: core.DirectionBuy, Timestamp: day(0)},
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(1)},
	}

	sim := New(Config{HoldingPeriod: 10})
	result, err := sim.Run(context.Background(), signals, prices)
	require.NoError(t, err)

	assert.Len(t, result.Trades, 1)
	assert.Equal(t, 1, result.Skipped[SkipHold])
	assert.Equal(t, 1, result.Skipped[SkipTickerMissing])
	assert.Equal(t, 1, result.Skipped[SkipShortSeries])
	assert.Equal(t, 1, result.Skipped[SkipEntryUnresolved])
	assert.Equal(t, 1, result.Skipped[SkipExitUnresolved])
	assert.Equal(t, 1, result.Skipped[SkipInvalidPrice])
	assert.Equal(t, 6, result.SkippedTotal())
	assert.Equal(t, 7, result.Signals)
}

func TestSimulator_UntimedPolicies(t *testing.T) {
	prices := core.PriceMap{"AAA": risingSeries(31)}
	untimed := []core.Signal{{Ticker: "AAA", Direction: core.DirectionBuy, Score: 50}}

	tests := []struct {
		name       string
		cfg        Config
		wantTrades int
		wantEntry  time.Time
	}{
		{"latest", Config{HoldingPeriod: 10, UntimedPolicy: UntimedLatest}, 1, day(20)},
		{"default is latest", Config{HoldingPeriod: 10}, 1, day(20)},
		{"enumerate non-overlapping", Config{HoldingPeriod: 10, UntimedPolicy: UntimedEnumerate}, 3, day(0)},
		{"enumerate stride", Config{HoldingPeriod: 10, UntimedPolicy: UntimedEnumerate, UntimedStride: 5}, 5, day(0)},
		{"require", Config{HoldingPeriod: 10, UntimedPolicy: UntimedRequire}, 0, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := New(tt.cfg).Run(context.Background(), untimed, prices)
			require.NoError(t, err)
			require.Len(t, result.Trades, tt.wantTrades)
			if tt.wantTrades > 0 {
				assert.True(t, result.Trades[0].EntryDate.Equal(tt.wantEntry),
					"first entry = %s", result.Trades[0].EntryDate)
			} else {
				assert.Equal(t, 1, result.Skipped[SkipUntimed])
			}
		})
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	prices := core.PriceMap{"AAA": risingSeries(60), "BBB": risingSeries(60)}
	signals := []core.Signal{
		{Ticker: "BBB", Direction: core.DirectionBuy},
		{Ticker: "AAA", Direction: core.DirectionSell},
	}
	sim := New(Config{HoldingPeriod: 5, UntimedPolicy: UntimedEnumerate})

	first, err := sim.Run(context.Background(), signals, prices)
	require.NoError(t, err)
	second, err := sim.Run(context.Background(), signals, prices)
	require.NoError(t, err)

	assert.Equal(t, first.Trades, second.Trades)
}

func TestSimulator_TradesSortedByExit(t *testing.T) {
	prices := core.PriceMap{"AAA": risingSeries(40), "BBB": risingSeries(40)}
	signals := []core.Signal{
		{Ticker: "BBB", Direction: core.DirectionBuy, Timestamp: day(10)},
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(10)},
		{Ticker: "AAA", Direction: core.DirectionBuy, Timestamp: day(2)},
	}
	result, err := New(Config{HoldingPeriod: 5}).Run(context.Background(), signals, prices)
	require.NoError(t, err)
	require.Len(t, result.Trades, 3)

	assert.True(t, result.Trades[0].EntryDate.Equal(day(2)))
	assert.Equal(t, "AAA", result.Trades[1].Ticker)
	assert.Equal(t, "BBB", result.Trades[2].Ticker)
	assert.Equal(t, []string{"AAA", "BBB"}, result.Tickers())
}

func TestSimulator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero holding", Config{HoldingPeriod: 0}},
		{"negative holding", Config{HoldingPeriod: -3}},
		{"bad policy", Config{HoldingPeriod: 5, UntimedPolicy: "random"}},
		{"negative stride", Config{HoldingPeriod: 5, UntimedStride: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg).Run(context.Background(), nil, nil)
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Run() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestSimulator_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig()).Run(ctx, []core.Signal{{Ticker: "AAA", Direction: core.DirectionBuy}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
