package backtest

import (
	"context"
	"sort"

	"github.com/newthinker/edgelab/internal/core"
	"go.uber.org/zap"
)

// Simulator converts signals and price histories into dated trades
type Simulator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Simulator. The config must already be validated.
func New(cfg Config, logger ...*zap.Logger) *Simulator {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: l}
}

// Run simulates one trade per resolvable signal. Signals that cannot be
// simulated are counted in Result.Skipped and never fail the run.
func (s *Simulator) Run(ctx context.Context, signals []core.Signal, prices core.PriceMap) (*Result, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Signals: len(signals)}
	hp := s.cfg.HoldingPeriod

	for _, sig := range signals {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !sig.Direction.Tradable() {
			result.skip(SkipHold)
			continue
		}

		series, ok := prices[sig.Ticker]
		if !ok || len(series) == 0 {
			s.logger.Debug("ticker not in price map", zap.String("ticker", sig.Ticker))
			result.skip(SkipTickerMissing)
			continue
		}
		if len(series) < hp+1 {
			s.logger.Debug("series shorter than holding period",
				zap.String("ticker", sig.Ticker),
				zap.Int("bars", len(series)),
				zap.Int("holding_period", hp),
			)
			result.skip(SkipShortSeries)
			continue
		}

		entries := s.entries(sig, series)
		if len(entries) == 0 {
			result.skip(SkipUntimed)
			continue
		}
		for _, entry := range entries {
			if entry < 0 {
				result.skip(SkipEntryUnresolved)
				continue
			}
			if trade, reason := s.simulate(sig, series, entry); reason != "" {
				s.logger.Debug("signal skipped",
					zap.String("ticker", sig.Ticker),
					zap.String("reason", string(reason)),
				)
				result.skip(reason)
			} else {
				result.Trades = append(result.Trades, trade)
			}
		}
	}

	sortTrades(result.Trades)

	s.logger.Debug("simulation complete",
		zap.Int("signals", len(signals)),
		zap.Int("trades", len(result.Trades)),
		zap.Int("skipped", result.SkippedTotal()),
	)
	return result, nil
}

// entries resolves the entry bar indices of one signal. A -1 entry marks
// an unresolvable timestamp; an empty slice means the untimed policy
// rejected the signal.
func (s *Simulator) entries(sig core.Signal, series core.PriceSeries) []int {
	if sig.HasTimestamp() {
		return []int{series.IndexOnOrAfter(sig.Timestamp)}
	}

	last := len(series) - 1 - s.cfg.HoldingPeriod
	switch s.cfg.policy() {
	case UntimedEnumerate:
		step := s.cfg.stride()
		out := make([]int, 0, last/step+1)
		for i := 0; i <= last; i += step {
			out = append(out, i)
		}
		return out
	case UntimedRequire:
		return nil
	default:
		return []int{last}
	}
}

func (s *Simulator) simulate(sig core.Signal, series core.PriceSeries, entry int) (core.Trade, SkipReason) {
	exit := entry + s.cfg.HoldingPeriod
	if exit > len(series)-1 {
		exit = len(series) - 1
	}
	if exit <= entry {
		return core.Trade{}, SkipExitUnresolved
	}

	entryBar, exitBar := series[entry], series[exit]
	if entryBar.Close <= 0 || exitBar.Close <= 0 {
		return core.Trade{}, SkipInvalidPrice
	}

	var ret float64
	if sig.Direction == core.DirectionSell {
		ret = (entryBar.Close/exitBar.Close - 1) * 100
	} else {
		ret = (exitBar.Close/entryBar.Close - 1) * 100
	}

	return core.Trade{
		Ticker:      sig.Ticker,
		Direction:   sig.Direction,
		EntryDate:   entryBar.Date,
		EntryPrice:  entryBar.Close,
		ExitDate:    exitBar.Date,
		ExitPrice:   exitBar.Close,
		ReturnPct:   ret,
		HoldingDays: exit - entry,
		ModelScore:  sig.Score,
	}, ""
}

func sortTrades(trades []core.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.ExitDate.Equal(b.ExitDate) {
			return a.ExitDate.Before(b.ExitDate)
		}
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		return a.Ticker < b.Ticker
	})
}
