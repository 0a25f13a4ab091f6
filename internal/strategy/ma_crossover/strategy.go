package ma_crossover

import (
	"context"
	"fmt"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/indicator"
	"github.com/newthinker/edgelab/internal/strategy"
)

// MACrossover emits a BUY on every golden cross and a SELL on every death
// cross of a fast and a slow moving average.
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	kind       indicator.Kind
}

// New creates a new MA Crossover strategy using simple moving averages
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		kind:       indicator.KindSMA,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("%s crossover (%d/%d)", m.kind, m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	if fast, ok := cfg.IntParam("fast_period"); ok {
		m.fastPeriod = fast
	}
	if slow, ok := cfg.IntParam("slow_period"); ok {
		m.slowPeriod = slow
	}
	if s, ok := cfg.StringParam("ma_type"); ok {
		kind, err := indicator.ParseKind(s)
		if err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
		m.kind = kind
	}
	if m.fastPeriod <= 0 || m.slowPeriod <= m.fastPeriod {
		return core.Errorf(core.ErrConfigInvalid,
			"ma_crossover needs 0 < fast_period < slow_period, got %d/%d", m.fastPeriod, m.slowPeriod)
	}
	return nil
}

func (m *MACrossover) Generate(ctx context.Context, w strategy.Window) ([]core.Signal, error) {
	var signals []core.Signal

	for _, ticker := range w.Prices.Tickers() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bars := w.Prices[ticker]
		if len(bars) <= m.slowPeriod {
			continue // Not enough data
		}

		closes := bars.Closes()
		fastMA := indicator.MovingAverage(m.kind, closes, m.fastPeriod)
		slowMA := indicator.MovingAverage(m.kind, closes, m.slowPeriod)

		for _, c := range indicator.Crossovers(fastMA, slowMA, m.fastPeriod, m.slowPeriod) {
			sig := core.Signal{
				Ticker:    ticker,
				Score:     m.calculateScore(c.Fast, c.Slow),
				Timestamp: bars[c.Index].Date,
			}
			if c.Up {
				sig.Direction = core.DirectionBuy
				sig.Reason = fmt.Sprintf("Golden Cross: MA%d (%.2f) crossed above MA%d (%.2f)",
					m.fastPeriod, c.Fast, m.slowPeriod, c.Slow)
			} else {
				sig.Direction = core.DirectionSell
				sig.Reason = fmt.Sprintf("Death Cross: MA%d (%.2f) crossed below MA%d (%.2f)",
					m.fastPeriod, c.Fast, m.slowPeriod, c.Slow)
			}
			signals = append(signals, sig)
		}
	}

	return signals, nil
}

// calculateScore returns a higher score for larger divergence, in 50-90
func (m *MACrossover) calculateScore(fast, slow float64) float64 {
	if slow == 0 {
		return 50
	}
	diff := (fast - slow) / slow
	if diff < 0 {
		diff = -diff
	}

	score := 50 + diff*1000
	if score > 90 {
		score = 90
	}
	return score
}
