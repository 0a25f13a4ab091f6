// Package portfolio builds a weighted buy-and-hold equity curve from a
// basket of signals.
package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/performance"
	"go.uber.org/zap"
)

// Holding is one basket constituent
type Holding struct {
	Ticker     string    `json:"ticker"`
	Weight     float64   `json:"weight"`
	Score      float64   `json:"score"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
}

// Curve is the basket equity curve. Returns[i] is the fractional return
// from Equity[i] to Equity[i+1] and Dates[i] equals Equity[i+1].Date.
type Curve struct {
	Holdings []Holding    `json:"holdings"`
	Equity   []core.Point `json:"equity"`
	Drawdown []core.Point `json:"drawdown"`
	Returns  []float64    `json:"-"`
	Dates    []time.Time  `json:"-"`
}

// PerformanceInput returns the compound-mode input of the curve.
func (c *Curve) PerformanceInput() performance.Input {
	in := performance.FromCurve(c.Dates, c.Returns)
	if len(c.Equity) > 0 {
		in.Start = c.Equity[0].Date
	}
	return in
}

// Engine builds basket equity curves
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Engine.
func New(cfg Config, logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: l}
}

type sleeve struct {
	Holding
	bars core.PriceSeries
}

// Build selects the top-K BUY signals, fixes their weights at entry and
// values the basket on every date in the window without rebalancing.
func (e *Engine) Build(ctx context.Context, signals []core.Signal, prices core.PriceMap) (*Curve, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	var sleeves []sleeve
	for _, sig := range selectTop(signals, e.cfg.MaxPositions) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bars := e.cfg.window(prices[sig.Ticker])
		if len(bars) == 0 || bars[0].Close <= 0 {
			e.logger.Debug("ticker excluded from basket", zap.String("ticker", sig.Ticker))
			continue
		}
		sleeves = append(sleeves, sleeve{
			Holding: Holding{
				Ticker:     sig.Ticker,
				Score:      sig.Score,
				EntryDate:  bars[0].Date,
				EntryPrice: bars[0].Close,
			},
			bars: bars,
		})
	}

	e.assignWeights(sleeves)

	var dates []time.Time
	if len(sleeves) == 0 {
		dates = e.flatAxis(prices)
	} else {
		held := make(core.PriceMap, len(sleeves))
		for _, s := range sleeves {
			held[s.Ticker] = s.bars
		}
		dates = held.Dates()
	}

	curve := &Curve{Holdings: make([]Holding, len(sleeves))}
	for i, s := range sleeves {
		curve.Holdings[i] = s.Holding
	}

	values := e.value(sleeves, dates)
	curve.Equity = make([]core.Point, len(dates))
	curve.Drawdown = make([]core.Point, len(dates))
	peak := 0.0
	for i, d := range dates {
		v := values[i]
		if v > peak {
			peak = v
		}
		curve.Equity[i] = core.Point{Date: d, Value: v}
		dd := 0.0
		if peak > 0 {
			dd = (v - peak) / peak
		}
		curve.Drawdown[i] = core.Point{Date: d, Value: dd}
	}
	for i := 1; i < len(values); i++ {
		r := 0.0
		if values[i-1] > 0 {
			r = values[i]/values[i-1] - 1
		}
		curve.Returns = append(curve.Returns, r)
		curve.Dates = append(curve.Dates, dates[i])
	}

	e.logger.Debug("basket built",
		zap.Int("holdings", len(curve.Holdings)),
		zap.Int("dates", len(dates)),
	)
	return curve, nil
}

// value computes V_t = C * sum(w_i * P_i,t / P_i,0) with forward-filled
// prices. A sleeve is held as cash before its first bar.
func (e *Engine) value(sleeves []sleeve, dates []time.Time) []float64 {
	capital := e.cfg.InitialCapital
	values := make([]float64, len(dates))
	if len(sleeves) == 0 {
		for i := range values {
			values[i] = capital
		}
		return values
	}

	cursor := make([]int, len(sleeves))
	for i := range cursor {
		cursor[i] = -1
	}
	for di, d := range dates {
		var v float64
		for si, s := range sleeves {
			for cursor[si]+1 < len(s.bars) && !s.bars[cursor[si]+1].Date.After(d) {
				cursor[si]++
			}
			rel := 1.0
			if cursor[si] >= 0 {
				rel = s.bars[cursor[si]].Close / s.EntryPrice
			}
			v += s.Weight * rel
		}
		values[di] = capital * v
	}
	return values
}

func (e *Engine) assignWeights(sleeves []sleeve) {
	if len(sleeves) == 0 {
		return
	}
	var total float64
	for _, s := range sleeves {
		if s.Score > 0 {
			total += s.Score
		}
	}
	for i := range sleeves {
		if e.cfg.Sizing == SizingScoreWeighted && total > 0 {
			score := sleeves[i].Score
			if score < 0 {
				score = 0
			}
			sleeves[i].Weight = score / total
		} else {
			sleeves[i].Weight = 1 / float64(len(sleeves))
		}
	}
}

// flatAxis returns the window's date axis across every series, or a single
// anchor date when no bars fall in the window.
func (e *Engine) flatAxis(prices core.PriceMap) []time.Time {
	windowed := make(core.PriceMap, len(prices))
	for t, ps := range prices {
		windowed[t] = e.cfg.window(ps)
	}
	if dates := windowed.Dates(); len(dates) > 0 {
		return dates
	}
	return []time.Time{e.cfg.Start}
}

// selectTop keeps the highest-scoring BUY signal per ticker and returns the
// best k by score, ticker ascending on ties. The basket is long-only, so
// SELL and HOLD signals never open a position.
func selectTop(signals []core.Signal, k int) []core.Signal {
	best := make(map[string]core.Signal)
	for _, s := range signals {
		if s.Direction != core.DirectionBuy {
			continue
		}
		if cur, ok := best[s.Ticker]; !ok || s.Score > cur.Score {
			best[s.Ticker] = s
		}
	}

	out := make([]core.Signal, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Ticker < out[j].Ticker
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
