package backtest

import (
	"github.com/newthinker/edgelab/internal/core"
)

// SkipReason labels why a signal produced no trade
type SkipReason string

const (
	SkipHold            SkipReason = "hold"
	SkipTickerMissing   SkipReason = "ticker_missing"
	SkipShortSeries     SkipReason = "short_series"
	SkipEntryUnresolved SkipReason = "entry_unresolved"
	SkipExitUnresolved  SkipReason = "exit_unresolved"
	SkipInvalidPrice    SkipReason = "invalid_price"
	SkipUntimed         SkipReason = "untimed"
)

// Result holds the simulator output
type Result struct {
	Trades  []core.Trade       `json:"trades"`
	Skipped map[SkipReason]int `json:"skipped,omitempty"`
	Signals int                `json:"signals"`
}

// SkippedTotal returns the number of skipped signals or windows.
func (r *Result) SkippedTotal() int {
	var n int
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Returns returns the trade returns in percent, in trade order.
func (r *Result) Returns() []float64 {
	out := make([]float64, len(r.Trades))
	for i, t := range r.Trades {
		out[i] = t.ReturnPct
	}
	return out
}

// Tickers returns the distinct traded tickers in first-seen order.
func (r *Result) Tickers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.Trades {
		if !seen[t.Ticker] {
			seen[t.Ticker] = true
			out = append(out, t.Ticker)
		}
	}
	return out
}

func (r *Result) skip(reason SkipReason) {
	if r.Skipped == nil {
		r.Skipped = make(map[SkipReason]int)
	}
	r.Skipped[reason]++
}
