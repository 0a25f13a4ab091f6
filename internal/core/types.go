package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Direction represents the directional call of a signal
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// ParseDirection normalizes a direction string. STRONG_BUY and
// STRONG_SELL fold into BUY and SELL; anything else is rejected.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "STRONG_BUY":
		return DirectionBuy, nil
	case "SELL", "STRONG_SELL":
		return DirectionSell, nil
	case "HOLD":
		return DirectionHold, nil
	default:
		return "", Errorf(ErrInvalidSignal, "unknown direction %q", s)
	}
}

// UnmarshalJSON decodes a direction through ParseDirection.
func (d *Direction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return WrapError(ErrInvalidSignal, err)
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Tradable reports whether the direction opens a position.
func (d Direction) Tradable() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Signal represents a directional call on an instrument
type Signal struct {
	Ticker    string    `json:"ticker"`
	Direction Direction `json:"direction"`
	Score     float64   `json:"score"`               // 0-100 confidence
	Timestamp time.Time `json:"timestamp,omitempty"` // zero when absent
	Strategy  string    `json:"strategy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// UnmarshalJSON accepts a date-only, RFC 3339 or "YYYY-MM-DD hh:mm:ss"
// timestamp. An empty or absent timestamp leaves the signal untimed.
func (s *Signal) UnmarshalJSON(data []byte) error {
	type plain Signal
	aux := struct {
		*plain
		Timestamp string `json:"timestamp"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		var coreErr *Error
		if errors.As(err, &coreErr) {
			return err
		}
		return WrapError(ErrInvalidSignal, err)
	}
	s.Timestamp = time.Time{}
	if aux.Timestamp != "" {
		ts, err := ParseDate(aux.Timestamp)
		if err != nil {
			return WrapError(ErrInvalidSignal, err)
		}
		s.Timestamp = ts
	}
	return nil
}

// Validate checks the fields every signal needs.
func (s Signal) Validate() error {
	if strings.TrimSpace(s.Ticker) == "" {
		return Errorf(ErrInvalidSignal, "signal has no ticker")
	}
	switch s.Direction {
	case DirectionBuy, DirectionSell, DirectionHold:
		return nil
	default:
		return Errorf(ErrInvalidSignal, "signal %s has unknown direction %q", s.Ticker, s.Direction)
	}
}

// HasTimestamp reports whether the signal carries a date.
func (s Signal) HasTimestamp() bool {
	return !s.Timestamp.IsZero()
}

// DateLayouts are the accepted date and timestamp layouts, tried in order.
var DateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

// ParseDate parses s with the first matching layout in DateLayouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// SignalsBetween returns the timed signals dated in [start, end) plus every
// untimed signal.
func SignalsBetween(signals []Signal, start, end time.Time) []Signal {
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.HasTimestamp() && (s.Timestamp.Before(start) || !s.Timestamp.Before(end)) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Bar represents a daily candlestick
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is a chronologically ascending, date-unique sequence of bars.
type PriceSeries []Bar

// Validate checks ordering and date uniqueness.
func (ps PriceSeries) Validate() error {
	for i := 1; i < len(ps); i++ {
		if !ps[i].Date.After(ps[i-1].Date) {
			return Errorf(ErrInvalidSeries, "bar %d (%s) not after bar %d (%s)",
				i, ps[i].Date.Format("2006-01-02"), i-1, ps[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// IndexOnOrAfter returns the index of the first bar dated at or after t,
// or -1 when every bar is earlier.
func (ps PriceSeries) IndexOnOrAfter(t time.Time) int {
	i := sort.Search(len(ps), func(i int) bool {
		return !ps[i].Date.Before(t)
	})
	if i == len(ps) {
		return -1
	}
	return i
}

// Between returns the bars with start <= date < end. A zero bound is open.
func (ps PriceSeries) Between(start, end time.Time) PriceSeries {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(ps), func(i int) bool { return !ps[i].Date.Before(start) })
	}
	hi := len(ps)
	if !end.IsZero() {
		hi = sort.Search(len(ps), func(i int) bool { return !ps[i].Date.Before(end) })
	}
	if lo >= hi {
		return nil
	}
	return ps[lo:hi]
}

// Closes returns the close prices.
func (ps PriceSeries) Closes() []float64 {
	out := make([]float64, len(ps))
	for i, b := range ps {
		out[i] = b.Close
	}
	return out
}

// Returns returns per-bar fractional close-to-close returns.
// Pairs with a non-positive previous close are skipped.
func (ps PriceSeries) Returns() []float64 {
	if len(ps) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ps)-1)
	for i := 1; i < len(ps); i++ {
		prev := ps[i-1].Close
		if prev <= 0 {
			continue
		}
		out = append(out, ps[i].Close/prev-1)
	}
	return out
}

// First returns the first bar date, zero if empty.
func (ps PriceSeries) First() time.Time {
	if len(ps) == 0 {
		return time.Time{}
	}
	return ps[0].Date
}

// Last returns the last bar date, zero if empty.
func (ps PriceSeries) Last() time.Time {
	if len(ps) == 0 {
		return time.Time{}
	}
	return ps[len(ps)-1].Date
}

// PriceMap maps ticker to its price series.
type PriceMap map[string]PriceSeries

// Dates returns the sorted union of bar dates across every series.
func (pm PriceMap) Dates() []time.Time {
	seen := make(map[int64]time.Time)
	for _, ps := range pm {
		for _, b := range ps {
			seen[b.Date.UnixNano()] = b.Date
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DateRange returns the earliest first bar and the latest last bar.
func (pm PriceMap) DateRange() (start, end time.Time, ok bool) {
	for _, ps := range pm {
		if len(ps) == 0 {
			continue
		}
		if !ok || ps.First().Before(start) {
			start = ps.First()
		}
		if !ok || ps.Last().After(end) {
			end = ps.Last()
		}
		ok = true
	}
	return start, end, ok
}

// Restrict returns a view of every series limited to [start, end).
// Tickers left with no bars are omitted.
func (pm PriceMap) Restrict(start, end time.Time) PriceMap {
	out := make(PriceMap, len(pm))
	for ticker, ps := range pm {
		if sub := ps.Between(start, end); len(sub) > 0 {
			out[ticker] = sub
		}
	}
	return out
}

// Tickers returns the sorted ticker list.
func (pm PriceMap) Tickers() []string {
	out := make([]string, 0, len(pm))
	for t := range pm {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate checks every series.
func (pm PriceMap) Validate() error {
	for _, ticker := range pm.Tickers() {
		if err := pm[ticker].Validate(); err != nil {
			return fmt.Errorf("%s: %w", ticker, err)
		}
	}
	return nil
}

// Trade represents one simulated round trip
type Trade struct {
	Ticker      string    `json:"ticker"`
	Direction   Direction `json:"direction"`
	EntryDate   time.Time `json:"entry_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitDate    time.Time `json:"exit_date"`
	ExitPrice   float64   `json:"exit_price"`
	ReturnPct   float64   `json:"return_pct"`
	HoldingDays int       `json:"holding_days"` // bars held
	ModelScore  float64   `json:"model_score"`
}

// Point is one element of a flat date/value series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
