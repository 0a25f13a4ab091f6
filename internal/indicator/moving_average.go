package indicator

import (
	"fmt"
	"strings"
)

// Kind selects the moving average formula
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
)

// ParseKind normalizes a moving average name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindSMA:
		return KindSMA, nil
	case KindEMA:
		return KindEMA, nil
	default:
		return "", fmt.Errorf("unknown moving average %q", s)
	}
}

// MovingAverage dispatches on kind.
func MovingAverage(kind Kind, prices []float64, period int) []float64 {
	if kind == KindEMA {
		return EMA(prices, period)
	}
	return SMA(prices, period)
}

// SMA calculates Simple Moving Average.
// The value at index j covers prices[j : j+period].
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average seeded with the SMA of the
// first period prices.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// Cross is a crossing of a fast average over a slow one
type Cross struct {
	Index int // index into the price slice
	Up    bool
	Fast  float64
	Slow  float64
}

// Crossovers finds every bar where the fast average crosses the slow one.
// fast and slow must come from the same prices with fastPeriod < slowPeriod.
func Crossovers(fast, slow []float64, fastPeriod, slowPeriod int) []Cross {
	var out []Cross
	// price index i maps to fast[i-fastPeriod+1] and slow[i-slowPeriod+1]
	for i := slowPeriod; i < slowPeriod-1+len(slow); i++ {
		cf, pf := fast[i-fastPeriod+1], fast[i-fastPeriod]
		cs, ps := slow[i-slowPeriod+1], slow[i-slowPeriod]
		switch {
		case pf <= ps && cf > cs:
			out = append(out, Cross{Index: i, Up: true, Fast: cf, Slow: cs})
		case pf >= ps && cf < cs:
			out = append(out, Cross{Index: i, Up: false, Fast: cf, Slow: cs})
		}
	}
	return out
}
