// Package stats wraps the descriptive statistics shared by the analytic
// packages. Every helper returns a finite value for degenerate input.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for an empty sample.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return Finite(stat.Mean(x, nil))
}

// StdDev returns the sample standard deviation (n-1), 0 when n < 2 or
// every value is equal.
func StdDev(x []float64) float64 {
	if len(x) < 2 || Constant(x) {
		return 0
	}
	return Finite(stat.StdDev(x, nil))
}

// MeanStdDev returns Mean and StdDev in one pass.
func MeanStdDev(x []float64) (mean, std float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return Finite(x[0]), 0
	}
	if Constant(x) {
		return Finite(x[0]), 0
	}
	m, s := stat.MeanStdDev(x, nil)
	return Finite(m), Finite(s)
}

// Variance returns the sample variance, 0 when n < 2.
func Variance(x []float64) float64 {
	if len(x) < 2 || Constant(x) {
		return 0
	}
	return Finite(stat.Variance(x, nil))
}

// Covariance returns the sample covariance of two equal-length samples,
// 0 when n < 2 or the lengths differ.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return Finite(stat.Covariance(x, y, nil))
}

// Constant reports whether every value equals the first. An empty sample
// is constant.
func Constant(x []float64) bool {
	for _, v := range x {
		if v != x[0] {
			return false
		}
	}
	return true
}

// Sum adds the sample.
func Sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

// Compound returns prod(1+r) - 1 for fractional returns.
func Compound(x []float64) float64 {
	c := 1.0
	for _, r := range x {
		c *= 1 + r
	}
	return c - 1
}

// Sorted returns an ascending copy.
func Sorted(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	sort.Float64s(out)
	return out
}

// Percentile returns the p-th percentile (0-100) of an ascending sample
// using linear interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	idx := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	if sorted[lower] == sorted[upper] {
		return sorted[lower]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Finite maps NaN and Inf to 0.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Round rounds to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
