package analysis

import (
	"time"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/portfolio"
)

// tradeBenchmarkReturns returns, for every trade, the benchmark's percent
// return over the trade's own entry and exit dates. Windows the benchmark
// cannot price count as a flat 0.
func tradeBenchmarkReturns(trades []core.Trade, bench core.PriceSeries) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = spanReturn(bench, t.EntryDate, t.ExitDate) * 100
	}
	return out
}

// curveBenchmarkReturns returns fractional benchmark returns aligned with
// the curve's periodic returns.
func curveBenchmarkReturns(curve *portfolio.Curve, bench core.PriceSeries) []float64 {
	out := make([]float64, len(curve.Returns))
	for i := range curve.Returns {
		if i+1 >= len(curve.Equity) {
			break
		}
		out[i] = spanReturn(bench, curve.Equity[i].Date, curve.Equity[i+1].Date)
	}
	return out
}

func spanReturn(bench core.PriceSeries, from, to time.Time) float64 {
	i := bench.IndexOnOrAfter(from)
	j := bench.IndexOnOrAfter(to)
	if i < 0 || j <= i {
		return 0
	}
	entry, exit := bench[i].Close, bench[j].Close
	if entry <= 0 || exit <= 0 {
		return 0
	}
	return exit/entry - 1
}
