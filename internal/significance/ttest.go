// Package significance tests whether a return sample shows a provable
// positive edge and compares it with a paired benchmark.
package significance

import (
	"math"

	"github.com/newthinker/edgelab/internal/performance"
	"github.com/newthinker/edgelab/internal/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// MinObservations is the smallest sample the t-test is trusted on.
	MinObservations = 5
	// Alpha is the two-tailed significance level.
	Alpha = 0.05
)

// Input is a realized return sample with an optional paired benchmark.
// Units follow the performance mode: percent for trades, fractions for
// compound curves.
type Input struct {
	Mode      performance.Mode
	Returns   []float64
	Benchmark []float64
}

// ConfidenceInterval is a two-sided 95% interval for the mean return.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Result holds the t-test and benchmark comparison. MeanReturn, the
// interval and Alpha are percentages.
type Result struct {
	Observations     int                `json:"observations"`
	MeanReturn       float64            `json:"mean_return"`
	StdDev           float64            `json:"std_dev"`
	TStatistic       float64            `json:"t_statistic"`
	PValue           float64            `json:"p_value"`
	DegreesOfFreedom int                `json:"degrees_of_freedom"`
	CI95             ConfidenceInterval `json:"ci_95"`
	IsSignificant    bool               `json:"is_significant"`
	HasBenchmark     bool               `json:"has_benchmark"`
	PairedPoints     int                `json:"paired_points,omitempty"`
	Alpha            float64            `json:"alpha"`
	Beta             float64            `json:"beta"`
	InformationRatio float64            `json:"information_ratio"`
}

// Test runs a one-sample two-tailed t-test of the mean return against 0.
// Significance is directional: a provably negative mean is reported as not
// significant.
func Test(in Input) Result {
	scale := 1.0
	if in.Mode == performance.ModeCompound {
		scale = 100
	}

	n := len(in.Returns)
	mean, std := stats.MeanStdDev(in.Returns)
	r := Result{
		Observations: n,
		MeanReturn:   mean * scale,
		StdDev:       std * scale,
		PValue:       1,
		CI95:         ConfidenceInterval{Lower: mean * scale, Upper: mean * scale},
		Beta:         1,
	}
	if n > 1 {
		r.DegreesOfFreedom = n - 1
	}

	if n >= 2 && std > 0 {
		df := float64(n - 1)
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		se := std / math.Sqrt(float64(n))
		half := dist.Quantile(0.975) * se
		r.CI95 = ConfidenceInterval{
			Lower: stats.Finite((mean - half) * scale),
			Upper: stats.Finite((mean + half) * scale),
		}
		if n >= MinObservations {
			t := mean / se
			r.TStatistic = stats.Finite(t)
			r.PValue = stats.Finite(2 * dist.Survival(math.Abs(t)))
		}
	}
	r.IsSignificant = n >= MinObservations && r.PValue < Alpha && mean > 0

	if len(in.Benchmark) > 0 && n > 0 {
		compareBenchmark(&r, in, scale)
	}
	return r
}

func compareBenchmark(r *Result, in Input, scale float64) {
	n := min(len(in.Returns), len(in.Benchmark))
	ret, bench := in.Returns[:n], in.Benchmark[:n]

	r.HasBenchmark = true
	r.PairedPoints = n

	var alpha float64
	if in.Mode == performance.ModeCompound {
		alpha = stats.Compound(ret) - stats.Compound(bench)
	} else {
		alpha = stats.Sum(ret) - stats.Sum(bench)
	}
	r.Alpha = stats.Finite(alpha * scale)

	if v := stats.Variance(bench); n >= 2 && v > 0 {
		r.Beta = stats.Finite(stats.Covariance(ret, bench) / v)
	}

	diff := make([]float64, n)
	for i := range diff {
		diff[i] = ret[i] - bench[i]
	}
	if te := stats.StdDev(diff); te > 0 {
		r.InformationRatio = stats.Finite(alpha / te)
	}
}
