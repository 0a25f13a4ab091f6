// Package performance computes return and risk ratios from either a list of
// trades or a periodic return series.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/newthinker/edgelab/internal/core"
	"github.com/newthinker/edgelab/internal/stats"
)

// Mode selects the aggregation law applied to the returns
type Mode string

const (
	// ModeTrades treats returns as independent trade returns in percent.
	// Totals are summed and annualised by 252 / average holding days.
	ModeTrades Mode = "trades"
	// ModeCompound treats returns as fractional periodic returns of one
	// curve. Totals are compounded and annualised by elapsed calendar years.
	ModeCompound Mode = "compound"
)

const (
	// TradingDaysPerYear is the annualisation base.
	TradingDaysPerYear = 252
	// ProfitFactorCap is reported when there are wins and no losses.
	ProfitFactorCap = 999.0

	daysPerYear = 365.25
)

// Input is a return sample tagged with its aggregation law
type Input struct {
	Mode        Mode
	Returns     []float64
	HoldingDays []int     // trade mode, aligned with Returns
	Start       time.Time // compound mode, date of the initial value
	End         time.Time // compound mode, date of the final value
}

// FromTrades builds a trade-mode input with trades ordered by exit date.
func FromTrades(trades []core.Trade) Input {
	ordered := make([]core.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitDate.Before(ordered[j].ExitDate)
	})

	in := Input{
		Mode:        ModeTrades,
		Returns:     make([]float64, len(ordered)),
		HoldingDays: make([]int, len(ordered)),
	}
	for i, t := range ordered {
		in.Returns[i] = t.ReturnPct
		in.HoldingDays[i] = t.HoldingDays
	}
	return in
}

// FromCurve builds a compound-mode input from fractional periodic returns.
// dates are aligned with returns; the span between the first and the last
// date is used for annualisation unless Start is overridden.
func FromCurve(dates []time.Time, returns []float64) Input {
	in := Input{Mode: ModeCompound, Returns: returns}
	if len(dates) > 0 {
		in.Start = dates[0]
		in.End = dates[len(dates)-1]
	}
	return in
}

// Metrics holds aggregate performance statistics. Return and drawdown
// fields are percentages; MaxDrawdown is zero or negative.
type Metrics struct {
	Mode             Mode    `json:"mode"`
	Observations     int     `json:"observations"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"` // strictly negative observations
	WinRate          float64 `json:"win_rate"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	ProfitFactor     float64 `json:"profit_factor"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MeanReturn       float64 `json:"mean_return"`
	StdDev           float64 `json:"std_dev"`
	Volatility       float64 `json:"volatility"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	AvgHoldingDays   float64 `json:"avg_holding_days,omitempty"`
}

// Calculate computes Metrics. It never fails: degenerate samples resolve
// to zero or to the documented sentinels.
func Calculate(in Input) Metrics {
	mode := in.Mode
	if mode == "" {
		mode = ModeTrades
	}
	m := Metrics{Mode: mode, Observations: len(in.Returns)}
	if len(in.Returns) == 0 {
		return m
	}

	// percent scale for reporting
	scale := 1.0
	if mode == ModeCompound {
		scale = 100
	}

	// flat observations count toward AvgLoss but not Losses
	var wins, nonPositive []float64
	var grossWin, grossLoss float64
	for _, r := range in.Returns {
		switch {
		case r > 0:
			wins = append(wins, r)
			grossWin += r
		case r < 0:
			m.Losses++
			grossLoss += r
			nonPositive = append(nonPositive, r)
		default:
			nonPositive = append(nonPositive, r)
		}
	}
	m.Wins = len(wins)
	m.WinRate = float64(m.Wins) / float64(m.Observations) * 100
	m.AvgWin = stats.Mean(wins) * scale
	m.AvgLoss = stats.Mean(nonPositive) * scale
	m.ProfitFactor = profitFactor(grossWin, grossLoss)

	mean, std := stats.MeanStdDev(in.Returns)
	m.MeanReturn = mean * scale
	m.StdDev = std * scale

	factor := TradingDaysPerYear * 1.0
	switch mode {
	case ModeCompound:
		total := stats.Compound(in.Returns)
		m.TotalReturn = total * 100
		m.AnnualizedReturn = annualizeCompound(total, years(in)) * 100
	default:
		m.TotalReturn = stats.Sum(in.Returns)
		m.AvgHoldingDays = avgHolding(in.HoldingDays)
		factor = tradesPerYear(m.AvgHoldingDays)
		m.AnnualizedReturn = mean * factor
	}

	m.Volatility = m.StdDev * math.Sqrt(factor)
	m.MaxDrawdown = maxDrawdown(in.Returns, 100/scale) * 100
	m.SharpeRatio = ratio(mean, std, factor)
	m.SortinoRatio = ratio(mean, downsideStd(in.Returns, std), factor)
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.TotalReturn / math.Abs(m.MaxDrawdown)
	}

	return m.finite()
}

func profitFactor(grossWin, grossLoss float64) float64 {
	if grossWin <= 0 {
		return 0
	}
	if grossLoss == 0 {
		return ProfitFactorCap
	}
	return grossWin / math.Abs(grossLoss)
}

// maxDrawdown walks the cumulative curve starting at 1.0 and returns the
// most negative (value - peak) / peak as a fraction. divisor converts the
// returns to fractions.
func maxDrawdown(returns []float64, divisor float64) float64 {
	cum, peak, worst := 1.0, 1.0, 0.0
	for _, r := range returns {
		cum *= 1 + r/divisor
		if cum > peak {
			peak = cum
		}
		if peak > 0 {
			if dd := (cum - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// downsideStd is the sample std of negative observations, or the overall
// std when fewer than two negatives exist.
func downsideStd(returns []float64, overall float64) float64 {
	var neg []float64
	for _, r := range returns {
		if r < 0 {
			neg = append(neg, r)
		}
	}
	if len(neg) < 2 {
		return overall
	}
	return stats.StdDev(neg)
}

func ratio(mean, std, factor float64) float64 {
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(factor)
}

func avgHolding(days []int) float64 {
	if len(days) == 0 {
		return 0
	}
	var sum int
	for _, d := range days {
		sum += d
	}
	return float64(sum) / float64(len(days))
}

func tradesPerYear(avgHoldingDays float64) float64 {
	if avgHoldingDays <= 0 {
		return 1
	}
	return TradingDaysPerYear / avgHoldingDays
}

// years returns the elapsed calendar years, falling back to the number of
// observations over the trading-day base when no dates are known.
func years(in Input) float64 {
	if !in.Start.IsZero() && in.End.After(in.Start) {
		return in.End.Sub(in.Start).Hours() / 24 / daysPerYear
	}
	return float64(len(in.Returns)) / TradingDaysPerYear
}

func annualizeCompound(total, years float64) float64 {
	if years <= 0 {
		return 0
	}
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, 1/years) - 1
}

func (m Metrics) finite() Metrics {
	for _, f := range []*float64{
		&m.WinRate, &m.AvgWin, &m.AvgLoss, &m.ProfitFactor,
		&m.TotalReturn, &m.AnnualizedReturn, &m.MeanReturn, &m.StdDev,
		&m.Volatility, &m.MaxDrawdown, &m.SharpeRatio, &m.SortinoRatio,
		&m.CalmarRatio, &m.AvgHoldingDays,
	} {
		*f = stats.Finite(*f)
	}
	return m
}
