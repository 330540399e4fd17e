package backtest

import (
	"math"
	"sort"
)

// summarize computes the run statistics from the realized trades and the
// per-bar equity curve.
func summarize(trades []Trade, curve []EquityPoint, initialEquity, finalEquity, maxDrawdown, barsPerYear float64) Summary {
	s := Summary{
		InitialEquity: initialEquity,
		FinalEquity:   finalEquity,
		MaxDrawdown:   maxDrawdown,
	}

	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.Profit > 0 {
			s.WinningTrades++
			grossProfit += t.Profit
		} else {
			s.LosingTrades++
			grossLoss += -t.Profit
		}
	}
	s.TotalTrades = len(trades)
	s.GrossProfit = grossProfit
	s.GrossLoss = grossLoss

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}

	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	default:
		s.ProfitFactor = 0
	}

	if initialEquity > 0 {
		s.TotalReturnPercent = (finalEquity/initialEquity - 1) * 100
	}

	s.SharpeRatio = sharpeRatio(curve, barsPerYear)
	s.AnnualReturn = annualReturn(curve, initialEquity, finalEquity)

	return s
}

// sharpeRatio is the mean of per-bar returns over their (population)
// standard deviation, annualized by sqrt(bars per year). Zero when the
// curve is flat or too short.
func sharpeRatio(curve []EquityPoint, barsPerYear float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].Equity <= 0 {
			return 0
		}
		returns = append(returns, curve[i].Equity/curve[i-1].Equity-1)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(returns)))
	if stddev == 0 {
		return 0
	}

	annualize := 1.0
	if barsPerYear > 0 {
		annualize = math.Sqrt(barsPerYear)
	}
	return mean / stddev * annualize
}

// annualReturn is the CAGR in percent over the traded period. A non-
// positive final equity reports -100 (total loss); zero elapsed time
// reports 0.
func annualReturn(curve []EquityPoint, initialEquity, finalEquity float64) float64 {
	if len(curve) < 2 || initialEquity <= 0 {
		return 0
	}

	elapsed := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	years := elapsed.Hours() / (24 * 365)
	if years <= 0 {
		return 0
	}

	base := finalEquity / initialEquity
	if base <= 0 {
		return -100
	}
	return (math.Pow(base, 1/years) - 1) * 100
}

// monthlyReturns sums trade return percent per calendar month of the exit
// timestamp, sorted chronologically.
func monthlyReturns(trades []Trade) []MonthlyReturn {
	type key struct {
		year  int
		month int
	}
	byMonth := make(map[key]float64)
	for _, t := range trades {
		y, m, _ := t.ExitTime.Date()
		byMonth[key{y, int(m)}] += t.ProfitPercent
	}

	out := make([]MonthlyReturn, 0, len(byMonth))
	for k, ret := range byMonth {
		out = append(out, MonthlyReturn{Year: k.year, Month: k.month, Return: ret})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
