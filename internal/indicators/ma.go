package indicators

import "backtest-core/internal/market"

// SMA calculates the simple moving average of closes over the window.
// Positions before period-1 closes are null.
func SMA(bars []market.Bar, period int) Result {
	if period <= 0 || len(bars) == 0 {
		return empty(len(bars))
	}
	values := nulls(len(bars))
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			values[i] = sum / float64(period)
		}
	}
	return Result{Value: last(values), Values: values}
}

// EMA calculates the exponential moving average of closes. The first
// defined value (at index period-1) is seeded with the SMA of the first
// period closes; later values use the 2/(period+1) multiplier.
func EMA(bars []market.Bar, period int) Result {
	values := emaSeries(market.Closes(bars), period)
	return Result{Value: last(values), Values: values}
}

// emaSeries is the shared EMA kernel; it is reused for the MACD signal
// line, which smooths a derived series rather than raw closes.
func emaSeries(closes []float64, period int) []float64 {
	values := nulls(len(closes))
	if period <= 0 || len(closes) < period {
		return values
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	seed /= float64(period)
	values[period-1] = seed

	multiplier := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(closes); i++ {
		values[i] = (closes[i]-values[i-1])*multiplier + values[i-1]
	}
	return values
}
