package indicators

import "backtest-core/internal/market"

// RSI calculates the relative strength index with Wilder's smoothing. The
// seed averages at index period use a simple mean of the first period
// deltas; later bars apply avg = (avg*(period-1) + delta) / period.
func RSI(bars []market.Bar, period int) Result {
	if period <= 0 || len(bars) == 0 {
		return empty(len(bars))
	}
	values := nulls(len(bars))
	if len(bars) <= period {
		return Result{Value: last(values), Values: values}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	values[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values[i] = rsiValue(avgGain, avgLoss)
	}

	return Result{Value: last(values), Values: values}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0:
		return 0
	case avgLoss == 0:
		return 100
	default:
		return 100 - 100/(1+avgGain/avgLoss)
	}
}
