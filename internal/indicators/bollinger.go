package indicators

import (
	"math"

	"backtest-core/internal/market"
)

// Bollinger calculates Bollinger Bands: an SMA middle band and upper/lower
// bands offset by stdDev population standard deviations.
func Bollinger(bars []market.Bar, period int, stdDev float64) Result {
	n := len(bars)
	res := Result{
		Value: Null(),
		Outputs: map[string][]float64{
			"upper":  nulls(n),
			"middle": nulls(n),
			"lower":  nulls(n),
		},
	}
	if period <= 0 || n == 0 {
		return res
	}

	upper := res.Outputs["upper"]
	middle := res.Outputs["middle"]
	lower := res.Outputs["lower"]

	for i := period - 1; i < n; i++ {
		sum := 0.0
		for j := 0; j < period; j++ {
			sum += bars[i-j].Close
		}
		mean := sum / float64(period)

		variance := 0.0
		for j := 0; j < period; j++ {
			d := bars[i-j].Close - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))

		middle[i] = mean
		upper[i] = mean + sd*stdDev
		lower[i] = mean - sd*stdDev
	}

	return res
}
