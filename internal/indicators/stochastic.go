package indicators

import (
	"math"

	"backtest-core/internal/market"
)

// Stochastic calculates the slow stochastic oscillator: raw %K over
// kPeriod highs/lows, smoothed by a slowing SMA, with %D an SMA of the
// smoothed %K.
func Stochastic(bars []market.Bar, kPeriod, dPeriod, slowing int) Result {
	n := len(bars)
	res := Result{
		Value: Null(),
		Outputs: map[string][]float64{
			"k": nulls(n),
			"d": nulls(n),
		},
	}
	if kPeriod <= 0 || dPeriod <= 0 || slowing <= 0 || n == 0 {
		return res
	}

	raw := nulls(n)
	for i := kPeriod - 1; i < n; i++ {
		hi := math.Inf(-1)
		lo := math.Inf(1)
		for j := 0; j < kPeriod; j++ {
			hi = math.Max(hi, bars[i-j].High)
			lo = math.Min(lo, bars[i-j].Low)
		}
		if hi == lo {
			raw[i] = 50 // flat window, park in the middle
			continue
		}
		raw[i] = 100 * (bars[i].Close - lo) / (hi - lo)
	}

	k := res.Outputs["k"]
	for i := kPeriod - 1 + slowing - 1; i < n; i++ {
		sum := 0.0
		for j := 0; j < slowing; j++ {
			sum += raw[i-j]
		}
		k[i] = sum / float64(slowing)
	}

	d := res.Outputs["d"]
	for i := kPeriod - 1 + slowing - 1 + dPeriod - 1; i < n; i++ {
		sum := 0.0
		for j := 0; j < dPeriod; j++ {
			sum += k[i-j]
		}
		d[i] = sum / float64(dPeriod)
	}

	return res
}
