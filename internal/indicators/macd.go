package indicators

import "backtest-core/internal/market"

// MACD calculates the MACD line (fast EMA - slow EMA), its signal line
// (EMA of the defined MACD values, re-aligned to the input indexes) and
// the histogram. fastPeriod must be smaller than slowPeriod; otherwise the
// result is all-null.
func MACD(bars []market.Bar, fastPeriod, slowPeriod, signalPeriod int) Result {
	n := len(bars)
	res := Result{
		Value: Null(),
		Outputs: map[string][]float64{
			"macd":      nulls(n),
			"signal":    nulls(n),
			"histogram": nulls(n),
		},
	}
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 || fastPeriod >= slowPeriod {
		return res
	}

	closes := market.Closes(bars)
	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	macd := res.Outputs["macd"]
	for i := 0; i < n; i++ {
		if !IsNull(fast[i]) && !IsNull(slow[i]) {
			macd[i] = fast[i] - slow[i]
		}
	}

	// The signal line smooths only the defined MACD values: seed with a
	// simple mean once signalPeriod values have appeared, then apply the
	// EMA recurrence, writing back at the original index positions.
	signal := res.Outputs["signal"]
	multiplier := 2.0 / (float64(signalPeriod) + 1.0)
	validCount := 0
	sum := 0.0
	prev := Null()
	for i := 0; i < n; i++ {
		if IsNull(macd[i]) {
			continue
		}
		validCount++
		sum += macd[i]
		switch {
		case validCount == signalPeriod:
			prev = sum / float64(signalPeriod)
			signal[i] = prev
		case validCount > signalPeriod:
			prev = (macd[i]-prev)*multiplier + prev
			signal[i] = prev
		}
	}

	histogram := res.Outputs["histogram"]
	for i := 0; i < n; i++ {
		if !IsNull(macd[i]) && !IsNull(signal[i]) {
			histogram[i] = macd[i] - signal[i]
		}
	}

	return res
}
