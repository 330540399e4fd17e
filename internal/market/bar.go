package market

import (
	"fmt"
	"sort"
	"time"
)

// Bar is a single OHLCV candle for a fixed timeframe.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Field returns a named OHLCV component.
func (b Bar) Field(name string) (float64, error) {
	switch name {
	case "open":
		return b.Open, nil
	case "high":
		return b.High, nil
	case "low":
		return b.Low, nil
	case "close":
		return b.Close, nil
	case "volume":
		return b.Volume, nil
	}
	return 0, fmt.Errorf("unknown price field %q", name)
}

// Validate checks that a series is usable for backtesting: non-empty,
// strictly ascending timestamps, no duplicates.
func Validate(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("empty bar series")
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar series not strictly ascending at index %d (%s -> %s)",
				i, bars[i-1].Timestamp.Format(time.RFC3339), bars[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// BarsPerYear estimates how many bars make up a year from the median
// spacing between consecutive bars. Returns 0 when the spacing cannot be
// inferred.
func BarsPerYear(bars []Bar) float64 {
	if len(bars) < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		deltas = append(deltas, bars[i].Timestamp.Sub(bars[i-1].Timestamp))
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	median := deltas[len(deltas)/2]
	if median <= 0 {
		return 0
	}
	const year = 365 * 24 * time.Hour
	return float64(year) / float64(median)
}

// Closes extracts the close series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
