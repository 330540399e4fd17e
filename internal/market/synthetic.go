package market

import (
	"math"
	"math/rand"
	"time"
)

// SyntheticConfig controls the generated series. Zero values fall back to
// usable defaults so a bare config still produces data.
type SyntheticConfig struct {
	Bars       int
	Start      time.Time
	Step       time.Duration
	StartPrice float64
	Drift      float64 // per-bar trend component
	Noise      float64 // random walk amplitude
	Seed       int64
}

// Synthetic generates a deterministic random-walk series for local runs and
// tests.
func Synthetic(cfg SyntheticConfig) []Bar {
	if cfg.Bars <= 0 {
		cfg.Bars = 500
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Step == 0 {
		cfg.Step = time.Hour
	}
	if cfg.StartPrice == 0 {
		cfg.StartPrice = 100.0
	}
	if cfg.Noise == 0 {
		cfg.Noise = 0.5
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	bars := make([]Bar, 0, cfg.Bars)
	price := cfg.StartPrice
	for i := 0; i < cfg.Bars; i++ {
		open := price
		price += cfg.Drift + (rng.Float64()*2-1)*cfg.Noise
		if price < 0.01 {
			price = 0.01
		}
		high := math.Max(open, price) + rng.Float64()*cfg.Noise*0.5
		low := math.Min(open, price) - rng.Float64()*cfg.Noise*0.5
		if low < 0.01 {
			low = 0.01
		}
		bars = append(bars, Bar{
			Timestamp: cfg.Start.Add(time.Duration(i) * cfg.Step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1000 + rng.Float64()*500,
		})
	}
	return bars
}

// Ramp builds a series whose close rises by upStep for upBars, then falls
// by downStep. Handy for exercising crossover strategies end to end.
func Ramp(n, upBars int, start time.Time, step time.Duration, base, upStep, downStep float64) []Bar {
	bars := make([]Bar, 0, n)
	price := base
	for i := 0; i < n; i++ {
		open := price
		if i < upBars {
			price += upStep
		} else {
			price -= downStep
		}
		if price < 0.01 {
			price = 0.01
		}
		bars = append(bars, Bar{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      open,
			High:      math.Max(open, price),
			Low:       math.Min(open, price),
			Close:     price,
			Volume:    1000,
		})
	}
	return bars
}
