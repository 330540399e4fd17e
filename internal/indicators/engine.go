package indicators

import (
	"log"

	"backtest-core/internal/market"
)

// Params carries the knobs for every supported indicator; each indicator
// reads only the fields it needs.
type Params struct {
	Period       int
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
	KPeriod      int
	DPeriod      int
	Slowing      int
	StdDev       float64
}

// Supported indicator type names.
const (
	TypeSMA        = "SMA"
	TypeEMA        = "EMA"
	TypeRSI        = "RSI"
	TypeMACD       = "MACD"
	TypeBollinger  = "BBANDS"
	TypeStochastic = "STOCH"
)

// Known reports whether typ names a supported indicator.
func Known(typ string) bool {
	switch typ {
	case TypeSMA, TypeEMA, TypeRSI, TypeMACD, TypeBollinger, TypeStochastic:
		return true
	}
	return false
}

// Compute dispatches to the indicator implementation for typ. An unknown
// type yields an all-null result and a warning; it never aborts the run.
func Compute(typ string, bars []market.Bar, p Params) Result {
	switch typ {
	case TypeSMA:
		return SMA(bars, orDefault(p.Period, 20))
	case TypeEMA:
		return EMA(bars, orDefault(p.Period, 20))
	case TypeRSI:
		return RSI(bars, orDefault(p.Period, 14))
	case TypeMACD:
		return MACD(bars, orDefault(p.FastPeriod, 12), orDefault(p.SlowPeriod, 26), orDefault(p.SignalPeriod, 9))
	case TypeBollinger:
		sd := p.StdDev
		if sd == 0 {
			sd = 2
		}
		return Bollinger(bars, orDefault(p.Period, 20), sd)
	case TypeStochastic:
		return Stochastic(bars, orDefault(p.KPeriod, 14), orDefault(p.DPeriod, 3), orDefault(p.Slowing, 3))
	default:
		log.Printf("indicators: unknown indicator type %q, returning null result", typ)
		return empty(len(bars))
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
