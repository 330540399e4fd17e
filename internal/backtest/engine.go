package backtest

import (
	"fmt"
	"log"

	"backtest-core/internal/indicators"
	"backtest-core/internal/market"
	"backtest-core/internal/strategy"
)

// Engine replays a compiled strategy bar-by-bar over a historical series.
// The run loop is strictly sequential: equity and position state carry
// forward, so bar i+1 is never evaluated before bar i completes. An Engine
// owns no shared mutable state, which is what lets the optimizer run many
// of them in parallel.
type Engine struct {
	compiled    *strategy.Compiled
	bars        []market.Bar
	specs       []strategy.IndicatorSpec
	opts        Options
	barsPerYear float64
}

// New compiles the graph and validates the series. Compilation failures
// surface as *strategy.CompileError, data problems as *InvalidInputError;
// both are fatal.
func New(graph *strategy.Graph, bars []market.Bar, overrides strategy.Overrides, opts Options) (*Engine, error) {
	if err := market.Validate(bars); err != nil {
		return nil, &InvalidInputError{Reason: err.Error()}
	}

	compiled, err := strategy.Compile(graph, overrides)
	if err != nil {
		return nil, err
	}

	return &Engine{
		compiled:    compiled,
		bars:        bars,
		specs:       compiled.RequiredIndicators(),
		opts:        opts.withDefaults(),
		barsPerYear: market.BarsPerYear(bars),
	}, nil
}

// Run executes the backtest. A series shorter than the warm-up window
// yields an empty result with final equity equal to initial equity; it is
// a warm-up condition, not an error.
func (e *Engine) Run() (*Result, error) {
	opts := e.opts
	equity := opts.InitialEquity

	if len(e.bars) <= opts.WarmupBars {
		return &Result{
			Summary: Summary{
				InitialEquity: opts.InitialEquity,
				FinalEquity:   opts.InitialEquity,
			},
		}, nil
	}

	var (
		pos    *Position
		trades []Trade
		curve  = make([]EquityPoint, 0, len(e.bars)-opts.WarmupBars)
		peak   = equity
		maxDD  float64
		total  = len(e.bars) - opts.WarmupBars
	)

	for i := opts.WarmupBars; i < len(e.bars); i++ {
		bar := e.bars[i]

		sig, err := e.evaluateBar(i, pos)
		if err != nil {
			// A bad bar never discards the run; treat it as no signal.
			log.Printf("backtest: bar %d (%s): %v", i, bar.Timestamp.Format("2006-01-02 15:04"), err)
			sig = nil
		}

		if sig != nil {
			switch sig.Action {
			case strategy.ActionExit:
				if pos != nil && pos.Type == sig.PositionType {
					trade := closePosition(pos, bar, opts.CommissionPercent)
					equity += trade.Profit
					trades = append(trades, trade)
					pos = nil
				}
			case strategy.ActionEntry:
				if pos == nil {
					if p := openPosition(sig, bar, equity, opts); p != nil {
						pos = p
					}
				}
			}
		}

		curve = append(curve, EquityPoint{Timestamp: bar.Timestamp, Equity: equity})

		if equity > peak {
			peak = equity
		} else if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}

		if opts.OnBar != nil {
			opts.OnBar(i-opts.WarmupBars+1, total)
		}
	}

	result := &Result{
		Summary:        summarize(trades, curve, opts.InitialEquity, equity, maxDD, e.barsPerYear),
		Trades:         trades,
		EquityCurve:    curve,
		MonthlyReturns: monthlyReturns(trades),
	}
	return result, nil
}

// evaluateBar builds the frame for bar i and executes the strategy.
// Panics from indicator math or evaluation are converted to errors so the
// loop can absorb them.
func (e *Engine) evaluateBar(i int, pos *Position) (sig *strategy.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("bar evaluation panic: %v", r)
		}
	}()

	frame := e.frameAt(i)
	held := strategy.PositionNone
	if pos != nil {
		held = pos.Type
	}
	return e.compiled.Execute(frame, held), nil
}

// frameAt assembles the evaluation context for bar i over a bounded
// lookback window. The previous-bar snapshot is computed over the window
// ending one bar earlier, which is what crossover detection compares
// against.
func (e *Engine) frameAt(i int) *strategy.Frame {
	lo := i - e.opts.LookbackBars
	if lo < 0 {
		lo = 0
	}

	frame := &strategy.Frame{
		Current:    &e.bars[i],
		Indicators: e.computeIndicators(e.bars[lo : i+1]),
	}
	if i > 0 {
		frame.Previous = &e.bars[i-1]
		frame.PrevIndicators = e.computeIndicators(e.bars[lo:i])
	}
	return frame
}

func (e *Engine) computeIndicators(window []market.Bar) map[string]indicators.Result {
	out := make(map[string]indicators.Result, len(e.specs))
	for _, spec := range e.specs {
		out[spec.NodeID] = indicators.Compute(spec.Type, window, spec.Params)
	}
	return out
}

// openPosition sizes an entry with fixed-risk sizing: a fixed equity
// fraction divided by the assumed stop distance, clamped so the notional
// never exceeds available equity. Returns nil when no sane quantity
// exists.
func openPosition(sig *strategy.Signal, bar market.Bar, equity float64, opts Options) *Position {
	price := bar.Close
	if price <= 0 || equity <= 0 {
		return nil
	}

	riskAmount := equity * opts.RiskPercent / 100
	stopDistance := price * opts.StopDistancePercent / 100
	qty := riskAmount / stopDistance
	if qty*price > equity {
		qty = equity / price
	}
	if qty <= 0 {
		return nil
	}

	return &Position{
		Type:       sig.PositionType,
		EntryPrice: price,
		EntryTime:  bar.Timestamp,
		Quantity:   qty,
	}
}

// closePosition realizes a trade at the bar's close, net of commission on
// both fills.
func closePosition(pos *Position, bar market.Bar, commissionPercent float64) Trade {
	exitPrice := bar.Close

	var gross, grossPercent float64
	if pos.Type == strategy.PositionLong {
		gross = (exitPrice - pos.EntryPrice) * pos.Quantity
		grossPercent = (exitPrice/pos.EntryPrice - 1) * 100
	} else {
		gross = (pos.EntryPrice - exitPrice) * pos.Quantity
		grossPercent = (pos.EntryPrice/exitPrice - 1) * 100
	}

	entryCommission := commissionPercent / 100 * pos.EntryPrice * pos.Quantity
	exitCommission := commissionPercent / 100 * exitPrice * pos.Quantity
	commission := entryCommission + exitCommission

	return Trade{
		EntryTime:     pos.EntryTime,
		ExitTime:      bar.Timestamp,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		PositionType:  pos.Type,
		Quantity:      pos.Quantity,
		Profit:        gross - commission,
		ProfitPercent: grossPercent,
		Commission:    commission,
		Duration:      bar.Timestamp.Sub(pos.EntryTime),
	}
}
