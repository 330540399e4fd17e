package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"backtest-core/internal/strategy"
)

// Options tune a single backtest run. Zero fields fall back to defaults.
type Options struct {
	InitialEquity       float64 // starting equity, default 10000
	CommissionPercent   float64 // per fill side, default 0.1
	WarmupBars          int     // bars skipped before trading, default 100
	LookbackBars        int     // indicator window bound, default 200
	RiskPercent         float64 // equity fraction risked per trade, default 1
	StopDistancePercent float64 // assumed stop distance for sizing, default 2

	// OnBar, when set, is called after each processed bar. Used by the CLI
	// to drive a progress bar; must not block.
	OnBar func(done, total int)
}

func (o Options) withDefaults() Options {
	if o.InitialEquity <= 0 {
		o.InitialEquity = 10000
	}
	if o.CommissionPercent == 0 {
		o.CommissionPercent = 0.1
	}
	if o.WarmupBars <= 0 {
		o.WarmupBars = 100
	}
	if o.LookbackBars <= 0 {
		o.LookbackBars = 200
	}
	if o.RiskPercent <= 0 {
		o.RiskPercent = 1
	}
	if o.StopDistancePercent <= 0 {
		o.StopDistancePercent = 2
	}
	return o
}

// Position is the open simulation position; at most one exists at a time.
type Position struct {
	Type       strategy.PositionType
	EntryPrice float64
	EntryTime  time.Time
	Quantity   float64
}

// Trade is the immutable record of a closed position.
type Trade struct {
	EntryTime     time.Time             `json:"entryTimestamp"`
	ExitTime      time.Time             `json:"exitTimestamp"`
	EntryPrice    float64               `json:"entryPrice"`
	ExitPrice     float64               `json:"exitPrice"`
	PositionType  strategy.PositionType `json:"positionType"`
	Quantity      float64               `json:"quantity"`
	Profit        float64               `json:"profit"`
	ProfitPercent float64               `json:"profitPercent"`
	Commission    float64               `json:"commission"`
	Duration      time.Duration         `json:"duration"`
}

// EquityPoint is one sample of the equity curve; recorded every bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// MonthlyReturn aggregates trade return percent per calendar month.
type MonthlyReturn struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Return float64 `json:"return"`
}

// Summary holds the run statistics.
type Summary struct {
	InitialEquity      float64 `json:"initialEquity"`
	FinalEquity        float64 `json:"finalEquity"`
	TotalReturnPercent float64 `json:"totalReturnPercent"`
	AnnualReturn       float64 `json:"annualReturn"`
	TotalTrades        int     `json:"totalTrades"`
	WinningTrades      int     `json:"winningTrades"`
	LosingTrades       int     `json:"losingTrades"`
	WinRate            float64 `json:"winRate"`
	ProfitFactor       float64 `json:"profitFactor"`
	SharpeRatio        float64 `json:"sharpeRatio"`
	MaxDrawdown        float64 `json:"maxDrawdown"`
	GrossProfit        float64 `json:"grossProfit"`
	GrossLoss          float64 `json:"grossLoss"`
}

// summaryAlias avoids MarshalJSON recursion.
type summaryAlias Summary

type summaryJSON struct {
	summaryAlias
	ProfitFactor *float64 `json:"profitFactor"`
}

// MarshalJSON encodes a ProfitFactor of +Inf (no losing trades) as null,
// since JSON has no infinity literal.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{summaryAlias: summaryAlias(s)}
	if !math.IsInf(s.ProfitFactor, 0) && !math.IsNaN(s.ProfitFactor) {
		pf := s.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a null profitFactor as +Inf.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var in summaryJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&in); err != nil {
		return err
	}
	*s = Summary(in.summaryAlias)
	if in.ProfitFactor == nil {
		s.ProfitFactor = math.Inf(1)
	} else {
		s.ProfitFactor = *in.ProfitFactor
	}
	return nil
}

// Result is the immutable outcome of one backtest run.
type Result struct {
	Summary        Summary         `json:"summary"`
	Trades         []Trade         `json:"trades"`
	EquityCurve    []EquityPoint   `json:"equityCurve"`
	MonthlyReturns []MonthlyReturn `json:"monthlyReturns"`
}

// InvalidInputError reports unusable historical data. It is fatal; the
// caller must supply corrected bars.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}
