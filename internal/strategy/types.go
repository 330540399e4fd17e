package strategy

import (
	"fmt"
	"strconv"

	"backtest-core/internal/indicators"
	"backtest-core/internal/market"
)

// NodeKind discriminates the node variants of a strategy graph.
type NodeKind string

const (
	NodePrice     NodeKind = "price"
	NodeIndicator NodeKind = "indicator"
	NodeCondition NodeKind = "condition"
	NodeLogic     NodeKind = "logic"
	NodeEntry     NodeKind = "entry"
	NodeExit      NodeKind = "exit"
)

// PositionType is the direction of a position or an entry/exit node.
type PositionType string

const (
	PositionNone  PositionType = ""
	PositionLong  PositionType = "LONG"
	PositionShort PositionType = "SHORT"
)

// SignalAction is what a compiled strategy asks the engine to do.
type SignalAction string

const (
	ActionEntry SignalAction = "ENTRY"
	ActionExit  SignalAction = "EXIT"
)

// Signal is the per-bar instruction emitted by a compiled strategy.
type Signal struct {
	Action       SignalAction
	PositionType PositionType
	Price        float64
}

// Node is one vertex of the strategy graph. Data holds kind-specific
// parameters and is what parameter overrides merge into.
type Node struct {
	ID   string         `json:"id" yaml:"id"`
	Kind NodeKind       `json:"type" yaml:"kind"`
	Data map[string]any `json:"data" yaml:"data"`
}

// Edge connects a named output handle of one node to a named input handle
// of another.
type Edge struct {
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle"`
	Target       string `json:"target" yaml:"target"`
	TargetHandle string `json:"targetHandle" yaml:"targetHandle"`
}

// Graph is the declarative strategy definition produced by the visual
// editor.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Frame is the per-bar evaluation context. Indicators reflect state
// through the current bar; PrevIndicators reflect state as of the prior
// bar, which crossover conditions need.
type Frame struct {
	Current        *market.Bar
	Previous       *market.Bar
	Indicators     map[string]indicators.Result
	PrevIndicators map[string]indicators.Result
}

// Condition operators.
const (
	OpGT         = "GT"
	OpLT         = "LT"
	OpEQ         = "EQ"
	OpGTE        = "GTE"
	OpLTE        = "LTE"
	OpCrossAbove = "CROSS_ABOVE"
	OpCrossBelow = "CROSS_BELOW"
)

// Logic operators.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// conditionParams is the decoded form of a condition node's data.
type conditionParams struct {
	op        string
	threshold float64
	hasThresh bool
}

// logicParams is the decoded form of a logic node's data.
type logicParams struct {
	op string
}

// actionParams is the decoded form of an entry/exit node's data.
type actionParams struct {
	positionType PositionType
}

// IndicatorSpec names an indicator node together with its typed
// parameters; the backtest engine uses it to compute exactly the
// indicators the graph references.
type IndicatorSpec struct {
	NodeID string
	Type   string
	Params indicators.Params
}

// numField extracts a numeric value from node data, accepting the types
// JSON and YAML decoding (and parameter overrides) can produce.
func numField(data map[string]any, key string) (float64, bool) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func intField(data map[string]any, key string) int {
	f, ok := numField(data, key)
	if !ok {
		return 0
	}
	return int(f)
}

func stringField(data map[string]any, key string) string {
	if raw, ok := data[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func indicatorParams(data map[string]any) indicators.Params {
	return indicators.Params{
		Period:       intField(data, "period"),
		FastPeriod:   intField(data, "fastPeriod"),
		SlowPeriod:   intField(data, "slowPeriod"),
		SignalPeriod: intField(data, "signalPeriod"),
		KPeriod:      intField(data, "kPeriod"),
		DPeriod:      intField(data, "dPeriod"),
		Slowing:      intField(data, "slowing"),
		StdDev: func() float64 {
			v, _ := numField(data, "stdDev")
			return v
		}(),
	}
}

func positionTypeField(data map[string]any) (PositionType, error) {
	switch s := stringField(data, "positionType"); s {
	case string(PositionLong):
		return PositionLong, nil
	case string(PositionShort):
		return PositionShort, nil
	case "":
		return PositionNone, fmt.Errorf("positionType missing")
	default:
		return PositionNone, fmt.Errorf("unknown positionType %q", s)
	}
}
