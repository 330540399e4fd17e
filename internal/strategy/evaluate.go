package strategy

import (
	"fmt"
	"log"

	"backtest-core/internal/indicators"
)

// snapshot selects which bar/indicator state an operand is read from.
// Crossover conditions evaluate their operands under both snapshots.
type snapshot int

const (
	snapCurrent snapshot = iota
	snapPrevious
)

type memoKey struct {
	nodeID string
	handle string
	snap   snapshot
}

// evaluation is the per-Execute state: a memo cache so shared upstream
// nodes are computed once per bar, and an in-progress set guarding
// against runtime cycles. It is discarded when Execute returns; nothing
// is memoized across bars.
type evaluation struct {
	frame *Frame
	cache map[memoKey]any
	stack map[string]bool
}

// Execute evaluates the strategy for one bar. held is the type of the
// currently open position, or PositionNone when flat. It returns an
// ENTRY/EXIT signal or nil.
func (c *Compiled) Execute(frame *Frame, held PositionType) *Signal {
	if frame == nil || frame.Current == nil {
		return nil
	}
	ev := &evaluation{
		frame: frame,
		cache: make(map[memoKey]any),
		stack: make(map[string]bool),
	}

	// Exit conditions take priority over entries.
	for _, exit := range c.exits {
		edges := c.incoming[edgeKey{exit.id, "signal"}]
		if len(edges) == 0 {
			continue
		}
		fired := toBool(ev.eval(c, edges[0].Source, edges[0].SourceHandle, snapCurrent))
		if fired && held != PositionNone && held == exit.action.positionType {
			return &Signal{Action: ActionExit, PositionType: exit.action.positionType, Price: frame.Current.Close}
		}
	}

	if held == PositionNone {
		for _, entry := range c.entries {
			edges := c.incoming[edgeKey{entry.id, "signal"}]
			if len(edges) == 0 {
				continue
			}
			if toBool(ev.eval(c, edges[0].Source, edges[0].SourceHandle, snapCurrent)) {
				return &Signal{Action: ActionEntry, PositionType: entry.action.positionType, Price: frame.Current.Close}
			}
		}
	}

	return nil
}

// eval computes one node output under a snapshot, memoized per Execute
// call. Failures are absorbed at the node boundary: the node's value
// becomes nil (null), which downstream conditions treat as false. A
// single malformed node therefore never aborts the bar.
func (ev *evaluation) eval(c *Compiled, nodeID, handle string, snap snapshot) any {
	key := memoKey{nodeID, handle, snap}
	if v, ok := ev.cache[key]; ok {
		return v
	}

	var result any
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		result, err = ev.evalNode(c, nodeID, handle, snap)
		return
	}()
	if err != nil {
		log.Printf("strategy: node %s evaluation failed (treated as null): %v", nodeID, err)
		result = nil
	}

	ev.cache[key] = result
	return result
}

func (ev *evaluation) evalNode(c *Compiled, nodeID, handle string, snap snapshot) (any, error) {
	cn, ok := c.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", nodeID)
	}

	if ev.stack[nodeID] {
		return nil, fmt.Errorf("evaluation cycle through node %s", nodeID)
	}
	ev.stack[nodeID] = true
	defer delete(ev.stack, nodeID)

	switch cn.kind {
	case NodePrice:
		bar := ev.frame.Current
		if snap == snapPrevious {
			bar = ev.frame.Previous
		}
		if bar == nil {
			return nil, nil
		}
		v, err := bar.Field(handle)
		if err != nil {
			return nil, err
		}
		return v, nil

	case NodeIndicator:
		inds := ev.frame.Indicators
		if snap == snapPrevious {
			inds = ev.frame.PrevIndicators
		}
		res, ok := inds[nodeID]
		if !ok {
			return nil, nil
		}
		v := res.Last(handle)
		if indicators.IsNull(v) {
			return nil, nil
		}
		return v, nil

	case NodeCondition:
		return ev.evalCondition(c, cn, snap)

	case NodeLogic:
		allTrue := true
		anyTrue := false
		for _, e := range c.incomingAll[cn.id] {
			v := toBool(ev.eval(c, e.Source, e.SourceHandle, snap))
			allTrue = allTrue && v
			anyTrue = anyTrue || v
		}
		if cn.logic.op == LogicAnd {
			return allTrue, nil
		}
		return anyTrue, nil
	}

	return nil, fmt.Errorf("node kind %q is not evaluable", cn.kind)
}

func (ev *evaluation) evalCondition(c *Compiled, cn *compiledNode, snap snapshot) (any, error) {
	operand := func(input string, s snapshot) (float64, bool) {
		if input == "b" && cn.cond.hasThresh {
			return cn.cond.threshold, true
		}
		edges := c.incoming[edgeKey{cn.id, input}]
		if len(edges) == 0 {
			return 0, false
		}
		return toFloat(ev.eval(c, edges[0].Source, edges[0].SourceHandle, s))
	}

	a, okA := operand("a", snap)
	b, okB := operand("b", snap)
	// Null operands make the condition false, never an error.
	if !okA || !okB {
		return false, nil
	}

	switch cn.cond.op {
	case OpGT:
		return a > b, nil
	case OpLT:
		return a < b, nil
	case OpEQ:
		// Strict float equality by policy; thresholds are compared as-is.
		return a == b, nil
	case OpGTE:
		return a >= b, nil
	case OpLTE:
		return a <= b, nil
	case OpCrossAbove, OpCrossBelow:
		// A crossover of a crossover has no meaning one bar further back.
		if snap == snapPrevious {
			return false, nil
		}
		prevA, okPA := operand("a", snapPrevious)
		prevB, okPB := operand("b", snapPrevious)
		if !okPA || !okPB {
			return false, nil
		}
		if cn.cond.op == OpCrossAbove {
			return prevA <= prevB && a > b, nil
		}
		return prevA >= prevB && a < b, nil
	}

	return nil, fmt.Errorf("unsupported condition type %q", cn.cond.op)
}

// toFloat interprets a node output as a number; nil and non-numeric
// outputs report false.
func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// toBool interprets a node output as a boolean; only an explicit true
// counts, matching the strict comparison in the logic semantics.
func toBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
