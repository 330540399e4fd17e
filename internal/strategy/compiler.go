package strategy

import (
	"backtest-core/internal/indicators"
)

// Overrides maps node id -> parameter name -> value. Override values
// replace same-named keys in the node's data, last write wins.
type Overrides map[string]map[string]any

// compiledNode is a graph node with merged parameters decoded into the
// typed form its kind needs.
type compiledNode struct {
	id     string
	kind   NodeKind
	data   map[string]any
	cond   *conditionParams
	logic  *logicParams
	action *actionParams

	indType   string
	indParams indicators.Params
}

type edgeKey struct {
	target string
	handle string
}

// Compiled is an executable strategy. It is immutable after Compile and
// safe to share across goroutines; all per-execution state lives in the
// memo cache created inside Execute.
type Compiled struct {
	nodes       map[string]*compiledNode
	incoming    map[edgeKey][]Edge
	incomingAll map[string][]Edge
	entries     []*compiledNode
	exits       []*compiledNode
	priceID     string
}

// Compile validates the graph, merges parameter overrides into node data
// and builds the adjacency indexes the evaluator needs.
func Compile(g *Graph, overrides Overrides) (*Compiled, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, compileErrf("", "graph has no nodes")
	}

	c := &Compiled{
		nodes:       make(map[string]*compiledNode, len(g.Nodes)),
		incoming:    make(map[edgeKey][]Edge, len(g.Edges)),
		incomingAll: make(map[string][]Edge, len(g.Edges)),
	}

	for _, e := range g.Edges {
		c.incoming[edgeKey{e.Target, e.TargetHandle}] = append(c.incoming[edgeKey{e.Target, e.TargetHandle}], e)
		c.incomingAll[e.Target] = append(c.incomingAll[e.Target], e)
	}

	priceCount := 0
	for _, n := range g.Nodes {
		if _, dup := c.nodes[n.ID]; dup {
			return nil, compileErrf(n.ID, "duplicate node id")
		}

		cn := &compiledNode{id: n.ID, kind: n.Kind, data: mergeData(n.Data, overrides[n.ID])}

		switch n.Kind {
		case NodePrice:
			priceCount++
			c.priceID = n.ID

		case NodeIndicator:
			cn.indType = stringField(cn.data, "indicatorType")
			if !indicators.Known(cn.indType) {
				return nil, compileErrf(n.ID, "unknown indicator type %q", cn.indType)
			}
			cn.indParams = indicatorParams(cn.data)

		case NodeCondition:
			op := stringField(cn.data, "conditionType")
			if op == "" {
				op = OpGT
			}
			switch op {
			case OpGT, OpLT, OpEQ, OpGTE, OpLTE, OpCrossAbove, OpCrossBelow:
			default:
				return nil, compileErrf(n.ID, "unknown condition type %q", op)
			}
			thresh, hasThresh := numField(cn.data, "threshold")
			cn.cond = &conditionParams{op: op, threshold: thresh, hasThresh: hasThresh}

			if len(c.incoming[edgeKey{n.ID, "a"}]) == 0 {
				return nil, compileErrf(n.ID, "condition missing input a")
			}
			if !hasThresh && len(c.incoming[edgeKey{n.ID, "b"}]) == 0 {
				return nil, compileErrf(n.ID, "condition missing input b and no threshold set")
			}

		case NodeLogic:
			op := stringField(cn.data, "logicType")
			if op == "" {
				op = LogicAnd
			}
			if op != LogicAnd && op != LogicOr {
				return nil, compileErrf(n.ID, "unknown logic type %q", op)
			}
			cn.logic = &logicParams{op: op}
			if len(c.incomingAll[n.ID]) < 2 {
				return nil, compileErrf(n.ID, "logic node requires at least 2 inputs, has %d", len(c.incomingAll[n.ID]))
			}

		case NodeEntry, NodeExit:
			pt, err := positionTypeField(cn.data)
			if err != nil {
				return nil, compileErrf(n.ID, "%v", err)
			}
			cn.action = &actionParams{positionType: pt}
			if n.Kind == NodeEntry {
				c.entries = append(c.entries, cn)
			} else {
				c.exits = append(c.exits, cn)
			}

		default:
			return nil, compileErrf(n.ID, "unknown node type %q", n.Kind)
		}

		c.nodes[n.ID] = cn
	}

	if priceCount != 1 {
		return nil, compileErrf("", "graph must contain exactly one price node, found %d", priceCount)
	}

	for _, e := range g.Edges {
		if _, ok := c.nodes[e.Source]; !ok {
			return nil, compileErrf(e.Source, "edge references unknown source node")
		}
		if _, ok := c.nodes[e.Target]; !ok {
			return nil, compileErrf(e.Target, "edge references unknown target node")
		}
	}

	if err := c.checkCycles(); err != nil {
		return nil, err
	}

	return c, nil
}

// RequiredIndicators lists the indicator nodes the graph references so the
// engine computes only those.
func (c *Compiled) RequiredIndicators() []IndicatorSpec {
	var specs []IndicatorSpec
	for _, cn := range c.nodes {
		if cn.kind == NodeIndicator {
			specs = append(specs, IndicatorSpec{NodeID: cn.id, Type: cn.indType, Params: cn.indParams})
		}
	}
	return specs
}

// dependencyEdges returns the incoming edges the evaluator would follow
// out of a node; used for compile-time cycle detection.
func (c *Compiled) dependencyEdges(cn *compiledNode) []Edge {
	switch cn.kind {
	case NodeCondition:
		deps := c.incoming[edgeKey{cn.id, "a"}]
		if !cn.cond.hasThresh {
			deps = append(deps[:len(deps):len(deps)], c.incoming[edgeKey{cn.id, "b"}]...)
		}
		return deps
	case NodeLogic:
		return c.incomingAll[cn.id]
	case NodeEntry, NodeExit:
		return c.incoming[edgeKey{cn.id, "signal"}]
	}
	return nil
}

func (c *Compiled) checkCycles() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int, len(c.nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return compileErrf(id, "cycle detected in strategy graph")
		case black:
			return nil
		}
		color[id] = grey
		for _, e := range c.dependencyEdges(c.nodes[id]) {
			if err := visit(e.Source); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for id := range c.nodes {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func mergeData(data, override map[string]any) map[string]any {
	merged := make(map[string]any, len(data)+len(override))
	for k, v := range data {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
