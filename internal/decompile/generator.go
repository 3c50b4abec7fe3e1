package decompile

import (
	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/qexpr"
)

// structureGenerator reduces the node list of a generator-shaped
// program to a predicate and a projection.
//
// The canonical loop shape is: an inert prologue loading the iterator,
// a head node driving it, zero or more condition nodes, a body node
// yielding the projection, and an epilogue returning. Condition edges
// into the body mean the filter passed; edges back to the head mean it
// failed and the next iteration begins.
func (an *analyzer) structureGenerator(nodes []blockNode) (*CodeExpression, error) {
	for len(nodes) > 0 && inertNode(nodes[0]) {
		nodes = nodes[1:]
	}
	if len(nodes) == 0 || nodes[len(nodes)-1].ret == nil {
		return nil, malformedStream(-1, "iterator loop without a return epilogue")
	}
	nodes = nodes[:len(nodes)-1]

	if len(nodes) < 2 {
		return nil, malformedStream(-1, "iterator loop needs a head and a body, have %d nodes", len(nodes))
	}
	head := nodes[0]
	body := nodes[len(nodes)-1]
	if !head.hasJump || head.jumpOp != bytecode.OpForIter {
		return nil, malformedStream(head.startOffset, "iterator loop does not start with a %s head", bytecode.OpForIter)
	}
	if body.yield == nil {
		return nil, malformedStream(body.startOffset, "iterator loop body does not yield a projection")
	}

	a := newArena()
	ids := make([]nodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = a.add(n.expr)
		a.at(ids[i]).offset = n.startOffset
	}
	headID, bodyID := ids[0], ids[len(ids)-1]
	trueN := a.add(qexpr.Constant{Value: true})
	falseN := a.add(qexpr.Constant{Value: false})

	// An edge target inside a collapsed region resolves to the node
	// that absorbed it.
	resolve := func(off int) nodeID {
		if off < 0 {
			return noNode
		}
		for i, n := range nodes {
			if n.startOffset >= off {
				return ids[i]
			}
		}
		return noNode
	}
	for i, n := range nodes {
		a.setTargets(ids[i], resolve(n.trueOff), resolve(n.falseOff))
	}
	a.setTargets(headID, noNode, noNode)
	a.setTargets(bodyID, noNode, noNode)

	conds := make([]nodeID, 0, len(ids)-2)
	for _, id := range ids[1 : len(ids)-1] {
		// Splice inert forwarding nodes out of the graph.
		n := a.at(id)
		if n.expr == nil && n.onTrue == n.onFalse && n.onTrue != noNode {
			succ := n.onTrue
			a.setTargets(id, noNode, noNode)
			a.seizeOrigins(succ, id)
			continue
		}
		conds = append(conds, id)
	}

	expr := &CodeExpression{LocalVars: an.ev.localVars, Projection: body.yield}
	if len(conds) == 0 {
		return expr, nil
	}

	for _, id := range conds {
		n := a.at(id)
		switch n.onTrue {
		case bodyID:
			a.setOnTrue(id, trueN)
		case headID:
			a.setOnTrue(id, falseN)
		}
		switch n.onFalse {
		case bodyID:
			a.setOnFalse(id, trueN)
		case headID:
			a.setOnFalse(id, falseN)
		}
		if n.onTrue == noNode || n.onFalse == noNode {
			return nil, irreducibleFlow("condition at offset %d branches out of the loop", n.offset)
		}
	}

	predicate, err := a.structureRegion(conds, trueN, falseN)
	if err != nil {
		return nil, err
	}
	expr.Predicate = predicate
	return expr, nil
}

// structureExpression handles expression-shaped programs: a single
// straight-line computation ending in a return.
func (an *analyzer) structureExpression(nodes []blockNode) (*CodeExpression, error) {
	if len(nodes) != 1 {
		return nil, irreducibleFlow("expression program with %d control flow nodes", len(nodes))
	}
	n := nodes[0]
	if n.ret == nil {
		return nil, malformedStream(n.startOffset, "expression program does not return a value")
	}

	locals := make([]string, 0, len(an.prog.Locals))
	for _, name := range an.prog.Locals {
		if name != bytecode.IterArg {
			locals = append(locals, name)
		}
	}
	return &CodeExpression{LocalVars: locals, Return: n.ret}, nil
}

// inertNode reports whether a node neither tests, jumps, yields nor
// returns; the loop prologue is the canonical example.
func inertNode(n blockNode) bool {
	return !n.hasJump && n.expr == nil && n.yield == nil && n.ret == nil
}
