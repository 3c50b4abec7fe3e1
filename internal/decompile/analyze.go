package decompile

import (
	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/qexpr"
)

// CodeExpression is the structured result of analyzing one program.
type CodeExpression struct {
	// LocalVars lists the entity aliases the program declares, in
	// declaration order (1:1 with the declared entity types).
	LocalVars []string

	// Predicate is the structured filter/join condition, nil when the
	// program has no conditional part.
	Predicate qexpr.Expression

	// Projection is the value passed to the yield point of a
	// generator-shaped program.
	Projection qexpr.Expression

	// Return is the value of an expression-shaped (non-generator)
	// program.
	Return qexpr.Expression
}

// blockNode captures one basic block's contribution to the control
// flow graph: its tested expression (nil while opaque) and successor
// offsets. Collapsed value regions never surface here.
type blockNode struct {
	startOffset int
	expr        qexpr.Expression
	jumpOp      bytecode.Opcode
	hasJump     bool
	trueOff     int // -1 when terminal
	falseOff    int
	yield       qexpr.Expression
	ret         qexpr.Expression
}

type analyzer struct {
	prog   *bytecode.Program
	blocks []basicBlock
	ev     *evaluator
}

// Analyze reconstructs the structured expressions of a program.
//
// Generator-shaped programs (an iterator loop with a yield point)
// produce a predicate and a projection; expression-shaped programs
// produce a return value. Failures are *StructureError.
func Analyze(p *bytecode.Program) (*CodeExpression, error) {
	if len(p.Instructions) == 0 {
		return nil, malformedStream(-1, "empty instruction stream")
	}

	an := &analyzer{
		prog:   p,
		blocks: partitionBlocks(p),
		ev:     newEvaluator(p),
	}

	nodes, stack, err := an.walk(0, len(an.blocks), nil)
	if err != nil {
		return nil, err
	}
	if len(stack) != 0 {
		return nil, malformedStream(-1, "operand stack not empty after replay (%d values left)", len(stack))
	}

	if an.isGenerator() {
		return an.structureGenerator(nodes)
	}
	return an.structureExpression(nodes)
}

func (an *analyzer) isGenerator() bool {
	for _, in := range an.prog.Instructions {
		if in.Op == bytecode.OpForIter {
			return true
		}
	}
	return false
}

// walk evaluates blocks [from, to) in order, threading the operand
// stack along fall-through edges. Short-circuit value regions and
// conditional-expression diamonds are collapsed back into stack
// values; every other block surfaces as one graph node.
func (an *analyzer) walk(from, to int, stack []qexpr.Expression) ([]blockNode, []qexpr.Expression, error) {
	var nodes []blockNode

	i := from
	for i < to {
		b := an.blocks[i]

		// Short-circuit branches introduce a stand-alone boolean
		// region whose folded expression re-enters the stack as an
		// ordinary value.
		if last := b.lastInstr(an.prog); last.Op.IsShortCircuit() {
			value, next, rest, err := an.valueRegion(i, stack)
			if err != nil {
				return nil, nil, err
			}
			stack = append(rest, value)
			i = next
			continue
		}

		res, err := an.ev.evalBlock(b, stack)
		if err != nil {
			return nil, nil, err
		}

		// A forward pop-jump may open a conditional-expression
		// diamond (two value arms converging on a join); try that
		// shape before treating the block as a condition node.
		if res.HasJump && res.JumpOp == bytecode.OpJumpIfFalse && res.Target > b.startOffset {
			if value, next, rest, ok, err := an.conditionalDiamond(i, res); err != nil {
				return nil, nil, err
			} else if ok {
				stack = append(rest, value)
				i = next
				continue
			}
		}

		node := blockNode{
			startOffset: b.startOffset,
			expr:        res.Branch,
			jumpOp:      res.JumpOp,
			hasJump:     res.HasJump,
			yield:       res.Yield,
			ret:         res.Return,
		}

		fallthroughOff := -1
		if i+1 < to {
			fallthroughOff = an.blocks[i+1].startOffset
		}
		switch {
		case !res.HasJump:
			node.trueOff, node.falseOff = fallthroughOff, fallthroughOff
		case res.JumpOp == bytecode.OpJump:
			node.trueOff, node.falseOff = res.Target, res.Target
		case res.JumpOp == bytecode.OpForIter:
			// The iterator's false edge exits the loop.
			node.trueOff, node.falseOff = fallthroughOff, res.Target
		case res.JumpOp == bytecode.OpJumpIfFalse:
			node.trueOff, node.falseOff = fallthroughOff, res.Target
		case res.JumpOp == bytecode.OpJumpIfTrue:
			node.trueOff, node.falseOff = res.Target, fallthroughOff
		}

		nodes = append(nodes, node)
		stack = res.OnTrue
		if res.JumpOp == bytecode.OpJumpIfTrue {
			stack = res.OnFalse
		}
		i++
	}

	return nodes, stack, nil
}

// valueRegion collapses the stand-alone boolean region opened by a
// short-circuit branch at block i into a single expression. It
// returns the folded expression, the index of the join block where
// evaluation resumes, and the operand stack to resume with (minus the
// folded value).
func (an *analyzer) valueRegion(i int, stack []qexpr.Expression) (qexpr.Expression, int, []qexpr.Expression, error) {
	b := an.blocks[i]
	res, err := an.ev.evalBlock(b, stack)
	if err != nil {
		return nil, 0, nil, err
	}
	join := res.Target

	a := newArena()
	trueN := a.add(qexpr.Constant{Value: true})
	falseN := a.add(qexpr.Constant{Value: false})

	var region []nodeID
	link := func(id nodeID) {
		if len(region) > 0 {
			prev := region[len(region)-1]
			if a.at(prev).onTrue == noNode {
				a.setOnTrue(prev, id)
			} else {
				a.setOnFalse(prev, id)
			}
		}
		region = append(region, id)
	}
	addTest := func(tested qexpr.Expression, op bytecode.Opcode) {
		id := a.add(tested)
		if op == bytecode.OpJumpIfTrueOrPop {
			a.setOnTrue(id, trueN)
		} else {
			a.setOnFalse(id, falseN)
		}
		link(id)
	}

	addTest(res.Branch, res.JumpOp)
	cur := res.OnFalse // popped side
	if res.JumpOp == bytecode.OpJumpIfFalseOrPop {
		cur = res.OnTrue
	}

	i++
	for {
		if i >= len(an.blocks) {
			return nil, 0, nil, irreducibleFlow("short-circuit region runs past the end of the stream")
		}
		b = an.blocks[i]
		if b.startOffset >= join {
			return nil, 0, nil, irreducibleFlow("short-circuit region reaches its join at offset %d without a value", join)
		}

		if last := b.lastInstr(an.prog); last.Op.IsShortCircuit() && an.prog.ResolveTarget(last.Arg) != join {
			// A nested region with its own join: its value feeds a
			// later test in this region.
			value, next, rest, err := an.valueRegion(i, cur)
			if err != nil {
				return nil, 0, nil, err
			}
			cur = append(rest, value)
			i = next
			continue
		}

		res, err = an.ev.evalBlock(b, cur)
		if err != nil {
			return nil, 0, nil, err
		}

		switch {
		case res.HasJump && res.JumpOp.IsShortCircuit() && res.Target == join:
			addTest(res.Branch, res.JumpOp)
			cur = res.OnFalse
			if res.JumpOp == bytecode.OpJumpIfFalseOrPop {
				cur = res.OnTrue
			}
			i++

		case res.Yield != nil || res.Return != nil:
			return nil, 0, nil, irreducibleFlow("short-circuit region contains a terminator")

		case !res.HasJump || res.JumpOp == bytecode.OpJump && res.Target == join:
			// The residual value: when every short-circuit test fell
			// through, the region's result is this value itself.
			out := res.OnTrue
			if len(out) == 0 {
				return nil, 0, nil, malformedStream(b.startOffset, "short-circuit region left no value on the stack")
			}
			value := out[len(out)-1]
			id := a.add(value)
			a.setOnTrue(id, trueN)
			a.setOnFalse(id, falseN)
			link(id)

			expr, err := a.structureRegion(region, trueN, falseN)
			if err != nil {
				return nil, 0, nil, err
			}
			next, ok := blockIndexAt(an.blocks, join)
			if !ok {
				return nil, 0, nil, malformedStream(join, "short-circuit join is not a block boundary")
			}
			return expr, next, out[:len(out)-1], nil

		default:
			return nil, 0, nil, irreducibleFlow("unexpected control flow inside a short-circuit region")
		}

		if !res.HasJump && i < len(an.blocks) && an.blocks[i].startOffset > join {
			return nil, 0, nil, irreducibleFlow("short-circuit region overran its join at offset %d", join)
		}
	}
}

// conditionalDiamond tries to collapse a pop-jump at block i into a
// conditional expression: a then-arm ending in an unconditional
// forward jump, an else-arm starting at the pop-jump's target, both
// arms producing exactly one value and converging on the same join.
// Returns ok=false when the shape does not match (the block is then
// an ordinary condition node).
func (an *analyzer) conditionalDiamond(i int, res *blockResult) (qexpr.Expression, int, []qexpr.Expression, bool, error) {
	elseIdx, ok := blockIndexAt(an.blocks, res.Target)
	if !ok || elseIdx <= i+1 {
		return nil, 0, nil, false, nil
	}

	thenLast := an.blocks[elseIdx-1].lastInstr(an.prog)
	if thenLast.Op != bytecode.OpJump {
		return nil, 0, nil, false, nil
	}
	join := an.prog.ResolveTarget(thenLast.Arg)
	if join <= res.Target {
		return nil, 0, nil, false, nil
	}
	joinIdx, ok := blockIndexAt(an.blocks, join)
	if !ok {
		return nil, 0, nil, false, nil
	}

	thenOut, ok, err := an.evalArm(i+1, elseIdx, join, res.OnTrue)
	if err != nil || !ok {
		return nil, 0, nil, false, err
	}
	elseOut, ok, err := an.evalArm(elseIdx, joinIdx, join, res.OnFalse)
	if err != nil || !ok {
		return nil, 0, nil, false, err
	}
	if len(thenOut) != len(res.OnTrue)+1 || len(elseOut) != len(thenOut) {
		return nil, 0, nil, false, nil
	}

	cond := qexpr.Conditional{
		Cond: res.Branch,
		Then: thenOut[len(thenOut)-1],
		Else: elseOut[len(elseOut)-1],
	}
	return cond, joinIdx, thenOut[:len(thenOut)-1], true, nil
}

// evalArm evaluates one diamond arm: blocks [from, to) must reduce to
// pure value computation, with at most a final unconditional jump to
// the join. Returns ok=false when the arm contains real control flow.
func (an *analyzer) evalArm(from, to, join int, stack []qexpr.Expression) ([]qexpr.Expression, bool, error) {
	nodes, out, err := an.walk(from, to, stack)
	if err != nil {
		// Arm evaluation reuses the general walker; a structural
		// mismatch means this is not a diamond, not a fatal error.
		if IsIrreducibleFlow(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	for _, n := range nodes {
		if n.expr != nil || n.yield != nil || n.ret != nil {
			return nil, false, nil
		}
		// Pure value blocks either fall through toward the join or end
		// in an unconditional jump straight to it.
		if n.hasJump && !(n.jumpOp == bytecode.OpJump && n.trueOff == join) {
			return nil, false, nil
		}
	}
	return out, true, nil
}
