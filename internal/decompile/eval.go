package decompile

import (
	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/qexpr"
)

// iterValue marks the placeholder pushed by OpForIter for the value
// produced by one iteration of the entity source. It only ever
// appears wrapped in a qexpr.Constant and never survives analysis.
type iterValue struct{}

// blockResult is the outcome of replaying one basic block.
//
// OnTrue and OnFalse are the operand stacks handed to the respective
// successors; they are equal for blocks that do not end in a
// conditional branch. Branch is the expression consumed by a
// terminating conditional branch, Yield the value passed to a
// projection-yield point, Return the value passed to a terminal
// return point (each nil when absent).
type blockResult struct {
	OnTrue  []qexpr.Expression
	OnFalse []qexpr.Expression
	Branch  qexpr.Expression
	HasJump bool
	JumpOp  bytecode.Opcode
	Target  int // resolved target offset, valid when HasJump
	Yield   qexpr.Expression
	Return  qexpr.Expression
}

// evaluator replays instructions against an explicit operand stack.
// One evaluator serves a whole analysis; it accumulates the declared
// local variable names in store order.
type evaluator struct {
	prog      *bytecode.Program
	localVars []string
}

func newEvaluator(p *bytecode.Program) *evaluator {
	return &evaluator{prog: p}
}

// evalBlock replays the instructions of one basic block against a
// copy of the input stack. The input slice is never mutated.
func (ev *evaluator) evalBlock(b basicBlock, input []qexpr.Expression) (*blockResult, error) {
	stack := make([]qexpr.Expression, len(input))
	copy(stack, input)

	res := &blockResult{}

	pop := func(offset int) (qexpr.Expression, error) {
		if len(stack) == 0 {
			return nil, malformedStream(offset, "operand stack underflow")
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, nil
	}
	popN := func(offset, n int) ([]qexpr.Expression, error) {
		if len(stack) < n {
			return nil, malformedStream(offset, "operand stack underflow: need %d operands, have %d", n, len(stack))
		}
		vals := make([]qexpr.Expression, n)
		copy(vals, stack[len(stack)-n:])
		stack = stack[:len(stack)-n]
		return vals, nil
	}
	push := func(e qexpr.Expression) { stack = append(stack, e) }

	for _, in := range ev.prog.Instructions[b.startIndex:b.endIndex] {
		switch in.Op {
		case bytecode.OpLoadConst:
			v, err := ev.prog.Const(in.Arg)
			if err != nil {
				return nil, malformedStream(in.Offset, "%v", err)
			}
			push(qexpr.Constant{Value: normalizeConstValue(v)})

		case bytecode.OpLoadLocal:
			name, err := ev.prog.Local(in.Arg)
			if err != nil {
				return nil, malformedStream(in.Offset, "%v", err)
			}
			push(qexpr.LocalRef{Name: name})

		case bytecode.OpLoadGlobal:
			name, err := ev.prog.Name(in.Arg)
			if err != nil {
				return nil, malformedStream(in.Offset, "%v", err)
			}
			push(qexpr.GlobalRef{Name: name})

		case bytecode.OpLoadBinding:
			name, err := ev.prog.Binding(in.Arg)
			if err != nil {
				return nil, malformedStream(in.Offset, "%v", err)
			}
			push(qexpr.BindingRef{Name: name})

		case bytecode.OpLoadAttr:
			name, err := ev.prog.Name(in.Arg)
			if err != nil {
				return nil, malformedStream(in.Offset, "%v", err)
			}
			base, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			push(qexpr.AttributeAccess{Base: base, Name: name})

		case bytecode.OpLoadIndex:
			base, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			push(qexpr.IndexAccess{Base: base, Index: in.Arg})

		case bytecode.OpStoreLocal:
			name, err := ev.prog.Local(in.Arg)
			if err != nil {
				return nil, malformedStream(in.Offset, "%v", err)
			}
			if _, err := pop(in.Offset); err != nil {
				return nil, err
			}
			ev.localVars = append(ev.localVars, name)

		case bytecode.OpCall:
			args, err := popN(in.Offset, in.Arg)
			if err != nil {
				return nil, err
			}
			callee, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			push(qexpr.Call{Callee: callee, Args: args})

		case bytecode.OpCallKw:
			names, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			kwNames, ok := keywordNames(names)
			if !ok {
				return nil, malformedStream(in.Offset, "keyword call without a constant name tuple")
			}
			if len(kwNames) > in.Arg {
				return nil, malformedStream(in.Offset, "keyword call with %d names but %d arguments", len(kwNames), in.Arg)
			}
			kwValues, err := popN(in.Offset, len(kwNames))
			if err != nil {
				return nil, err
			}
			positional, err := popN(in.Offset, in.Arg-len(kwNames))
			if err != nil {
				return nil, err
			}
			callee, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			kwArgs := make([]qexpr.KwArg, len(kwNames))
			for i, name := range kwNames {
				kwArgs[i] = qexpr.KwArg{Name: name, Value: kwValues[i]}
			}
			push(qexpr.Call{Callee: callee, Args: positional, KwArgs: kwArgs})

		case bytecode.OpUnaryPos, bytecode.OpUnaryNeg, bytecode.OpUnaryInvert:
			operand, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			push(qexpr.UnaryOp{Kind: unaryKindOf(in.Op), Operand: operand})

		case bytecode.OpUnaryNot:
			operand, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			push(qexpr.Negate(operand))

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
			bytecode.OpPow, bytecode.OpShl, bytecode.OpShr, bytecode.OpBitAnd, bytecode.OpBitXor,
			bytecode.OpBitOr:
			right, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			left, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			push(qexpr.BinaryOp{Kind: binaryKindOf(in.Op), Left: left, Right: right})

		case bytecode.OpCompare:
			if err := ev.pushComparison(&stack, in.Offset, qexpr.CompareOp(in.Arg), false); err != nil {
				return nil, err
			}

		case bytecode.OpContains:
			if err := ev.pushComparison(&stack, in.Offset, qexpr.CmpIn, in.Arg != 0); err != nil {
				return nil, err
			}

		case bytecode.OpIsOp:
			if err := ev.pushComparison(&stack, in.Offset, qexpr.CmpIs, in.Arg != 0); err != nil {
				return nil, err
			}

		case bytecode.OpBuildTuple:
			elems, err := popN(in.Offset, in.Arg)
			if err != nil {
				return nil, err
			}
			push(qexpr.Tuple{Elems: elems})

		case bytecode.OpBuildList:
			elems, err := popN(in.Offset, in.Arg)
			if err != nil {
				return nil, err
			}
			push(qexpr.Sequence{Elems: elems})

		case bytecode.OpUnpack:
			value, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			for i := in.Arg - 1; i >= 0; i-- {
				push(qexpr.IndexAccess{Base: value, Index: i})
			}

		case bytecode.OpPop:
			if _, err := pop(in.Offset); err != nil {
				return nil, err
			}

		case bytecode.OpForIter:
			push(qexpr.Constant{Value: iterValue{}})
			res.HasJump = true
			res.JumpOp = in.Op
			res.Target = ev.prog.ResolveTarget(in.Arg)

		case bytecode.OpJump:
			res.HasJump = true
			res.JumpOp = in.Op
			res.Target = ev.prog.ResolveTarget(in.Arg)

		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue,
			bytecode.OpJumpIfFalseOrPop, bytecode.OpJumpIfTrueOrPop:
			tested, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			res.Branch = tested
			res.HasJump = true
			res.JumpOp = in.Op
			res.Target = ev.prog.ResolveTarget(in.Arg)

		case bytecode.OpYield:
			value, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			res.Yield = value

		case bytecode.OpReturn:
			value, err := pop(in.Offset)
			if err != nil {
				return nil, err
			}
			res.Return = value

		default:
			return nil, malformedStream(in.Offset, "unrecognized instruction %s", in.Op)
		}
	}

	res.OnTrue = stack
	res.OnFalse = stack
	switch res.JumpOp {
	case bytecode.OpJumpIfTrueOrPop:
		// The tested value survives along the short-circuit (true)
		// edge and is popped for the fall-through.
		res.OnTrue = append(append([]qexpr.Expression{}, stack...), res.Branch)
	case bytecode.OpJumpIfFalseOrPop:
		res.OnFalse = append(append([]qexpr.Expression{}, stack...), res.Branch)
	}
	return res, nil
}

func (ev *evaluator) pushComparison(stack *[]qexpr.Expression, offset int, op qexpr.CompareOp, invert bool) error {
	if len(*stack) < 2 {
		return malformedStream(offset, "operand stack underflow: comparison needs 2 operands, have %d", len(*stack))
	}
	right := (*stack)[len(*stack)-1]
	left := (*stack)[len(*stack)-2]
	*stack = (*stack)[:len(*stack)-2]
	comp := qexpr.Comparison{Op: op, Left: left, Right: right}
	if invert {
		*stack = append(*stack, qexpr.Negate(comp))
	} else {
		*stack = append(*stack, comp)
	}
	return nil
}

func unaryKindOf(op bytecode.Opcode) qexpr.UnaryKind {
	switch op {
	case bytecode.OpUnaryNeg:
		return qexpr.UnaryNeg
	case bytecode.OpUnaryInvert:
		return qexpr.UnaryInvert
	default:
		return qexpr.UnaryPos
	}
}

func binaryKindOf(op bytecode.Opcode) qexpr.BinaryKind {
	switch op {
	case bytecode.OpAdd:
		return qexpr.BinAdd
	case bytecode.OpSub:
		return qexpr.BinSub
	case bytecode.OpMul:
		return qexpr.BinMul
	case bytecode.OpDiv:
		return qexpr.BinDiv
	case bytecode.OpMod:
		return qexpr.BinMod
	case bytecode.OpPow:
		return qexpr.BinPow
	case bytecode.OpShl:
		return qexpr.BinShl
	case bytecode.OpShr:
		return qexpr.BinShr
	case bytecode.OpBitAnd:
		return qexpr.BinAnd
	case bytecode.OpBitXor:
		return qexpr.BinXor
	default:
		return qexpr.BinOr
	}
}

// keywordNames extracts the name list from the constant tuple a
// keyword call carries on top of the stack.
func keywordNames(e qexpr.Expression) ([]string, bool) {
	c, ok := e.(qexpr.Constant)
	if !ok {
		return nil, false
	}
	switch v := c.Value.(type) {
	case []string:
		return v, true
	case []any:
		names := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			names[i] = s
		}
		return names, true
	}
	return nil, false
}

// normalizeConstValue widens machine integers so constants compare
// uniformly regardless of how the program was produced.
func normalizeConstValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return v
}
