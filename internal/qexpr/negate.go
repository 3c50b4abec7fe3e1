package qexpr

import "fmt"

// negatedCompareOp maps each comparison operator to its logical
// complement. The mapping is an involution: applying it twice yields
// the original operator.
var negatedCompareOp = map[CompareOp]CompareOp{
	CmpEq:    CmpNe,
	CmpNe:    CmpEq,
	CmpLt:    CmpGe,
	CmpGe:    CmpLt,
	CmpLe:    CmpGt,
	CmpGt:    CmpLe,
	CmpIn:    CmpNotIn,
	CmpNotIn: CmpIn,
	CmpIs:    CmpIsNot,
	CmpIsNot: CmpIs,
}

// Negate returns the logical complement of an expression.
//
// This is the single polarity-inversion mechanism used by the graph
// structuring engine: edge-color normalization twists a node by
// swapping its successor edges and negating its expression, never by
// special-casing individual operators.
//
// Comparisons map to their complemented operator, a Negation unwraps,
// Boolean constants flip, and conjunctions/disjunctions distribute
// per De Morgan. Calls and other Boolean-opaque nodes are wrapped in
// a Negation node.
func Negate(e Expression) Expression {
	switch expr := e.(type) {
	case Comparison:
		return Comparison{Op: negatedCompareOp[expr.Op], Left: expr.Left, Right: expr.Right}
	case Negation:
		return expr.Operand
	case Constant:
		if b, ok := expr.Value.(bool); ok {
			return Constant{Value: !b}
		}
		return Negation{Operand: expr}
	case Conjunction:
		negated := make([]Expression, len(expr.Operands))
		for i, op := range expr.Operands {
			negated[i] = Negate(op)
		}
		return Disjunction{Operands: negated}
	case Disjunction:
		negated := make([]Expression, len(expr.Operands))
		for i, op := range expr.Operands {
			negated[i] = Negate(op)
		}
		return Conjunction{Operands: negated}
	case Call, LocalRef, GlobalRef, BindingRef, AttributeAccess, IndexAccess,
		UnaryOp, BinaryOp, Conditional, Tuple, Sequence:
		return Negation{Operand: e}
	default:
		// The interface is sealed; a new variant must be added here.
		panic(fmt.Sprintf("qexpr: unhandled expression variant %T", e))
	}
}
