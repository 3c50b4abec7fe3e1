package qexpr

import "reflect"

// Equal reports structural equality of two expressions. Constants
// compare by their underlying values.
func Equal(a, b Expression) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch ea := a.(type) {
	case Constant:
		// Constants may hold non-comparable values such as []any
		// tuples, so a plain == would panic.
		eb, ok := b.(Constant)
		return ok && reflect.DeepEqual(ea.Value, eb.Value)
	case LocalRef:
		eb, ok := b.(LocalRef)
		return ok && ea.Name == eb.Name
	case GlobalRef:
		eb, ok := b.(GlobalRef)
		return ok && ea.Name == eb.Name
	case BindingRef:
		eb, ok := b.(BindingRef)
		return ok && ea.Name == eb.Name
	case AttributeAccess:
		eb, ok := b.(AttributeAccess)
		return ok && ea.Name == eb.Name && Equal(ea.Base, eb.Base)
	case IndexAccess:
		eb, ok := b.(IndexAccess)
		return ok && ea.Index == eb.Index && Equal(ea.Base, eb.Base)
	case Call:
		eb, ok := b.(Call)
		if !ok || !Equal(ea.Callee, eb.Callee) || !equalSlices(ea.Args, eb.Args) {
			return false
		}
		if len(ea.KwArgs) != len(eb.KwArgs) {
			return false
		}
		for i := range ea.KwArgs {
			if ea.KwArgs[i].Name != eb.KwArgs[i].Name ||
				!Equal(ea.KwArgs[i].Value, eb.KwArgs[i].Value) {
				return false
			}
		}
		return true
	case UnaryOp:
		eb, ok := b.(UnaryOp)
		return ok && ea.Kind == eb.Kind && Equal(ea.Operand, eb.Operand)
	case BinaryOp:
		eb, ok := b.(BinaryOp)
		return ok && ea.Kind == eb.Kind && Equal(ea.Left, eb.Left) && Equal(ea.Right, eb.Right)
	case Comparison:
		eb, ok := b.(Comparison)
		return ok && ea.Op == eb.Op && Equal(ea.Left, eb.Left) && Equal(ea.Right, eb.Right)
	case Negation:
		eb, ok := b.(Negation)
		return ok && Equal(ea.Operand, eb.Operand)
	case Conjunction:
		eb, ok := b.(Conjunction)
		return ok && equalSlices(ea.Operands, eb.Operands)
	case Disjunction:
		eb, ok := b.(Disjunction)
		return ok && equalSlices(ea.Operands, eb.Operands)
	case Conditional:
		eb, ok := b.(Conditional)
		return ok && Equal(ea.Cond, eb.Cond) && Equal(ea.Then, eb.Then) && Equal(ea.Else, eb.Else)
	case Tuple:
		eb, ok := b.(Tuple)
		return ok && equalSlices(ea.Elems, eb.Elems)
	case Sequence:
		eb, ok := b.(Sequence)
		return ok && equalSlices(ea.Elems, eb.Elems)
	default:
		return false
	}
}

func equalSlices(a, b []Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
