package qexpr

import (
	"fmt"
	"strings"
)

var unaryToken = map[UnaryKind]string{
	UnaryPos:    "+",
	UnaryNeg:    "-",
	UnaryInvert: "~",
}

var binaryToken = map[BinaryKind]string{
	BinAdd: "+",
	BinSub: "-",
	BinMul: "*",
	BinDiv: "/",
	BinMod: "%",
	BinPow: "**",
	BinShl: "<<",
	BinShr: ">>",
	BinAnd: "&",
	BinXor: "^",
	BinOr:  "|",
}

var compareToken = map[CompareOp]string{
	CmpEq:    "==",
	CmpNe:    "!=",
	CmpLt:    "<",
	CmpLe:    "<=",
	CmpGt:    ">",
	CmpGe:    ">=",
	CmpIn:    "in",
	CmpNotIn: "not in",
	CmpIs:    "is",
	CmpIsNot: "is not",
}

// String renders an expression in source notation with precedence-
// minimal parenthesization. This form appears in error messages and
// in the CLI explain output; SQL rendering lives in the query
// compiler.
func String(e Expression) string {
	return render(e, PrecTopLevel)
}

func render(e Expression, parent int) string {
	text := renderNode(e)
	if e.Precedence() < parent {
		return "(" + text + ")"
	}
	return text
}

func renderNode(e Expression) string {
	switch expr := e.(type) {
	case Constant:
		return renderConstant(expr.Value)
	case LocalRef:
		return expr.Name
	case GlobalRef:
		return expr.Name
	case BindingRef:
		return expr.Name
	case AttributeAccess:
		return render(expr.Base, expr.Precedence()) + "." + expr.Name
	case IndexAccess:
		return fmt.Sprintf("%s[%d]", render(expr.Base, expr.Precedence()), expr.Index)
	case Call:
		parts := make([]string, 0, len(expr.Args)+len(expr.KwArgs))
		for _, arg := range expr.Args {
			parts = append(parts, render(arg, PrecTopLevel))
		}
		for _, kw := range expr.KwArgs {
			parts = append(parts, kw.Name+"="+render(kw.Value, PrecTopLevel))
		}
		return render(expr.Callee, expr.Precedence()) + "(" + strings.Join(parts, ", ") + ")"
	case UnaryOp:
		return unaryToken[expr.Kind] + render(expr.Operand, expr.Precedence())
	case BinaryOp:
		prec := expr.Precedence()
		return render(expr.Left, prec) + " " + binaryToken[expr.Kind] + " " + render(expr.Right, prec)
	case Comparison:
		return render(expr.Left, expr.Precedence()) + " " + compareToken[expr.Op] + " " + render(expr.Right, expr.Precedence())
	case Negation:
		return "not " + render(expr.Operand, expr.Precedence())
	case Conjunction:
		return renderJoined(expr.Operands, "and", expr.Precedence())
	case Disjunction:
		return renderJoined(expr.Operands, "or", expr.Precedence())
	case Conditional:
		return render(expr.Then, PrecDisjunction) + " if " + render(expr.Cond, PrecDisjunction) +
			" else " + render(expr.Else, expr.Precedence())
	case Tuple:
		return "(" + renderElems(expr.Elems) + ")"
	case Sequence:
		return "[" + renderElems(expr.Elems) + "]"
	default:
		panic(fmt.Sprintf("qexpr: unhandled expression variant %T", e))
	}
}

func renderJoined(operands []Expression, adjoiner string, prec int) string {
	parts := make([]string, len(operands))
	for i, op := range operands {
		parts[i] = render(op, prec)
	}
	return strings.Join(parts, " "+adjoiner+" ")
}

func renderElems(elems []Expression) string {
	parts := make([]string, len(elems))
	for i, el := range elems {
		parts[i] = render(el, PrecTopLevel)
	}
	return strings.Join(parts, ", ")
}

func renderConstant(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}
