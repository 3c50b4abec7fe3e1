package querysql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bkovari/relinq/internal/qexpr"
)

// renderer turns expressions into SQL text. One renderer serves a
// whole statement so positional parameter usage accumulates across
// clauses.
type renderer struct {
	bindings map[string]any
	maxParam int
}

func newRenderer(bindings map[string]any) *renderer {
	return &renderer{bindings: bindings}
}

// render serializes an expression, parenthesizing it only when its
// precedence is strictly lower than the enclosing context's.
func (r *renderer) render(e qexpr.Expression, parent int) (string, error) {
	s, err := r.renderInner(e)
	if err != nil {
		return "", err
	}
	if e.Precedence() < parent {
		return "(" + s + ")", nil
	}
	return s, nil
}

func (r *renderer) renderInner(e qexpr.Expression) (string, error) {
	switch v := e.(type) {
	case qexpr.Constant:
		return renderConstant(v.Value)

	case qexpr.LocalRef:
		return v.Name, nil

	case qexpr.GlobalRef:
		if index, ok := paramIndex(v.Name); ok {
			if index > r.maxParam {
				r.maxParam = index
			}
			return "$" + strconv.Itoa(index), nil
		}
		return v.Name, nil

	case qexpr.BindingRef:
		value, ok := r.bindings[v.Name]
		if !ok {
			return "", queryErr(CodeUnrecognizedCall, v, "unbound external reference %s", v.Name)
		}
		if sub, ok := value.(*Query); ok {
			return "(" + sub.SQL + ")", nil
		}
		return renderConstant(value)

	case qexpr.AttributeAccess:
		base, err := r.render(v.Base, v.Precedence())
		if err != nil {
			return "", err
		}
		return base + "." + v.Name, nil

	case qexpr.Call:
		return r.renderCall(v)

	case qexpr.UnaryOp:
		operand, err := r.render(v.Operand, v.Precedence())
		if err != nil {
			return "", err
		}
		return unarySQL[v.Kind] + operand, nil

	case qexpr.BinaryOp:
		left, err := r.render(v.Left, v.Precedence())
		if err != nil {
			return "", err
		}
		right, err := r.render(v.Right, v.Precedence())
		if err != nil {
			return "", err
		}
		return left + " " + binarySQL[v.Kind] + " " + right, nil

	case qexpr.Comparison:
		return r.renderComparison(v)

	case qexpr.Negation:
		operand, err := r.render(v.Operand, v.Precedence())
		if err != nil {
			return "", err
		}
		return "NOT " + operand, nil

	case qexpr.Conjunction:
		return r.renderJoined(v.Operands, " AND ", v.Precedence())

	case qexpr.Disjunction:
		return r.renderJoined(v.Operands, " OR ", v.Precedence())

	case qexpr.Conditional:
		cond, err := r.render(v.Cond, qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		then, err := r.render(v.Then, qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		els, err := r.render(v.Else, qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		return "CASE WHEN " + cond + " THEN " + then + " ELSE " + els + " END", nil

	case qexpr.Tuple:
		return r.renderJoined(v.Elems, ", ", qexpr.PrecTopLevel)

	case qexpr.Sequence:
		inner, err := r.renderJoined(v.Elems, ", ", qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil

	default:
		return "", queryErr(CodeUnrecognizedCall, e, "expression cannot be rendered as SQL")
	}
}

var unarySQL = map[qexpr.UnaryKind]string{
	qexpr.UnaryPos:    "+",
	qexpr.UnaryNeg:    "-",
	qexpr.UnaryInvert: "~",
}

var binarySQL = map[qexpr.BinaryKind]string{
	qexpr.BinAdd: "+",
	qexpr.BinSub: "-",
	qexpr.BinMul: "*",
	qexpr.BinDiv: "/",
	qexpr.BinMod: "%",
	qexpr.BinPow: "^",
	qexpr.BinShl: "<<",
	qexpr.BinShr: ">>",
	qexpr.BinAnd: "&",
	qexpr.BinXor: "#",
	qexpr.BinOr:  "|",
}

func (r *renderer) renderJoined(exprs []qexpr.Expression, sep string, prec int) (string, error) {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		part, err := r.render(e, prec)
		if err != nil {
			return "", err
		}
		parts[i] = part
	}
	return strings.Join(parts, sep), nil
}

var compareSQL = map[qexpr.CompareOp]string{
	qexpr.CmpEq: "=",
	qexpr.CmpNe: "<>",
	qexpr.CmpLt: "<",
	qexpr.CmpLe: "<=",
	qexpr.CmpGt: ">",
	qexpr.CmpGe: ">=",
}

func (r *renderer) renderComparison(comp qexpr.Comparison) (string, error) {
	if c, ok := comp.Right.(qexpr.Constant); ok && c.Value == nil {
		if comp.Op == qexpr.CmpIs || comp.Op == qexpr.CmpIsNot {
			left, err := r.render(comp.Left, comp.Precedence())
			if err != nil {
				return "", err
			}
			if comp.Op == qexpr.CmpIs {
				return left + " IS NULL", nil
			}
			return left + " IS NOT NULL", nil
		}
	}

	left, err := r.render(comp.Left, comp.Precedence())
	if err != nil {
		return "", err
	}
	right, err := r.render(comp.Right, comp.Precedence())
	if err != nil {
		return "", err
	}
	switch comp.Op {
	case qexpr.CmpIn:
		return left + " IN " + right, nil
	case qexpr.CmpNotIn:
		return left + " NOT IN " + right, nil
	}
	op, ok := compareSQL[comp.Op]
	if !ok {
		return "", queryErr(CodeUnrecognizedCall, comp, "illegal comparison")
	}
	return left + " " + op + " " + right, nil
}

func (r *renderer) renderCall(call qexpr.Call) (string, error) {
	m, ok := markerOf(call)
	if !ok {
		return "", queryErr(CodeUnrecognizedCall, call, "unrecognized function call")
	}

	switch m.tag {
	case tagAggregate:
		arg, err := r.render(call.Args[0], qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		return m.sqlName + "(" + arg + ")", nil

	case tagConditionalAggregate:
		arg, err := r.render(call.Args[0], qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		cond, err := r.render(call.Args[1], qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		return m.sqlName + "(" + arg + ") FILTER (WHERE " + cond + ")", nil

	case tagDatePart:
		arg, err := r.render(call.Args[0], qexpr.PrecTopLevel)
		if err != nil {
			return "", err
		}
		return "EXTRACT(" + m.sqlName + " FROM " + arg + ")", nil

	case tagNow:
		return "CURRENT_TIMESTAMP", nil

	case tagMakeDate:
		parts := make([]string, len(call.Args))
		for i, a := range call.Args {
			part, err := r.render(a, qexpr.PrecTopLevel)
			if err != nil {
				return "", err
			}
			parts[i] = part
		}
		return "MAKE_DATE(" + strings.Join(parts, ", ") + ")", nil

	default:
		// Join and order markers are consumed before rendering; one
		// reaching this point slipped past validation.
		return "", queryErr(CodeMisplacedMarker, call, "marker %s cannot appear here", call.FunctionName())
	}
}

// paramIndex recognizes the positional parameter names p_1 through
// p_9.
func paramIndex(name string) (int, bool) {
	if len(name) != 3 || name[0] != 'p' || name[1] != '_' {
		return 0, false
	}
	if name[2] < '1' || name[2] > '9' {
		return 0, false
	}
	return int(name[2] - '0'), true
}

// renderConstant serializes a literal. Strings quote with doubled
// embedded quotes, switching to an escape-string literal when control
// characters are present.
func renderConstant(v any) (string, error) {
	switch c := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if c {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return quoteString(c), nil
	case int:
		return strconv.Itoa(c), nil
	case int64:
		return strconv.FormatInt(c, 10), nil
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64), nil
	case time.Time:
		return "'" + c.Format("2006-01-02 15:04:05") + "'", nil
	default:
		return "", queryErr(CodeUnrecognizedCall, nil, "constant of type %T cannot be rendered as SQL", v)
	}
}

func quoteString(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r < 0x20 }) {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}

	var b strings.Builder
	b.WriteString("E'")
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteString("'")
	return b.String()
}
