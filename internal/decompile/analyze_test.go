package decompile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkovari/relinq/internal/bytecode"
	"github.com/bkovari/relinq/internal/qexpr"
)

func attr(alias, column string) qexpr.Expression {
	return qexpr.AttributeAccess{Base: qexpr.LocalRef{Name: alias}, Name: column}
}

func loadAttr(b *bytecode.Builder, alias, column string) {
	b.LoadLocal(alias)
	b.LoadAttr(column)
}

func build(t *testing.T, b *bytecode.Builder) *bytecode.Program {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func assertExpr(t *testing.T, want, got qexpr.Expression) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, qexpr.Equal(want, got),
		"expression mismatch:\nwant %s\nhave %s", qexpr.String(want), qexpr.String(got))
}

func TestAnalyzeProjectionOnly(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	loadAttr(b, "p", "given_name")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	assert.Equal(t, []string{"p"}, ce.LocalVars)
	assert.Nil(t, ce.Predicate)
	assert.Nil(t, ce.Return)
	assertExpr(t, attr("p", "given_name"), ce.Projection)
}

func TestAnalyzeSingleCondition(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	loadAttr(b, "p", "age")
	b.LoadConst(int64(21))
	b.Compare(qexpr.CmpGe)
	b.JumpIfFalse(head)
	b.LoadLocal("p")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Comparison{Op: qexpr.CmpGe, Left: attr("p", "age"), Right: qexpr.Constant{Value: int64(21)}}
	assertExpr(t, want, ce.Predicate)
	assertExpr(t, qexpr.LocalRef{Name: "p"}, ce.Projection)
}

func TestAnalyzeConjunction(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	loadAttr(b, "p", "given_name")
	b.LoadConst("John")
	b.Compare(qexpr.CmpEq)
	b.JumpIfFalse(head)
	loadAttr(b, "p", "family_name")
	b.LoadConst("Doe")
	b.Compare(qexpr.CmpNe)
	b.JumpIfFalse(head)
	loadAttr(b, "p", "given_name")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Conjunction{Operands: []qexpr.Expression{
		qexpr.Comparison{Op: qexpr.CmpEq, Left: attr("p", "given_name"), Right: qexpr.Constant{Value: "John"}},
		qexpr.Comparison{Op: qexpr.CmpNe, Left: attr("p", "family_name"), Right: qexpr.Constant{Value: "Doe"}},
	}}
	assertExpr(t, want, ce.Predicate)
}

func TestAnalyzeDisjunction(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	body := b.NewLabel()
	loadAttr(b, "p", "vip")
	b.JumpIfTrue(body)
	loadAttr(b, "p", "age")
	b.LoadConst(int64(65))
	b.Compare(qexpr.CmpGe)
	b.JumpIfFalse(head)
	b.Mark(body)
	b.LoadLocal("p")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Disjunction{Operands: []qexpr.Expression{
		attr("p", "vip"),
		qexpr.Comparison{Op: qexpr.CmpGe, Left: attr("p", "age"), Right: qexpr.Constant{Value: int64(65)}},
	}}
	assertExpr(t, want, ce.Predicate)
}

// (a and b) or c: the inner conjunction's failure edge enters the
// alternative test, not the loop head.
func TestAnalyzeNestedConjunctionInDisjunction(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	alt := b.NewLabel()
	body := b.NewLabel()
	loadAttr(b, "p", "given_name")
	b.LoadConst("John")
	b.Compare(qexpr.CmpNe)
	b.JumpIfFalse(alt)
	loadAttr(b, "p", "family_name")
	b.LoadConst("Doe")
	b.Compare(qexpr.CmpNe)
	b.JumpIfTrue(body)
	b.Mark(alt)
	loadAttr(b, "p", "city")
	b.LoadConst("London")
	b.Compare(qexpr.CmpEq)
	b.JumpIfFalse(head)
	b.Mark(body)
	loadAttr(b, "p", "given_name")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Disjunction{Operands: []qexpr.Expression{
		qexpr.Conjunction{Operands: []qexpr.Expression{
			qexpr.Comparison{Op: qexpr.CmpNe, Left: attr("p", "given_name"), Right: qexpr.Constant{Value: "John"}},
			qexpr.Comparison{Op: qexpr.CmpNe, Left: attr("p", "family_name"), Right: qexpr.Constant{Value: "Doe"}},
		}},
		qexpr.Comparison{Op: qexpr.CmpEq, Left: attr("p", "city"), Right: qexpr.Constant{Value: "London"}},
	}}
	assertExpr(t, want, ce.Predicate)
}

// not (a or b): both tests branch to the loop head when true, so the
// normalized predicate is the conjunction of the complements.
func TestAnalyzeNegatedDisjunction(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	loadAttr(b, "p", "age")
	b.LoadConst(int64(18))
	b.Compare(qexpr.CmpLt)
	b.JumpIfTrue(head)
	loadAttr(b, "p", "age")
	b.LoadConst(int64(99))
	b.Compare(qexpr.CmpGt)
	b.JumpIfTrue(head)
	b.LoadLocal("p")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Conjunction{Operands: []qexpr.Expression{
		qexpr.Comparison{Op: qexpr.CmpGe, Left: attr("p", "age"), Right: qexpr.Constant{Value: int64(18)}},
		qexpr.Comparison{Op: qexpr.CmpLe, Left: attr("p", "age"), Right: qexpr.Constant{Value: int64(99)}},
	}}
	assertExpr(t, want, ce.Predicate)
}

func TestAnalyzeTupleAliases(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p", "c")
	b.LoadGlobal("inner_join")
	loadAttr(b, "p", "city_id")
	loadAttr(b, "c", "id")
	b.Call(2)
	b.JumpIfFalse(head)
	loadAttr(b, "c", "name")
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	assert.Equal(t, []string{"p", "c"}, ce.LocalVars)
	want := qexpr.Call{
		Callee: qexpr.GlobalRef{Name: "inner_join"},
		Args:   []qexpr.Expression{attr("p", "city_id"), attr("c", "id")},
	}
	assertExpr(t, want, ce.Predicate)
	assertExpr(t, attr("c", "name"), ce.Projection)
}

// A short-circuit value region in the projection collapses back into
// a single stack value.
func TestAnalyzeValueRegionDisjunction(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	join := b.NewLabel()
	loadAttr(b, "p", "nickname")
	b.JumpIfTrueOrPop(join)
	loadAttr(b, "p", "given_name")
	b.Mark(join)
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	assert.Nil(t, ce.Predicate)
	want := qexpr.Disjunction{Operands: []qexpr.Expression{
		attr("p", "nickname"),
		attr("p", "given_name"),
	}}
	assertExpr(t, want, ce.Projection)
}

func TestAnalyzeValueRegionConjunctionAsCallArgument(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	join := b.NewLabel()
	b.LoadGlobal("count_if")
	loadAttr(b, "p", "id")
	loadAttr(b, "p", "active")
	b.JumpIfFalseOrPop(join)
	loadAttr(b, "p", "verified")
	b.Mark(join)
	b.Call(2)
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Call{
		Callee: qexpr.GlobalRef{Name: "count_if"},
		Args: []qexpr.Expression{
			attr("p", "id"),
			qexpr.Conjunction{Operands: []qexpr.Expression{
				attr("p", "active"),
				attr("p", "verified"),
			}},
		},
	}
	assertExpr(t, want, ce.Projection)
}

// A pop-jump whose arms each compute one value and converge on a join
// is a conditional expression, not a filter condition.
func TestAnalyzeConditionalProjection(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	alt := b.NewLabel()
	join := b.NewLabel()
	loadAttr(b, "p", "premium")
	b.JumpIfFalse(alt)
	loadAttr(b, "p", "rate_premium")
	b.Jump(join)
	b.Mark(alt)
	loadAttr(b, "p", "rate_standard")
	b.Mark(join)
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	assert.Nil(t, ce.Predicate)
	want := qexpr.Conditional{
		Cond: attr("p", "premium"),
		Then: attr("p", "rate_premium"),
		Else: attr("p", "rate_standard"),
	}
	assertExpr(t, want, ce.Projection)
}

func TestAnalyzeConditionAndConditionalProjection(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	alt := b.NewLabel()
	join := b.NewLabel()
	loadAttr(b, "p", "active")
	b.JumpIfFalse(head)
	loadAttr(b, "p", "premium")
	b.JumpIfFalse(alt)
	loadAttr(b, "p", "rate_premium")
	b.Jump(join)
	b.Mark(alt)
	loadAttr(b, "p", "rate_standard")
	b.Mark(join)
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	assertExpr(t, attr("p", "active"), ce.Predicate)
	want := qexpr.Conditional{
		Cond: attr("p", "premium"),
		Then: attr("p", "rate_premium"),
		Else: attr("p", "rate_standard"),
	}
	assertExpr(t, want, ce.Projection)
}

func TestAnalyzeExpressionProgram(t *testing.T) {
	b := bytecode.NewBuilder()
	b.LoadLocal("x")
	b.LoadAttr("total")
	b.LoadConst(int64(100))
	b.Compare(qexpr.CmpGt)
	b.Return()

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, ce.LocalVars)
	assert.Nil(t, ce.Predicate)
	assert.Nil(t, ce.Projection)
	want := qexpr.Comparison{Op: qexpr.CmpGt, Left: attr("x", "total"), Right: qexpr.Constant{Value: int64(100)}}
	assertExpr(t, want, ce.Return)
}

func TestAnalyzeExpressionProgramWithShortCircuit(t *testing.T) {
	b := bytecode.NewBuilder()
	join := b.NewLabel()
	loadAttr(b, "x", "archived")
	b.JumpIfTrueOrPop(join)
	loadAttr(b, "x", "hidden")
	b.Mark(join)
	b.Return()

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Disjunction{Operands: []qexpr.Expression{
		attr("x", "archived"),
		attr("x", "hidden"),
	}}
	assertExpr(t, want, ce.Return)
}

func TestAnalyzeBuildTupleProjection(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	loadAttr(b, "p", "given_name")
	loadAttr(b, "p", "family_name")
	b.BuildTuple(2)
	b.EndGenerator(head, end)

	ce, err := Analyze(build(t, b))
	require.NoError(t, err)

	want := qexpr.Tuple{Elems: []qexpr.Expression{
		attr("p", "given_name"),
		attr("p", "family_name"),
	}}
	assertExpr(t, want, ce.Projection)
}

func TestAnalyzeEmptyProgram(t *testing.T) {
	_, err := Analyze(&bytecode.Program{})
	require.Error(t, err)
	assert.True(t, IsMalformedStream(err))
}

func TestAnalyzeStackUnderflow(t *testing.T) {
	b := bytecode.NewBuilder()
	b.LoadLocal("x")
	b.Compare(qexpr.CmpEq)
	b.Return()

	_, err := Analyze(build(t, b))
	require.Error(t, err)
	assert.True(t, IsMalformedStream(err))

	var se *StructureError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeMalformedStream, se.Code)
	assert.GreaterOrEqual(t, se.Offset, 0)
}

func TestAnalyzeLeftoverOperands(t *testing.T) {
	b := bytecode.NewBuilder()
	b.LoadConst(int64(1))
	b.LoadConst(int64(2))
	b.Return()

	_, err := Analyze(build(t, b))
	require.Error(t, err)
	assert.True(t, IsMalformedStream(err))
	assert.Contains(t, err.Error(), "not empty")
}

// evalBool evaluates a structured predicate over an assignment of its
// boolean column leaves.
func evalBool(t *testing.T, e qexpr.Expression, vals map[string]bool) bool {
	t.Helper()
	switch v := e.(type) {
	case qexpr.AttributeAccess:
		val, ok := vals[v.Name]
		require.True(t, ok, "unknown variable %s", v.Name)
		return val
	case qexpr.Negation:
		return !evalBool(t, v.Operand, vals)
	case qexpr.Conjunction:
		for _, op := range v.Operands {
			if !evalBool(t, op, vals) {
				return false
			}
		}
		return true
	case qexpr.Disjunction:
		for _, op := range v.Operands {
			if evalBool(t, op, vals) {
				return true
			}
		}
		return false
	default:
		t.Fatalf("unexpected node %T in boolean predicate", e)
		return false
	}
}

// Structured predicates must agree with the source formula on every
// assignment of their variables, whatever shape the run folding
// produced.
func TestAnalyzePredicateTruthTables(t *testing.T) {
	testCases := []struct {
		name string
		emit func(b *bytecode.Builder, head bytecode.Label)
		want qexpr.Expression
		vars []string
	}{
		{
			name: "conjunction nested in disjunction",
			emit: func(b *bytecode.Builder, head bytecode.Label) {
				alt, body := b.NewLabel(), b.NewLabel()
				loadAttr(b, "p", "a")
				b.JumpIfFalse(alt)
				loadAttr(b, "p", "b")
				b.JumpIfTrue(body)
				b.Mark(alt)
				loadAttr(b, "p", "c")
				b.JumpIfFalse(head)
				b.Mark(body)
			},
			want: qexpr.Disjunction{Operands: []qexpr.Expression{
				qexpr.Conjunction{Operands: []qexpr.Expression{attr("p", "a"), attr("p", "b")}},
				attr("p", "c"),
			}},
			vars: []string{"a", "b", "c"},
		},
		{
			name: "disjunction head of conjunction",
			emit: func(b *bytecode.Builder, head bytecode.Label) {
				body := b.NewLabel()
				loadAttr(b, "p", "a")
				b.JumpIfTrue(body)
				loadAttr(b, "p", "b")
				b.JumpIfFalse(head)
				loadAttr(b, "p", "c")
				b.JumpIfFalse(head)
				b.Mark(body)
			},
			want: qexpr.Disjunction{Operands: []qexpr.Expression{
				attr("p", "a"),
				qexpr.Conjunction{Operands: []qexpr.Expression{attr("p", "b"), attr("p", "c")}},
			}},
			vars: []string{"a", "b", "c"},
		},
		{
			name: "disjunction guarded by trailing test",
			emit: func(b *bytecode.Builder, head bytecode.Label) {
				cont := b.NewLabel()
				loadAttr(b, "p", "a")
				b.JumpIfTrue(cont)
				loadAttr(b, "p", "b")
				b.JumpIfFalse(head)
				b.Mark(cont)
				loadAttr(b, "p", "c")
				b.JumpIfFalse(head)
			},
			want: qexpr.Conjunction{Operands: []qexpr.Expression{
				qexpr.Disjunction{Operands: []qexpr.Expression{attr("p", "a"), attr("p", "b")}},
				attr("p", "c"),
			}},
			vars: []string{"a", "b", "c"},
		},
		{
			name: "negated disjunction",
			emit: func(b *bytecode.Builder, head bytecode.Label) {
				loadAttr(b, "p", "a")
				b.JumpIfTrue(head)
				loadAttr(b, "p", "b")
				b.JumpIfTrue(head)
			},
			want: qexpr.Negation{Operand: qexpr.Disjunction{Operands: []qexpr.Expression{
				attr("p", "a"),
				attr("p", "b"),
			}}},
			vars: []string{"a", "b"},
		},
		{
			name: "two conjunction runs under one disjunction",
			emit: func(b *bytecode.Builder, head bytecode.Label) {
				alt, body := b.NewLabel(), b.NewLabel()
				loadAttr(b, "p", "a")
				b.JumpIfFalse(alt)
				loadAttr(b, "p", "b")
				b.JumpIfTrue(body)
				b.Mark(alt)
				loadAttr(b, "p", "c")
				b.JumpIfFalse(head)
				loadAttr(b, "p", "d")
				b.JumpIfFalse(head)
				b.Mark(body)
			},
			want: qexpr.Disjunction{Operands: []qexpr.Expression{
				qexpr.Conjunction{Operands: []qexpr.Expression{attr("p", "a"), attr("p", "b")}},
				qexpr.Conjunction{Operands: []qexpr.Expression{attr("p", "c"), attr("p", "d")}},
			}},
			vars: []string{"a", "b", "c", "d"},
		},
		{
			name: "conjunction with negated member",
			emit: func(b *bytecode.Builder, head bytecode.Label) {
				loadAttr(b, "p", "a")
				b.JumpIfFalse(head)
				loadAttr(b, "p", "b")
				b.JumpIfTrue(head)
			},
			want: qexpr.Conjunction{Operands: []qexpr.Expression{
				attr("p", "a"),
				qexpr.Negation{Operand: attr("p", "b")},
			}},
			vars: []string{"a", "b"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := bytecode.NewBuilder()
			head, end := b.BeginGenerator("p")
			tc.emit(b, head)
			b.LoadLocal("p")
			b.EndGenerator(head, end)

			ce, err := Analyze(build(t, b))
			require.NoError(t, err)
			require.NotNil(t, ce.Predicate)

			for mask := 0; mask < 1<<len(tc.vars); mask++ {
				vals := make(map[string]bool, len(tc.vars))
				for i, name := range tc.vars {
					vals[name] = mask&(1<<i) != 0
				}
				assert.Equal(t,
					evalBool(t, tc.want, vals),
					evalBool(t, ce.Predicate, vals),
					"assignment %v: structured %s disagrees with %s",
					vals, qexpr.String(ce.Predicate), qexpr.String(tc.want))
			}
		})
	}
}

func TestAnalyzeConditionBranchingOutOfLoop(t *testing.T) {
	b := bytecode.NewBuilder()
	head, end := b.BeginGenerator("p")
	loadAttr(b, "p", "ok")
	b.JumpIfFalse(end)
	b.LoadLocal("p")
	b.EndGenerator(head, end)

	_, err := Analyze(build(t, b))
	require.Error(t, err)
	assert.True(t, IsIrreducibleFlow(err))
}
