package querysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkovari/relinq/internal/qexpr"
)

func renderTopLevel(t *testing.T, e qexpr.Expression, bindings map[string]any) string {
	t.Helper()
	s, err := newRenderer(bindings).render(e, qexpr.PrecTopLevel)
	require.NoError(t, err)
	return s
}

func TestRenderOperators(t *testing.T) {
	testCases := []struct {
		name string
		expr qexpr.Expression
		want string
	}{
		{
			name: "null check",
			expr: cmp(qexpr.CmpIs, attr("p", "perm_id"), qexpr.Constant{Value: nil}),
			want: "p.perm_id IS NULL",
		},
		{
			name: "negated null check",
			expr: cmp(qexpr.CmpIsNot, attr("p", "perm_id"), qexpr.Constant{Value: nil}),
			want: "p.perm_id IS NOT NULL",
		},
		{
			name: "membership",
			expr: qexpr.Comparison{
				Op:    qexpr.CmpIn,
				Left:  attr("p", "city"),
				Right: qexpr.Sequence{Elems: []qexpr.Expression{str("London"), str("Zürich")}},
			},
			want: "p.city IN ('London', 'Zürich')",
		},
		{
			name: "negated membership",
			expr: qexpr.Comparison{
				Op:    qexpr.CmpNotIn,
				Left:  attr("p", "city"),
				Right: qexpr.Sequence{Elems: []qexpr.Expression{str("London")}},
			},
			want: "p.city NOT IN ('London')",
		},
		{
			name: "negation parenthesizes looser operands",
			expr: qexpr.Negation{Operand: disj(
				cmp(qexpr.CmpEq, attr("p", "city"), str("London")),
				cmp(qexpr.CmpEq, attr("p", "city"), str("Paris")),
			)},
			want: "NOT (p.city = 'London' OR p.city = 'Paris')",
		},
		{
			name: "conditional projection",
			expr: qexpr.Conditional{
				Cond: cmp(qexpr.CmpGe, attr("p", "age"), num(18)),
				Then: str("adult"),
				Else: str("minor"),
			},
			want: "CASE WHEN p.age >= 18 THEN 'adult' ELSE 'minor' END",
		},
		{
			name: "conditional aggregate",
			expr: call("count_if", attr("p", "perm_id"),
				cmp(qexpr.CmpEq, attr("p", "city"), str("London"))),
			want: "COUNT(p.perm_id) FILTER (WHERE p.city = 'London')",
		},
		{
			name: "date part extraction",
			expr: call("year", attr("p", "birth_date")),
			want: "EXTRACT(YEAR FROM p.birth_date)",
		},
		{
			name: "current timestamp",
			expr: cmp(qexpr.CmpLe, attr("p", "created_at"), call("now")),
			want: "p.created_at <= CURRENT_TIMESTAMP",
		},
		{
			name: "date literal",
			expr: call("date", num(1989), num(10), num(23)),
			want: "MAKE_DATE(1989, 10, 23)",
		},
		{
			name: "arithmetic precedence",
			expr: qexpr.BinaryOp{
				Kind: qexpr.BinMul,
				Left: qexpr.BinaryOp{Kind: qexpr.BinAdd, Left: attr("p", "a"), Right: attr("p", "b")},
				Right: num(2),
			},
			want: "(p.a + p.b) * 2",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderTopLevel(t, tc.expr, nil))
		})
	}
}

func TestRenderPositionalParameters(t *testing.T) {
	r := newRenderer(nil)

	s, err := r.render(cmp(qexpr.CmpEq, attr("p", "given_name"), qexpr.GlobalRef{Name: "p_1"}), qexpr.PrecTopLevel)
	require.NoError(t, err)
	assert.Equal(t, "p.given_name = $1", s)

	s, err = r.render(qexpr.GlobalRef{Name: "p_9"}, qexpr.PrecTopLevel)
	require.NoError(t, err)
	assert.Equal(t, "$9", s)
	assert.Equal(t, 9, r.maxParam)

	// Names outside p_1..p_9 pass through untranslated.
	s, err = r.render(qexpr.GlobalRef{Name: "p_10"}, qexpr.PrecTopLevel)
	require.NoError(t, err)
	assert.Equal(t, "p_10", s)
	assert.Equal(t, 9, r.maxParam)
}

func TestRenderBindings(t *testing.T) {
	sub := &Query{SQL: `SELECT a.id FROM "Address" AS a`}
	bindings := map[string]any{"city": "Budapest", "ids": sub}

	assert.Equal(t, "'Budapest'",
		renderTopLevel(t, qexpr.BindingRef{Name: "city"}, bindings))
	assert.Equal(t, `(SELECT a.id FROM "Address" AS a)`,
		renderTopLevel(t, qexpr.BindingRef{Name: "ids"}, bindings))

	_, err := newRenderer(bindings).render(qexpr.BindingRef{Name: "missing"}, qexpr.PrecTopLevel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound external reference")
}

func TestRenderUnrecognizedCall(t *testing.T) {
	_, err := newRenderer(nil).render(call("frobnicate", num(1)), qexpr.PrecTopLevel)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUnrecognizedCall))

	// A marker name used with the wrong arity is not a marker.
	_, err = newRenderer(nil).render(call("min", num(1), num(2)), qexpr.PrecTopLevel)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUnrecognizedCall))
}

func TestRenderConstants(t *testing.T) {
	testCases := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: "NULL"},
		{name: "true", value: true, want: "TRUE"},
		{name: "false", value: false, want: "FALSE"},
		{name: "int", value: 42, want: "42"},
		{name: "int64", value: int64(-7), want: "-7"},
		{name: "float", value: 2.5, want: "2.5"},
		{name: "plain string", value: "London", want: "'London'"},
		{name: "embedded quote", value: "it's", want: "'it''s'"},
		{name: "control characters", value: "a\tb\nc", want: `E'a\tb\nc'`},
		{name: "backslash with control", value: "a\\b\x01", want: `E'a\\b\x01'`},
		{
			name:  "timestamp",
			value: time.Date(2024, 5, 17, 13, 45, 0, 0, time.UTC),
			want:  "'2024-05-17 13:45:00'",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := renderConstant(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, s)
		})
	}

	_, err := renderConstant(struct{}{})
	require.Error(t, err)
}

func TestParamIndex(t *testing.T) {
	for name, want := range map[string]int{"p_1": 1, "p_5": 5, "p_9": 9} {
		got, ok := paramIndex(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got)
	}
	for _, name := range []string{"p_0", "p_10", "q_1", "p1", "", "p_"} {
		_, ok := paramIndex(name)
		assert.False(t, ok, name)
	}
}
