package querysql

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkovari/relinq/internal/qexpr"
	"github.com/bkovari/relinq/internal/schema"
)

func attr(alias, column string) qexpr.Expression {
	return qexpr.AttributeAccess{Base: qexpr.LocalRef{Name: alias}, Name: column}
}

func call(name string, args ...qexpr.Expression) qexpr.Expression {
	return qexpr.Call{Callee: qexpr.GlobalRef{Name: name}, Args: args}
}

func conj(operands ...qexpr.Expression) qexpr.Expression {
	return qexpr.Conjunction{Operands: operands}
}

func disj(operands ...qexpr.Expression) qexpr.Expression {
	return qexpr.Disjunction{Operands: operands}
}

func cmp(op qexpr.CompareOp, left, right qexpr.Expression) qexpr.Expression {
	return qexpr.Comparison{Op: op, Left: left, Right: right}
}

func str(s string) qexpr.Expression  { return qexpr.Constant{Value: s} }
func num(n int64) qexpr.Expression   { return qexpr.Constant{Value: n} }
func local(n string) qexpr.Expression { return qexpr.LocalRef{Name: n} }

func goldenSQL(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"))
}

func TestSelectJoinedEntities(t *testing.T) {
	person := schema.NewEntity("Person", "given_name", "family_name", "address_id")
	address := schema.NewEntity("Address", "id", "city")

	def := &QueryDef{
		Entities: []*schema.Entity{person, address},
		Aliases:  []string{"p", "a"},
		Predicate: conj(
			call("inner_join", attr("p", "address_id"), attr("a", "id")),
			disj(
				conj(
					cmp(qexpr.CmpEq, attr("p", "given_name"), str("John")),
					cmp(qexpr.CmpNe, attr("p", "family_name"), str("Doe")),
				),
				cmp(qexpr.CmpNe, attr("a", "city"), str("London")),
			),
		),
		Projection: call("asc", attr("p", "given_name")),
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT p.given_name FROM "Person" AS p INNER JOIN "Address" AS a ON p.address_id = a.id`+
			` WHERE p.given_name = 'John' AND p.family_name <> 'Doe' OR a.city <> 'London'`+
			` ORDER BY p.given_name ASC`,
		q.SQL)

	goldenSQL(t).Assert(t, "select_joined_entities", []byte(q.SQL))
}

func TestSelectWhereHavingPartition(t *testing.T) {
	person := schema.NewEntity("Person", "given_name", "birth_date")

	def := &QueryDef{
		Entities: []*schema.Entity{person},
		Aliases:  []string{"p"},
		Predicate: conj(
			cmp(qexpr.CmpEq, attr("p", "given_name"), str("John")),
			cmp(qexpr.CmpGe,
				call("min", attr("p", "birth_date")),
				call("date", num(1989), num(10), num(23))),
		),
		Projection: call("min", attr("p", "birth_date")),
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT MIN(p.birth_date) FROM "Person" AS p`+
			` WHERE p.given_name = 'John'`+
			` HAVING MIN(p.birth_date) >= MAKE_DATE(1989, 10, 23)`,
		q.SQL)
}

func TestSelectGroupedAggregation(t *testing.T) {
	person := schema.NewEntity("Person", "family_name", "birth_date")

	def := &QueryDef{
		Entities: []*schema.Entity{person},
		Aliases:  []string{"p"},
		Projection: qexpr.Tuple{Elems: []qexpr.Expression{
			attr("p", "family_name"),
			call("min", attr("p", "birth_date")),
		}},
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT p.family_name, MIN(p.birth_date) FROM "Person" AS p GROUP BY p.family_name`,
		q.SQL)

	goldenSQL(t).Assert(t, "select_grouped_aggregation", []byte(q.SQL))
}

func TestSelectGroupByOmittedWithoutAggregate(t *testing.T) {
	person := schema.NewEntity("Person", "given_name", "family_name")

	def := &QueryDef{
		Entities: []*schema.Entity{person},
		Aliases:  []string{"p"},
		Projection: qexpr.Tuple{Elems: []qexpr.Expression{
			attr("p", "given_name"),
			attr("p", "family_name"),
		}},
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t, `SELECT p.given_name, p.family_name FROM "Person" AS p`, q.SQL)
}

func TestSelectBareAliasProjectsStar(t *testing.T) {
	person := schema.NewEntity("Person", "given_name")

	def := &QueryDef{
		Entities:   []*schema.Entity{person},
		Aliases:    []string{"p"},
		Projection: local("p"),
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Person" AS p`, q.SQL)
}

func TestSelectUnjoinedEntitiesCrossProduct(t *testing.T) {
	a := schema.NewEntity("Alpha", "id")
	b := schema.NewEntity("Beta", "id")

	def := &QueryDef{
		Entities:   []*schema.Entity{a, b},
		Aliases:    []string{"a", "b"},
		Predicate:  cmp(qexpr.CmpEq, attr("a", "id"), attr("b", "id")),
		Projection: local("a"),
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Alpha" AS a, "Beta" AS b WHERE a.id = b.id`, q.SQL)
}

func TestSelectLeftJoinMirrorsRightJoin(t *testing.T) {
	person := schema.NewEntity("Person", "address_id")
	address := schema.NewEntity("Address", "id")
	entities := []*schema.Entity{person, address}
	aliases := []string{"p", "a"}

	leftDef := &QueryDef{
		Entities:   entities,
		Aliases:    aliases,
		Predicate:  call("left_join", attr("p", "address_id"), attr("a", "id")),
		Projection: local("p"),
	}
	rightDef := &QueryDef{
		Entities:   entities,
		Aliases:    aliases,
		Predicate:  call("right_join", attr("a", "id"), attr("p", "address_id")),
		Projection: local("p"),
	}

	left, err := compileSelect(leftDef)
	require.NoError(t, err)
	right, err := compileSelect(rightDef)
	require.NoError(t, err)

	assert.Equal(t, left.SQL, right.SQL)
	assert.Equal(t,
		`SELECT * FROM "Person" AS p LEFT JOIN "Address" AS a ON p.address_id = a.id`,
		left.SQL)
}

func TestSelectThreeWayJoinChain(t *testing.T) {
	person := schema.NewEntity("Person", "perm_id", "given_name")
	personCity := schema.NewEntity("PersonCity", "person_id", "city_id")
	city := schema.NewEntity("City", "city_id", "name")

	def := &QueryDef{
		Entities: []*schema.Entity{person, personCity, city},
		Aliases:  []string{"p", "pc", "c"},
		Predicate: conj(
			call("inner_join", attr("p", "perm_id"), attr("pc", "person_id")),
			call("inner_join", attr("pc", "city_id"), attr("c", "city_id")),
			cmp(qexpr.CmpEq, attr("c", "name"), str("London")),
		),
		Projection: attr("p", "given_name"),
	}

	q, err := compileSelect(def)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT p.given_name FROM "Person" AS p`+
			` INNER JOIN "PersonCity" AS pc ON p.perm_id = pc.person_id`+
			` INNER JOIN "City" AS c ON pc.city_id = c.city_id`+
			` WHERE c.name = 'London'`,
		q.SQL)

	goldenSQL(t).Assert(t, "select_three_way_join", []byte(q.SQL))
}

func TestSelectNestedAggregation(t *testing.T) {
	person := schema.NewEntity("Person", "birth_date")

	def := &QueryDef{
		Entities: []*schema.Entity{person},
		Aliases:  []string{"p"},
		Predicate: cmp(qexpr.CmpGe,
			call("min", call("max", attr("p", "birth_date"))),
			call("date", num(1989), num(10), num(23))),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeNestedAggregation))
}

func TestSelectMisplacedOrderMarker(t *testing.T) {
	person := schema.NewEntity("Person", "birth_date")

	def := &QueryDef{
		Entities: []*schema.Entity{person},
		Aliases:  []string{"p"},
		Predicate: cmp(qexpr.CmpGe,
			call("min", call("asc", attr("p", "birth_date"))),
			call("date", num(1989), num(10), num(23))),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeMisplacedMarker))
}

func TestSelectMisplacedJoinMarker(t *testing.T) {
	person := schema.NewEntity("Person", "id")
	address := schema.NewEntity("Address", "id")

	def := &QueryDef{
		Entities: []*schema.Entity{person, address},
		Aliases:  []string{"p", "a"},
		// A join marker below a disjunction is not a top-level conjunct.
		Predicate: disj(
			call("inner_join", attr("p", "id"), attr("a", "id")),
			cmp(qexpr.CmpEq, attr("p", "id"), num(1)),
		),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeMisplacedMarker))
}

func TestSelectMalformedJoinArguments(t *testing.T) {
	person := schema.NewEntity("Person", "id")
	address := schema.NewEntity("Address", "id")

	def := &QueryDef{
		Entities:   []*schema.Entity{person, address},
		Aliases:    []string{"p", "a"},
		Predicate:  call("inner_join", attr("p", "id"), num(7)),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeMalformedJoin))
}

func TestSelectJoinOverUndeclaredAlias(t *testing.T) {
	person := schema.NewEntity("Person", "id")
	address := schema.NewEntity("Address", "id")

	def := &QueryDef{
		Entities:   []*schema.Entity{person, address},
		Aliases:    []string{"p", "a"},
		Predicate:  call("inner_join", attr("p", "id"), attr("z", "id")),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeMalformedJoin))
}

func TestSelectAmbiguousJoin(t *testing.T) {
	a := schema.NewEntity("Alpha", "id", "bid", "cid")
	b := schema.NewEntity("Beta", "id", "cid")
	c := schema.NewEntity("Gamma", "id")

	def := &QueryDef{
		Entities: []*schema.Entity{a, b, c},
		Aliases:  []string{"a", "b", "c"},
		Predicate: conj(
			call("inner_join", attr("a", "bid"), attr("b", "id")),
			call("inner_join", attr("a", "cid"), attr("c", "id")),
			// Both sides are already placed by the time this pair could
			// be used, so it can never be consumed.
			call("inner_join", attr("b", "cid"), attr("c", "id")),
		),
		Projection: local("a"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeAmbiguousJoin))
}

func TestSelectMixedAggregationContext(t *testing.T) {
	person := schema.NewEntity("Person", "birth_date", "given_name")

	def := &QueryDef{
		Entities: []*schema.Entity{person},
		Aliases:  []string{"p"},
		// Aggregated left side against a plain column reference fits
		// neither WHERE nor HAVING.
		Predicate: cmp(qexpr.CmpGe,
			call("min", attr("p", "birth_date")),
			attr("p", "given_name")),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeMixedAggregation))
}

func TestSelectEntityArityMismatch(t *testing.T) {
	person := schema.NewEntity("Person", "id")

	def := &QueryDef{
		Entities:   []*schema.Entity{person},
		Aliases:    []string{"p", "q"},
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeWrongEntityArity))
}

func TestQueryErrorMessageCarriesExpression(t *testing.T) {
	person := schema.NewEntity("Person", "birth_date")

	def := &QueryDef{
		Entities:   []*schema.Entity{person},
		Aliases:    []string{"p"},
		Predicate:  call("min", call("max", attr("p", "birth_date"))),
		Projection: local("p"),
	}

	_, err := compileSelect(def)
	require.Error(t, err)

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, CodeNestedAggregation, qe.Code)
	assert.Contains(t, qe.Error(), "max(p.birth_date)")
}
