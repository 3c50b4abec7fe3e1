package querysql

import (
	"fmt"
	"strings"

	"github.com/bkovari/relinq/internal/qexpr"
	"github.com/bkovari/relinq/internal/schema"
)

// compileInsertOrSelect compiles the combined "return the matching
// row, or insert one and return it" statement:
//
//	WITH select_query AS (...),
//	     insert_query AS (INSERT INTO ... SELECT $i, ...
//	       WHERE NOT EXISTS (SELECT * FROM select_query) RETURNING ...)
//	SELECT * FROM select_query UNION ALL SELECT * FROM insert_query
//
// Permitted only for a single-entity, join-free, aggregation-free,
// order-free query whose record matches the declared entity. Insert
// placeholders start one past the highest positional parameter the
// SELECT half already uses.
func compileInsertOrSelect(def *QueryDef, record *schema.Record) (*Query, error) {
	if err := def.check(); err != nil {
		return nil, err
	}
	if len(def.Entities) != 1 {
		return nil, queryErr(CodeWrongEntityArity, nil,
			"a single target entity is required for an insert or select query, have %d", len(def.Entities))
	}
	entity, alias := def.Entities[0], def.Aliases[0]
	if record.Entity != entity {
		return nil, queryErr(CodeWrongInsertType, nil,
			"record to insert has entity %q, expected %q", record.Entity.Name, entity.Name)
	}
	aliases := def.aliasSet()

	cond, joins, err := extractJoins(def.Predicate, aliases)
	if err != nil {
		return nil, err
	}
	if !joins.Empty() {
		return nil, queryErr(CodeDisallowedJoin, def.Predicate,
			"no join conditions are allowed in an insert or select query")
	}

	r := newRenderer(def.Bindings)

	var sqlWhere string
	if whereExpr := newConditionExtractor(aliases, false).visit(cond); whereExpr != nil {
		if sqlWhere, err = r.render(whereExpr, qexpr.PrecTopLevel); err != nil {
			return nil, err
		}
	}
	if havingExpr := newConditionExtractor(aliases, true).visit(cond); havingExpr != nil {
		return nil, queryErr(CodeDisallowedAggregate, havingExpr,
			"no aggregation functions are allowed in an insert or select query")
	}

	sel, err := extractSelect(r, def.Projection)
	if err != nil {
		return nil, err
	}
	if sel.hasAggregate {
		return nil, queryErr(CodeDisallowedAggregate, def.Projection,
			"no aggregation functions are allowed in an insert or select query")
	}
	if len(sel.orderBy) > 0 {
		return nil, queryErr(CodeDisallowedOrder, def.Projection,
			"no order functions are allowed in an insert or select query")
	}

	sqlFrom := fmt.Sprintf("%q AS %s", entity.Name, alias)
	columnNames := strings.Join(sel.items, ", ")

	selectParts := []string{"SELECT", columnNames, "FROM", sqlFrom}
	if sqlWhere != "" {
		selectParts = append(selectParts, "WHERE", sqlWhere)
	}
	selectQuery := strings.Join(selectParts, " ")

	offset := r.maxParam + 1
	insertColumns := record.InsertColumns()
	placeholders := make([]string, len(insertColumns))
	for i := range insertColumns {
		placeholders[i] = fmt.Sprintf("$%d", offset+i)
	}

	insertQuery := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT * FROM select_query) RETURNING %s",
		sqlFrom,
		strings.Join(insertColumns, ", "),
		strings.Join(placeholders, ", "),
		columnNames)

	sql := fmt.Sprintf(
		"WITH select_query AS (%s), insert_query AS (%s) SELECT * FROM select_query UNION ALL SELECT * FROM insert_query",
		selectQuery, insertQuery)

	return &Query{SQL: sql, Shape: def.Shape}, nil
}
