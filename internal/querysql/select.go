package querysql

import (
	"fmt"
	"strings"

	"github.com/bkovari/relinq/internal/qexpr"
	"github.com/bkovari/relinq/internal/schema"
)

// QueryDef is the input of one query compilation: the entities the
// query ranges over, their aliases (1:1, in declaration order), the
// caller-supplied external bindings, and the structured predicate and
// projection. Constructed once per compile call, never mutated.
type QueryDef struct {
	Entities   []*schema.Entity
	Aliases    []string
	Bindings   map[string]any
	Predicate  qexpr.Expression
	Projection qexpr.Expression
	Shape      string
}

// Query is a compiled statement. Shape names the result shape for
// callers that map rows back to objects; it may be empty.
type Query struct {
	SQL   string
	Shape string
}

func (q *Query) String() string { return q.SQL }

func (d *QueryDef) aliasSet() map[string]bool {
	set := make(map[string]bool, len(d.Aliases))
	for _, a := range d.Aliases {
		set[a] = true
	}
	return set
}

func (d *QueryDef) check() error {
	if len(d.Entities) != len(d.Aliases) {
		return queryErr(CodeWrongEntityArity, nil,
			"%d entities declared with %d aliases", len(d.Entities), len(d.Aliases))
	}
	if err := validatePredicate(d.Predicate); err != nil {
		return err
	}
	return validateProjection(d.Projection)
}

// compileSelect compiles a SELECT statement per the fixed clause
// order: SELECT, FROM, WHERE, GROUP BY, HAVING, ORDER BY, each
// omitted when empty.
func compileSelect(def *QueryDef) (*Query, error) {
	if err := def.check(); err != nil {
		return nil, err
	}
	aliases := def.aliasSet()

	cond, joins, err := extractJoins(def.Predicate, aliases)
	if err != nil {
		return nil, err
	}

	fromItems, err := assembleFrom(def, joins)
	if err != nil {
		return nil, err
	}

	r := newRenderer(def.Bindings)

	whereExpr, havingExpr, err := partitionConditions(cond, aliases)
	if err != nil {
		return nil, err
	}
	var sqlWhere, sqlHaving string
	if whereExpr != nil {
		if sqlWhere, err = r.render(whereExpr, qexpr.PrecTopLevel); err != nil {
			return nil, err
		}
	}
	if havingExpr != nil {
		if sqlHaving, err = r.render(havingExpr, qexpr.PrecTopLevel); err != nil {
			return nil, err
		}
	}

	sel, err := extractSelect(r, def.Projection)
	if err != nil {
		return nil, err
	}

	parts := []string{"SELECT", strings.Join(sel.items, ", ")}
	if len(fromItems) > 0 {
		parts = append(parts, "FROM", strings.Join(fromItems, ", "))
	}
	if sqlWhere != "" {
		parts = append(parts, "WHERE", sqlWhere)
	}
	if sel.hasAggregate && len(sel.groupBy) > 0 {
		parts = append(parts, "GROUP BY", strings.Join(sel.groupBy, ", "))
	}
	if sqlHaving != "" {
		parts = append(parts, "HAVING", sqlHaving)
	}
	if len(sel.orderBy) > 0 {
		parts = append(parts, "ORDER BY", strings.Join(sel.orderBy, ", "))
	}
	return &Query{SQL: strings.Join(parts, " "), Shape: def.Shape}, nil
}

// assembleFrom builds the FROM items: starting from the first
// declared alias, greedily attach any remaining alias with a recorded
// join to the current connected group; unconnected aliases start new
// comma-separated items. Every recorded join must be consumed.
func assembleFrom(def *QueryDef, joins *JoinSet) ([]string, error) {
	tableAlias := make(map[string]string, len(def.Aliases))
	for i, alias := range def.Aliases {
		tableAlias[alias] = fmt.Sprintf("%q AS %s", def.Entities[i].Name, alias)
	}

	remaining := append([]string{}, def.Aliases...)
	var items []string
	for len(remaining) > 0 {
		first := remaining[0]
		remaining = remaining[1:]
		joined := []string{first}
		group := []string{tableAlias[first]}

		for {
			ej, ok := matchEntities(joins, joined, remaining)
			if !ok {
				break
			}
			joined = append(joined, ej.RightAlias)
			remaining = removeString(remaining, ej.RightAlias)
			group = append(group, fmt.Sprintf("%s JOIN %s ON %s.%s = %s.%s",
				ej.Kind, tableAlias[ej.RightAlias],
				ej.LeftAlias, ej.LeftColumn, ej.RightAlias, ej.RightColumn))
		}
		items = append(items, strings.Join(group, " "))
	}

	if !joins.Empty() {
		return nil, queryErr(CodeAmbiguousJoin, nil,
			"join conditions left over after every alias was placed")
	}
	return items, nil
}

// matchEntities finds a recorded join pairing an already-joined alias
// with a remaining one, swapped into traversal direction.
func matchEntities(joins *JoinSet, joined, remaining []string) (EntityJoin, bool) {
	for _, left := range joined {
		for _, right := range remaining {
			if ej, ok := joins.Pop(left, right); ok {
				return ej, true
			}
		}
	}
	return EntityJoin{}, false
}

func removeString(list []string, s string) []string {
	for i, existing := range list {
		if existing == s {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// partitionConditions splits the join-stripped predicate into its
// WHERE and HAVING halves. A top-level conjunct valid in neither
// context would silently vanish from the statement; that is a caller
// defect and surfaces as MixedAggregationContext.
func partitionConditions(cond qexpr.Expression, aliases map[string]bool) (whereExpr, havingExpr qexpr.Expression, err error) {
	if cond == nil {
		return nil, nil, nil
	}
	for _, conjunct := range topLevelConjuncts(cond) {
		inWhere := newConditionExtractor(aliases, false).visit(conjunct)
		inHaving := newConditionExtractor(aliases, true).visit(conjunct)
		if inWhere == nil && inHaving == nil {
			return nil, nil, queryErr(CodeMixedAggregation, conjunct,
				"condition mixes aggregated and plain references and fits neither WHERE nor HAVING")
		}
	}
	whereExpr = newConditionExtractor(aliases, false).visit(cond)
	havingExpr = newConditionExtractor(aliases, true).visit(cond)
	return whereExpr, havingExpr, nil
}

// selectParts is the outcome of projecting the yield expression.
type selectParts struct {
	items        []string
	groupBy      []string
	orderBy      []string
	hasAggregate bool
}

// extractSelect compiles the projection: order markers emit their
// argument plus an ORDER BY entry, bare aliases expand to *, and
// non-aggregate items double as GROUP BY entries (meaningful only
// when some item aggregates).
func extractSelect(r *renderer, projection qexpr.Expression) (*selectParts, error) {
	sel := &selectParts{}
	for _, elem := range topLevelElements(projection) {
		if call, m, ok := isMarkerCall(elem, tagOrder); ok {
			item, err := sel.visitItem(r, call.Args[0])
			if err != nil {
				return nil, err
			}
			direction := "DESC"
			if m.ascending {
				direction = "ASC"
			}
			sel.orderBy = append(sel.orderBy, item+" "+direction)
			continue
		}
		if _, ok := elem.(qexpr.LocalRef); ok {
			sel.items = append(sel.items, "*")
			continue
		}
		if _, err := sel.visitItem(r, elem); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

func (sel *selectParts) visitItem(r *renderer, e qexpr.Expression) (string, error) {
	item, err := r.render(e, qexpr.PrecTopLevel)
	if err != nil {
		return "", err
	}
	if containsAggregate(e) {
		sel.hasAggregate = true
	} else {
		sel.groupBy = append(sel.groupBy, item)
	}
	sel.items = append(sel.items, item)
	return item, nil
}
