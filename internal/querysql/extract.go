package querysql

import "github.com/bkovari/relinq/internal/qexpr"

// topLevel returns the top-level members of a predicate or projection:
// the operands of a root conjunction / elements of a root tuple, or
// the root itself.
func topLevelConjuncts(e qexpr.Expression) []qexpr.Expression {
	if conj, ok := e.(qexpr.Conjunction); ok {
		return conj.Operands
	}
	return []qexpr.Expression{e}
}

func topLevelElements(e qexpr.Expression) []qexpr.Expression {
	if tup, ok := e.(qexpr.Tuple); ok {
		return tup.Elems
	}
	return []qexpr.Expression{e}
}

// validatePredicate rejects order markers anywhere in the predicate,
// join markers below the top level of the root conjunction, and
// nested aggregation.
func validatePredicate(pred qexpr.Expression) error {
	if pred == nil {
		return nil
	}
	for _, member := range topLevelConjuncts(pred) {
		if call, _, ok := isMarkerCall(member, tagJoin); ok {
			for _, arg := range call.Args {
				if err := checkInner(arg, false); err != nil {
					return err
				}
			}
			continue
		}
		if err := checkInner(member, false); err != nil {
			return err
		}
	}
	return nil
}

// validateProjection allows order markers only as top-level wrappers
// and rejects join markers and nested aggregation everywhere.
func validateProjection(proj qexpr.Expression) error {
	for _, elem := range topLevelElements(proj) {
		if call, _, ok := isMarkerCall(elem, tagOrder); ok {
			if err := checkInner(call.Args[0], false); err != nil {
				return err
			}
			continue
		}
		if err := checkInner(elem, false); err != nil {
			return err
		}
	}
	return nil
}

// checkInner walks an expression below marker-permitted positions.
func checkInner(e qexpr.Expression, inAggregate bool) error {
	if e == nil {
		return nil
	}
	if call, ok := e.(qexpr.Call); ok {
		if m, isMarker := markerOf(call); isMarker {
			switch m.tag {
			case tagOrder:
				return queryErr(CodeMisplacedMarker, call,
					"order function %s is only valid as a top-level wrapper in the projection", call.FunctionName())
			case tagJoin:
				return queryErr(CodeMisplacedMarker, call,
					"join function %s is only valid at the top level of the filter condition", call.FunctionName())
			case tagAggregate, tagConditionalAggregate:
				if inAggregate {
					return queryErr(CodeNestedAggregation, call,
						"aggregation function %s may not be nested in another aggregation", call.FunctionName())
				}
				inAggregate = true
			}
		}
	}
	for _, child := range children(e) {
		if err := checkInner(child, inAggregate); err != nil {
			return err
		}
	}
	return nil
}

// children enumerates the direct sub-expressions of a node.
func children(e qexpr.Expression) []qexpr.Expression {
	switch v := e.(type) {
	case qexpr.AttributeAccess:
		return []qexpr.Expression{v.Base}
	case qexpr.IndexAccess:
		return []qexpr.Expression{v.Base}
	case qexpr.Call:
		out := make([]qexpr.Expression, 0, len(v.Args)+len(v.KwArgs))
		out = append(out, v.Args...)
		for _, kw := range v.KwArgs {
			out = append(out, kw.Value)
		}
		return out
	case qexpr.UnaryOp:
		return []qexpr.Expression{v.Operand}
	case qexpr.BinaryOp:
		return []qexpr.Expression{v.Left, v.Right}
	case qexpr.Comparison:
		return []qexpr.Expression{v.Left, v.Right}
	case qexpr.Negation:
		return []qexpr.Expression{v.Operand}
	case qexpr.Conjunction:
		return v.Operands
	case qexpr.Disjunction:
		return v.Operands
	case qexpr.Conditional:
		return []qexpr.Expression{v.Cond, v.Then, v.Else}
	case qexpr.Tuple:
		return v.Elems
	case qexpr.Sequence:
		return v.Elems
	default:
		return nil
	}
}

// extractJoins removes join-marker calls from the predicate and
// records them in a JoinSet. Boolean nodes that lose members simplify:
// one survivor collapses to that member, none to nil.
func extractJoins(pred qexpr.Expression, aliases map[string]bool) (qexpr.Expression, *JoinSet, error) {
	joins := NewJoinSet()
	if pred == nil {
		return nil, joins, nil
	}
	stripped, err := stripJoins(pred, aliases, joins)
	if err != nil {
		return nil, nil, err
	}
	return stripped, joins, nil
}

func stripJoins(e qexpr.Expression, aliases map[string]bool, joins *JoinSet) (qexpr.Expression, error) {
	switch v := e.(type) {
	case qexpr.Conjunction:
		survivors, err := stripJoinMembers(v.Operands, aliases, joins)
		if err != nil {
			return nil, err
		}
		return simplifyBoolean(e, survivors), nil
	case qexpr.Disjunction:
		survivors, err := stripJoinMembers(v.Operands, aliases, joins)
		if err != nil {
			return nil, err
		}
		return simplifyBoolean(e, survivors), nil
	case qexpr.Call:
		m, ok := markerOf(v)
		if !ok || m.tag != tagJoin {
			return e, nil
		}
		j, err := joinOf(m.joinKind, v)
		if err != nil {
			return nil, err
		}
		if !aliases[j.LeftAlias] || !aliases[j.RightAlias] {
			return nil, queryErr(CodeMalformedJoin, v,
				"join arguments must reference declared entity aliases")
		}
		joins.Add(j)
		return nil, nil
	default:
		return e, nil
	}
}

func stripJoinMembers(members []qexpr.Expression, aliases map[string]bool, joins *JoinSet) ([]qexpr.Expression, error) {
	survivors := make([]qexpr.Expression, 0, len(members))
	for _, member := range members {
		stripped, err := stripJoins(member, aliases, joins)
		if err != nil {
			return nil, err
		}
		if stripped != nil {
			survivors = append(survivors, stripped)
		}
	}
	return survivors, nil
}

// simplifyBoolean rebuilds a boolean node from its surviving members.
func simplifyBoolean(original qexpr.Expression, survivors []qexpr.Expression) qexpr.Expression {
	switch len(survivors) {
	case 0:
		return nil
	case 1:
		return survivors[0]
	}
	if _, ok := original.(qexpr.Conjunction); ok {
		return qexpr.Conjunction{Operands: survivors}
	}
	return qexpr.Disjunction{Operands: survivors}
}

// joinOf checks the canonical join(alias1.column1, alias2.column2)
// shape and converts it to an EntityJoin.
func joinOf(kind JoinKind, call qexpr.Call) (EntityJoin, error) {
	left, lok := aliasColumn(call.Args[0])
	right, rok := aliasColumn(call.Args[1])
	if !lok || !rok {
		return EntityJoin{}, queryErr(CodeMalformedJoin, call,
			"join expressions must adhere to the format: join(entity1.attr1, entity2.attr2)")
	}
	return EntityJoin{
		Kind:        kind,
		LeftAlias:   left.alias,
		LeftColumn:  left.column,
		RightAlias:  right.alias,
		RightColumn: right.column,
	}, nil
}

type aliasRef struct {
	alias  string
	column string
}

func aliasColumn(e qexpr.Expression) (aliasRef, bool) {
	attr, ok := e.(qexpr.AttributeAccess)
	if !ok {
		return aliasRef{}, false
	}
	local, ok := attr.Base.(qexpr.LocalRef)
	if !ok {
		return aliasRef{}, false
	}
	return aliasRef{alias: local.Name, column: attr.Name}, true
}

// conditionExtractor collects the sub-expressions of a predicate valid
// in one aggregation context: aggregation=false gathers WHERE terms,
// aggregation=true gathers HAVING terms. A nil result means the
// expression has no part valid in this context.
type conditionExtractor struct {
	aliases     map[string]bool
	aggregation bool
	inAggregate bool
}

func newConditionExtractor(aliases map[string]bool, aggregation bool) *conditionExtractor {
	return &conditionExtractor{aliases: aliases, aggregation: aggregation}
}

func (x *conditionExtractor) visit(e qexpr.Expression) qexpr.Expression {
	switch v := e.(type) {
	case nil:
		return nil

	case qexpr.Conjunction:
		if members := x.visitMembers(v.Operands); members != nil {
			return simplifyBoolean(v, members)
		}
		return nil
	case qexpr.Disjunction:
		if members := x.visitMembers(v.Operands); members != nil {
			return simplifyBoolean(v, members)
		}
		return nil

	case qexpr.Negation:
		if inner := x.visit(v.Operand); inner != nil {
			return qexpr.Negation{Operand: inner}
		}
		return nil
	case qexpr.UnaryOp:
		if inner := x.visit(v.Operand); inner != nil {
			return qexpr.UnaryOp{Kind: v.Kind, Operand: inner}
		}
		return nil

	case qexpr.BinaryOp:
		left, right := x.visit(v.Left), x.visit(v.Right)
		if left != nil && right != nil {
			return qexpr.BinaryOp{Kind: v.Kind, Left: left, Right: right}
		}
		return nil
	case qexpr.Comparison:
		left, right := x.visit(v.Left), x.visit(v.Right)
		if left != nil && right != nil {
			return qexpr.Comparison{Op: v.Op, Left: left, Right: right}
		}
		return nil

	case qexpr.Conditional:
		cond, then, els := x.visit(v.Cond), x.visit(v.Then), x.visit(v.Else)
		if cond != nil && then != nil && els != nil {
			return qexpr.Conditional{Cond: cond, Then: then, Else: els}
		}
		return nil

	case qexpr.Call:
		return x.visitCall(v)

	case qexpr.AttributeAccess:
		if base := x.visit(v.Base); base != nil {
			return qexpr.AttributeAccess{Base: base, Name: v.Name}
		}
		return nil

	case qexpr.LocalRef:
		// A bare entity reference belongs to WHERE outside aggregation
		// and to HAVING inside one; in the opposite position it
		// vanishes.
		if x.aliases[v.Name] && x.aggregation != x.inAggregate {
			return nil
		}
		return v

	default:
		return e
	}
}

func (x *conditionExtractor) visitMembers(members []qexpr.Expression) []qexpr.Expression {
	survivors := make([]qexpr.Expression, 0, len(members))
	for _, member := range members {
		if visited := x.visit(member); visited != nil {
			survivors = append(survivors, visited)
		}
	}
	return survivors
}

func (x *conditionExtractor) visitCall(call qexpr.Call) qexpr.Expression {
	if _, _, ok := isAggregateMarker(call); ok {
		if !x.aggregation {
			return nil
		}
		x.inAggregate = true
		args := make([]qexpr.Expression, len(call.Args))
		for i, arg := range call.Args {
			args[i] = x.visit(arg)
		}
		x.inAggregate = false
		return qexpr.Call{Callee: call.Callee, Args: args}
	}

	// Value markers (date parts, now, date literals) are transparent
	// to the aggregation context; only their leaf references decide.
	if _, _, ok := isMarkerCall(call, tagDatePart, tagNow, tagMakeDate); !ok && x.aggregation {
		return nil
	}
	args := make([]qexpr.Expression, len(call.Args))
	for i, arg := range call.Args {
		if args[i] = x.visit(arg); args[i] == nil {
			return nil
		}
	}
	return qexpr.Call{Callee: call.Callee, Args: args, KwArgs: call.KwArgs}
}

// containsAggregate reports whether any aggregate marker call occurs
// in the expression.
func containsAggregate(e qexpr.Expression) bool {
	if e == nil {
		return false
	}
	if _, _, ok := isAggregateMarker(e); ok {
		return true
	}
	for _, child := range children(e) {
		if containsAggregate(child) {
			return true
		}
	}
	return false
}
