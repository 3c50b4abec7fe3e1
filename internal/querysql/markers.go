package querysql

import (
	"strings"

	"github.com/bkovari/relinq/internal/qexpr"
)

// markerTag classifies the calls the compiler recognizes structurally
// rather than treating as ordinary function invocations.
type markerTag int

const (
	tagAggregate markerTag = iota
	tagConditionalAggregate
	tagDatePart
	tagNow
	tagMakeDate
	tagJoin
	tagOrder
)

// marker carries everything dispatch needs: the tag, the expected
// argument count, and the tag-specific payload.
type marker struct {
	tag   markerTag
	arity int

	sqlName   string // aggregate function / date part, upper-cased
	joinKind  JoinKind
	ascending bool
}

// markerTable maps function name to marker. The table is closed and
// built once; calls dispatch by exact name plus arity.
var markerTable = buildMarkerTable()

func buildMarkerTable() map[string]marker {
	t := make(map[string]marker)
	for _, name := range []string{"avg", "count", "max", "min", "sum"} {
		t[name] = marker{tag: tagAggregate, arity: 1, sqlName: strings.ToUpper(name)}
		t[name+"_if"] = marker{tag: tagConditionalAggregate, arity: 2, sqlName: strings.ToUpper(name)}
	}
	for _, name := range []string{"year", "month", "day", "hour", "minute", "second"} {
		t[name] = marker{tag: tagDatePart, arity: 1, sqlName: strings.ToUpper(name)}
	}
	t["now"] = marker{tag: tagNow, arity: 0}
	t["date"] = marker{tag: tagMakeDate, arity: 3}
	t["inner_join"] = marker{tag: tagJoin, arity: 2, joinKind: JoinInner}
	t["left_join"] = marker{tag: tagJoin, arity: 2, joinKind: JoinLeft}
	t["right_join"] = marker{tag: tagJoin, arity: 2, joinKind: JoinRight}
	t["full_join"] = marker{tag: tagJoin, arity: 2, joinKind: JoinFull}
	t["asc"] = marker{tag: tagOrder, arity: 1, ascending: true}
	t["desc"] = marker{tag: tagOrder, arity: 1}
	return t
}

// markerOf resolves a call against the marker table. A name match
// with the wrong arity is not a marker.
func markerOf(call qexpr.Call) (marker, bool) {
	name := call.FunctionName()
	if name == "" {
		return marker{}, false
	}
	m, ok := markerTable[name]
	if !ok || m.arity != len(call.Args) || len(call.KwArgs) != 0 {
		return marker{}, false
	}
	return m, true
}

func isMarkerCall(e qexpr.Expression, tags ...markerTag) (qexpr.Call, marker, bool) {
	call, ok := e.(qexpr.Call)
	if !ok {
		return qexpr.Call{}, marker{}, false
	}
	m, ok := markerOf(call)
	if !ok {
		return qexpr.Call{}, marker{}, false
	}
	for _, tag := range tags {
		if m.tag == tag {
			return call, m, true
		}
	}
	return qexpr.Call{}, marker{}, false
}

// isAggregateMarker matches both plain and conditional aggregates.
func isAggregateMarker(e qexpr.Expression) (qexpr.Call, marker, bool) {
	return isMarkerCall(e, tagAggregate, tagConditionalAggregate)
}
