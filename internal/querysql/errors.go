package querysql

import (
	"errors"
	"fmt"

	"github.com/bkovari/relinq/internal/qexpr"
)

// ErrorCode classifies query compilation failures.
type ErrorCode string

const (
	// CodeMalformedJoin means a join marker's arguments are not simple
	// alias.column attribute accesses over declared aliases.
	CodeMalformedJoin ErrorCode = "MALFORMED_JOIN_EXPRESSION"

	// CodeAmbiguousJoin means join graph assembly could not place
	// every declared alias exactly once.
	CodeAmbiguousJoin ErrorCode = "AMBIGUOUS_JOIN"

	// CodeMixedAggregation means a condition is valid in neither WHERE
	// nor HAVING given how it mixes aggregated and plain references.
	CodeMixedAggregation ErrorCode = "MIXED_AGGREGATION_CONTEXT"

	// CodeNestedAggregation means an aggregate call's arguments
	// themselves contain an aggregate call.
	CodeNestedAggregation ErrorCode = "NESTED_AGGREGATION"

	// CodeMisplacedMarker means an order or join marker appears
	// outside its permitted position.
	CodeMisplacedMarker ErrorCode = "MISPLACED_MARKER"

	// CodeUnrecognizedCall means a function call matches no marker
	// table entry and cannot be rendered.
	CodeUnrecognizedCall ErrorCode = "UNRECOGNIZED_CALL"

	// Insert-or-select statements must target exactly one entity and
	// be join-, aggregation- and order-free.
	CodeWrongEntityArity    ErrorCode = "WRONG_ENTITY_ARITY"
	CodeWrongInsertType     ErrorCode = "WRONG_INSERT_TYPE"
	CodeDisallowedJoin      ErrorCode = "DISALLOWED_JOIN_IN_INSERT_CONTEXT"
	CodeDisallowedAggregate ErrorCode = "DISALLOWED_AGGREGATION_IN_INSERT_CONTEXT"
	CodeDisallowedOrder     ErrorCode = "DISALLOWED_ORDER_IN_INSERT_CONTEXT"
)

// QueryError is the single error type surfaced by query compilation.
// Expr carries the offending expression when one is available.
type QueryError struct {
	Code    ErrorCode
	Message string
	Expr    qexpr.Expression
}

func (e *QueryError) Error() string {
	if e.Expr != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, qexpr.String(e.Expr))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err is a *QueryError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Code == code
}

func queryErr(code ErrorCode, expr qexpr.Expression, format string, args ...any) *QueryError {
	return &QueryError{Code: code, Message: fmt.Sprintf(format, args...), Expr: expr}
}
