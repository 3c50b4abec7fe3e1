package decompile

import (
	"errors"
	"fmt"

	"github.com/bkovari/relinq/internal/qexpr"
)

// StructureErrorCode categorizes structuring failures.
type StructureErrorCode string

const (
	// ErrCodeMalformedStream indicates the stack underflowed or an
	// unknown instruction was encountered during replay.
	ErrCodeMalformedStream StructureErrorCode = "MALFORMED_INSTRUCTION_STREAM"

	// ErrCodeIrreducibleFlow indicates the structuring engine could
	// not reduce a region to a single expression.
	ErrCodeIrreducibleFlow StructureErrorCode = "IRREDUCIBLE_CONTROL_FLOW"
)

// StructureError is a fatal analysis failure. Nothing is retried or
// partially recovered: a malformed stream indicates a defect in the
// extraction collaborator, not a transient condition.
type StructureError struct {
	// Code identifies the error category.
	Code StructureErrorCode

	// Message is a human-readable description.
	Message string

	// Offset is the instruction offset the failure was detected at,
	// or -1 when no single offset applies.
	Offset int

	// Expr is the offending expression, when one was formed.
	Expr qexpr.Expression
}

// Error implements the error interface.
func (e *StructureError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s (offset=%d)", e.Code, e.Message, e.Offset)
	}
	if e.Expr != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, qexpr.String(e.Expr))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsMalformedStream reports whether err is a malformed-stream
// failure. Uses errors.As to handle wrapped errors.
func IsMalformedStream(err error) bool {
	var se *StructureError
	return errors.As(err, &se) && se.Code == ErrCodeMalformedStream
}

// IsIrreducibleFlow reports whether err is an irreducible-flow
// failure. Uses errors.As to handle wrapped errors.
func IsIrreducibleFlow(err error) bool {
	var se *StructureError
	return errors.As(err, &se) && se.Code == ErrCodeIrreducibleFlow
}

func malformedStream(offset int, format string, args ...any) *StructureError {
	return &StructureError{
		Code:    ErrCodeMalformedStream,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
	}
}

func irreducibleFlow(format string, args ...any) *StructureError {
	return &StructureError{
		Code:    ErrCodeIrreducibleFlow,
		Message: fmt.Sprintf(format, args...),
		Offset:  -1,
	}
}
