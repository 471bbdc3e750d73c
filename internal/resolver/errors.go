package resolver

import (
	"errors"
	"fmt"

	"github.com/roach88/tql/internal/queryir"
)

// ErrorCode categorizes semantic errors.
type ErrorCode string

const (
	// ErrCodeUnknownEntity indicates an entity missing from the schema.
	ErrCodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeUnknownField indicates a field missing from its entity.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeUnresolvedVariable indicates a reference to a variable that is
	// undefined or only assigned later in the script.
	ErrCodeUnresolvedVariable ErrorCode = "UNRESOLVED_VARIABLE"

	// ErrCodeDuplicateVariable indicates a second assignment to a name.
	ErrCodeDuplicateVariable ErrorCode = "DUPLICATE_VARIABLE"

	// ErrCodeTypeMismatch indicates a shape or field-type violation.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
)

// SemanticError is a resolution failure with the offending token.
type SemanticError struct {
	Code           ErrorCode
	Message        string
	Name           string // offending entity, field or variable name
	Pos            queryir.Pos
	Statement      string
	StatementIndex int
}

// Error implements the error interface.
func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s at %s in statement %d: %s", e.Code, e.Pos, e.StatementIndex+1, e.Message)
}

// IsSemanticError returns true if err is (or wraps) a SemanticError.
func IsSemanticError(err error) bool {
	var se *SemanticError
	return errors.As(err, &se)
}

// HasCode returns true if err is a SemanticError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var se *SemanticError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsUnresolvedVariable returns true for UnresolvedVariable errors.
func IsUnresolvedVariable(err error) bool {
	return HasCode(err, ErrCodeUnresolvedVariable)
}

// IsTypeMismatch returns true for TypeMismatch errors.
func IsTypeMismatch(err error) bool {
	return HasCode(err, ErrCodeTypeMismatch)
}
