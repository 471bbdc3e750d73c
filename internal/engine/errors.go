package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/queryir"
)

// RuntimeError represents an error detected while executing a program.
//
// Runtime errors include:
//   - Data source failures: the adapter returned an error
//   - Timeouts: a data-source call exceeded the statement timeout
//   - Unresolved values: a statement reads a variable that failed earlier
//   - Arithmetic errors: division by zero, non-numeric operands
//   - Panics: an adapter panicked inside a statement or widget
//
// RuntimeError carries the statement (and widget) it belongs to so callers
// can point at the offending TQL text.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// StatementIndex is the 0-based statement position in the script.
	StatementIndex int

	// WidgetIndex is set for failures inside a dashboard widget.
	WidgetIndex *int

	// Pos points at the expression that failed, when known.
	Pos queryir.Pos

	// Variable names the unresolved variable (for ErrCodeUnresolved).
	Variable string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDataSource indicates the data-source adapter failed.
	ErrCodeDataSource RuntimeErrorCode = "DATA_SOURCE_ERROR"

	// ErrCodeTimeout indicates a data-source call exceeded its timeout.
	ErrCodeTimeout RuntimeErrorCode = "TIMEOUT"

	// ErrCodeUnresolved indicates a dependency on a failed variable.
	ErrCodeUnresolved RuntimeErrorCode = "UNRESOLVED"

	// ErrCodeArithmetic indicates engine-side arithmetic could not run.
	ErrCodeArithmetic RuntimeErrorCode = "ARITHMETIC_ERROR"

	// ErrCodeDivisionByZero indicates a division whose divisor is zero.
	ErrCodeDivisionByZero RuntimeErrorCode = "DIVISION_BY_ZERO"

	// ErrCodeShapeMismatch indicates a result of the wrong shape.
	ErrCodeShapeMismatch RuntimeErrorCode = "SHAPE_MISMATCH"

	// ErrCodePanic indicates a recovered panic.
	ErrCodePanic RuntimeErrorCode = "PANIC"

	// ErrCodeInternal indicates a failure inside the engine itself.
	ErrCodeInternal RuntimeErrorCode = "INTERNAL_ERROR"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.WidgetIndex != nil {
		return fmt.Sprintf("%s: %s (statement=%d, widget=%d)", e.Code, e.Message, e.StatementIndex+1, *e.WidgetIndex+1)
	}
	return fmt.Sprintf("%s: %s (statement=%d)", e.Code, e.Message, e.StatementIndex+1)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// TimeoutError is a data-source call that did not finish in time.
type TimeoutError struct {
	Timeout time.Duration
	SQL     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

// IsTimeout returns true if err is a timeout, either a *TimeoutError or a
// RuntimeError with ErrCodeTimeout. Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return hasCode(err, ErrCodeTimeout)
}

// IsUnresolved returns true if err reports a failed dependency.
func IsUnresolved(err error) bool {
	return hasCode(err, ErrCodeUnresolved)
}

// IsPanic returns true if err is a recovered panic.
func IsPanic(err error) bool {
	return hasCode(err, ErrCodePanic)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// classify maps an evaluation failure to its runtime error code.
func classify(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	var te *TimeoutError
	switch {
	case errors.As(err, &te):
		return ErrCodeTimeout
	case datasource.IsDataSourceError(err):
		return ErrCodeDataSource
	default:
		return ErrCodeInternal
	}
}

// NewUnresolvedError creates a RuntimeError for a read of a failed variable.
func NewUnresolvedError(stmt int, variable string, pos queryir.Pos) *RuntimeError {
	return &RuntimeError{
		Code:           ErrCodeUnresolved,
		Message:        fmt.Sprintf("variable %q is unresolved", variable),
		StatementIndex: stmt,
		Pos:            pos,
		Variable:       variable,
	}
}

// wrapRuntime attaches statement context to an evaluation failure. Errors
// that already are RuntimeErrors only get the missing location filled in.
func wrapRuntime(err error, stmt int, widget *int, pos queryir.Pos) *RuntimeError {
	var re *RuntimeError
	if errors.As(err, &re) {
		out := *re
		out.StatementIndex = stmt
		if out.WidgetIndex == nil {
			out.WidgetIndex = widget
		}
		if !out.Pos.IsValid() {
			out.Pos = pos
		}
		return &out
	}
	code := classify(err)
	return &RuntimeError{
		Code:           code,
		Message:        err.Error(),
		StatementIndex: stmt,
		WidgetIndex:    widget,
		Pos:            pos,
		Err:            err,
	}
}
