package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/queryir"
)

func TestRuntimeError_Error(t *testing.T) {
	err := &RuntimeError{Code: ErrCodeTimeout, Message: "timeout after 1s", StatementIndex: 2}
	assert.Equal(t, "TIMEOUT: timeout after 1s (statement=3)", err.Error())

	w := 0
	err.WidgetIndex = &w
	assert.Equal(t, "TIMEOUT: timeout after 1s (statement=3, widget=1)", err.Error())
}

func TestPredicates(t *testing.T) {
	timeout := &TimeoutError{Timeout: time.Second}
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", timeout)))
	assert.True(t, IsTimeout(&RuntimeError{Code: ErrCodeTimeout}))
	assert.False(t, IsTimeout(errors.New("other")))

	unresolved := NewUnresolvedError(1, "a", queryir.Pos{Line: 1, Column: 1})
	assert.True(t, IsUnresolved(unresolved))
	assert.False(t, IsTimeout(unresolved))
	assert.True(t, IsPanic(&RuntimeError{Code: ErrCodePanic}))
}

func TestWrapRuntime(t *testing.T) {
	pos := queryir.Pos{Offset: 4, Line: 1, Column: 5}
	w := 1

	re := wrapRuntime(datasource.Wrap("query", errors.New("boom")), 3, &w, pos)
	assert.Equal(t, ErrCodeDataSource, re.Code)
	assert.Equal(t, 3, re.StatementIndex)
	assert.Equal(t, &w, re.WidgetIndex)
	assert.Equal(t, pos, re.Pos)
	assert.True(t, datasource.IsDataSourceError(re))

	re = wrapRuntime(&TimeoutError{Timeout: time.Second}, 0, nil, pos)
	assert.Equal(t, ErrCodeTimeout, re.Code)

	inner := &RuntimeError{Code: ErrCodeDivisionByZero, Message: "division by zero"}
	re = wrapRuntime(inner, 5, nil, pos)
	assert.Equal(t, ErrCodeDivisionByZero, re.Code)
	assert.Equal(t, 5, re.StatementIndex)
	assert.Equal(t, pos, re.Pos, "missing position is filled in")
	assert.Equal(t, 0, inner.StatementIndex, "the original is not mutated")

	re = wrapRuntime(errors.New("mystery"), 0, nil, pos)
	assert.Equal(t, ErrCodeInternal, re.Code)
}

func TestErrorInfoFrom(t *testing.T) {
	assert.Nil(t, ErrorInfoFrom(nil))

	w := 2
	info := ErrorInfoFrom(&RuntimeError{
		Code:           ErrCodeUnresolved,
		Message:        `variable "a" is unresolved`,
		StatementIndex: 1,
		WidgetIndex:    &w,
		Pos:            queryir.Pos{Offset: 10, Line: 2, Column: 3},
	})
	assert.Equal(t, "UNRESOLVED", info.Code)
	assert.Equal(t, 1, *info.StatementIndex)
	assert.Equal(t, 2, *info.WidgetIndex)
	assert.Equal(t, &Position{Offset: 10, Line: 2, Column: 3}, info.Position)

	info = ErrorInfoFrom(errors.New("boom"))
	assert.Equal(t, CodeInternal, info.Code)
	assert.Nil(t, info.Position)
}
