package querysql

import (
	"errors"
	"fmt"

	"github.com/roach88/tql/internal/queryir"
)

// CompileError is a construct that cannot be lowered to SQL.
type CompileError struct {
	Message        string
	Pos            queryir.Pos
	Statement      string
	StatementIndex int
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("compile error at %s in statement %d: %s", e.Pos, e.StatementIndex+1, e.Message)
	}
	return fmt.Sprintf("compile error in statement %d: %s", e.StatementIndex+1, e.Message)
}

// IsCompileError returns true if err is (or wraps) a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
