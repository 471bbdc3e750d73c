package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tql/internal/queryir"
)

// ParseError reports a lexical or grammatical error.
//
// Pos points at the offending token so a UI can underline it. Statement is
// the source text of the statement that failed and StatementIndex its
// 0-based position in the script. Statements parsed before it are still
// returned by Parse.
type ParseError struct {
	Pos            queryir.Pos
	Expected       []string
	Found          string
	Statement      string
	StatementIndex int
	Message        string // lexical detail, empty for grammar errors

	// Kind is the statement kind detected before the error, so callers can
	// still classify a script that does not parse.
	Kind queryir.Kind
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "parse error at %s in statement %d: ", e.Pos, e.StatementIndex+1)
	if e.Message != "" {
		sb.WriteString(e.Message)
		return sb.String()
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&sb, "expected %s, ", strings.Join(e.Expected, " or "))
	}
	fmt.Fprintf(&sb, "found %s", e.Found)
	return sb.String()
}

// IsParseError returns true if err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
