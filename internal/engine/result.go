package engine

import (
	"errors"
	"time"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/format"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/querysql"
	"github.com/roach88/tql/internal/resolver"
	"github.com/roach88/tql/internal/schema"
)

// ScriptResult is the outcome of one script run.
//
// Variables holds every assignment that produced a value; Unresolved lists
// the assignments that failed or depend on one that did, in script order.
type ScriptResult struct {
	QueryType  queryir.QueryType   `json:"queryType"`
	Statements []*StatementResult  `json:"statements"`
	Variables  map[string]ir.Value `json:"variables"`
	Unresolved []string            `json:"unresolved"`
}

// Failed returns the statements that did not produce a value.
func (r *ScriptResult) Failed() []*StatementResult {
	out := []*StatementResult{}
	for _, s := range r.Statements {
		if s.Error != nil {
			out = append(out, s)
		}
	}
	return out
}

// StatementResult is the outcome of one statement.
//
// Exactly one of Value (query, assignment), Dashboard or Error is set. A
// dashboard never fails as a whole: widget failures live in its payload.
type StatementResult struct {
	Index      int                      `json:"index"`
	Kind       queryir.Kind             `json:"-"`
	QueryType  queryir.QueryType        `json:"queryType"`
	Target     string                   `json:"target,omitempty"`
	RawText    string                   `json:"rawText"`
	Shape      ir.Shape                 `json:"shape"`
	Value      ir.Value                 `json:"value,omitempty"`
	Formatted  *format.FormattedValue   `json:"formatted,omitempty"`
	Dashboard  *format.DashboardPayload `json:"dashboard,omitempty"`
	Outcome    audit.Outcome            `json:"outcome"`
	CacheHit   bool                     `json:"cacheHit"`
	DurationMs int64                    `json:"durationMs"`
	Error      *ErrorInfo               `json:"error,omitempty"`

	Err *RuntimeError `json:"-"`
}

// Position is a source location in a response.
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ErrorInfo is the caller-facing form of an error: a stable message and
// code plus enough context to underline the offending token.
type ErrorInfo struct {
	Message        string    `json:"message"`
	Code           string    `json:"code"`
	StatementIndex *int      `json:"statementIndex,omitempty"`
	Position       *Position `json:"position,omitempty"`
	WidgetIndex    *int      `json:"widgetIndex,omitempty"`
	Statement      string    `json:"statement,omitempty"`
	Expected       []string  `json:"expected,omitempty"`
}

// Error codes of failures that are not runtime errors.
const (
	CodeParse    = "PARSE_ERROR"
	CodeCompile  = "COMPILE_ERROR"
	CodeSchema   = "SCHEMA_ERROR"
	CodeInternal = string(ErrCodeInternal)
)

func position(p queryir.Pos) *Position {
	if !p.IsValid() {
		return nil
	}
	return &Position{Offset: p.Offset, Line: p.Line, Column: p.Column}
}

func intPtr(i int) *int { return &i }

// ErrorInfoFrom maps any pipeline error to its ErrorInfo. Nil maps to nil.
func ErrorInfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var (
		pe *parser.ParseError
		se *resolver.SemanticError
		ce *querysql.CompileError
		re *RuntimeError
		te *TimeoutError
		le *schema.LoadError
	)
	switch {
	case errors.As(err, &pe):
		return &ErrorInfo{
			Message:        pe.Error(),
			Code:           CodeParse,
			StatementIndex: intPtr(pe.StatementIndex),
			Position:       position(pe.Pos),
			Statement:      pe.Statement,
			Expected:       pe.Expected,
		}
	case errors.As(err, &se):
		return &ErrorInfo{
			Message:        se.Error(),
			Code:           string(se.Code),
			StatementIndex: intPtr(se.StatementIndex),
			Position:       position(se.Pos),
			Statement:      se.Statement,
		}
	case errors.As(err, &ce):
		return &ErrorInfo{
			Message:        ce.Error(),
			Code:           CodeCompile,
			StatementIndex: intPtr(ce.StatementIndex),
			Position:       position(ce.Pos),
			Statement:      ce.Statement,
		}
	case errors.As(err, &re):
		return &ErrorInfo{
			Message:        re.Message,
			Code:           string(re.Code),
			StatementIndex: intPtr(re.StatementIndex),
			Position:       position(re.Pos),
			WidgetIndex:    re.WidgetIndex,
		}
	case errors.As(err, &te):
		return &ErrorInfo{Message: te.Error(), Code: string(ErrCodeTimeout)}
	case datasource.IsDataSourceError(err):
		return &ErrorInfo{Message: err.Error(), Code: string(ErrCodeDataSource)}
	case errors.As(err, &le):
		return &ErrorInfo{Message: le.Error(), Code: CodeSchema}
	default:
		return &ErrorInfo{Message: err.Error(), Code: CodeInternal}
	}
}

// Response is the envelope returned to API callers.
type Response struct {
	Success   bool              `json:"success"`
	Data      *ScriptResult     `json:"data,omitempty"`
	QueryType queryir.QueryType `json:"queryType,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Error     *ErrorInfo        `json:"error,omitempty"`
}

// NewResponse builds the envelope of a run.
//
// The response fails when the run returned an error (a partial result is
// still attached as data) or when every statement of a non-empty script
// failed; the error is then the first statement's. A script where only
// some statements failed succeeds, with the failures reported per
// statement.
func NewResponse(res *ScriptResult, err error, now time.Time) Response {
	resp := Response{Success: true, Data: res, Timestamp: now.UTC()}
	if res != nil {
		resp.QueryType = res.QueryType
	}
	if err != nil {
		resp.Success = false
		resp.Error = ErrorInfoFrom(err)
		return resp
	}
	if res == nil {
		return resp
	}
	failed := res.Failed()
	if len(res.Statements) > 0 && len(failed) == len(res.Statements) {
		resp.Success = false
		resp.Error = failed[0].Error
	}
	return resp
}
