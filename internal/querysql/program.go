package querysql

import (
	"fmt"
	"time"

	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
)

// Program is a compiled script: one CompiledStatement per statement, in
// script order.
type Program struct {
	Script     *queryir.Script
	QueryType  queryir.QueryType
	Now        time.Time // instant temporal ranges were computed against
	Statements []*CompiledStatement
}

// CompiledStatement is the evaluation recipe of one statement.
//
// Plan is nil for dashboards; each widget carries its own plan instead.
type CompiledStatement struct {
	Index      int
	Kind       queryir.Kind
	Target     string
	RawText    string
	Normalized string
	Pos        queryir.Pos
	Shape      ir.Shape
	Deps       []string

	Plan Plan

	Dashboard *queryir.Dashboard
	Widgets   []*CompiledWidget
}

// Queries returns every CompiledQuery reachable from the statement's plan
// or widgets, left to right.
func (s *CompiledStatement) Queries() []*CompiledQuery {
	out := []*CompiledQuery{}
	if s.Plan != nil {
		out = appendQueries(out, s.Plan)
	}
	for _, w := range s.Widgets {
		out = appendQueries(out, w.Plan)
	}
	return out
}

// CompiledWidget is the evaluation recipe of one dashboard widget.
type CompiledWidget struct {
	Widget *queryir.Widget
	Shape  ir.Shape
	Deps   []string
	Plan   Plan
}

// Plan is a node of a statement's evaluation tree.
//
// This is a sealed interface - only types in this package implement it:
//   - *QueryPlan: run one CompiledQuery against the data source
//   - *ArithPlan: combine two scalar plans in the engine
//   - *LiteralPlan: a constant
//   - *VarPlan: the value of an earlier assignment
type Plan interface {
	planNode() // Marker method - seals interface to this package
}

// QueryPlan runs a single query.
type QueryPlan struct {
	Query *CompiledQuery
}

func (*QueryPlan) planNode() {}

// ArithPlan evaluates "Left Op Right" over scalar results.
type ArithPlan struct {
	Op    queryir.ArithOp
	Left  Plan
	Right Plan
	Pos   queryir.Pos
}

func (*ArithPlan) planNode() {}

// LiteralPlan yields a constant.
type LiteralPlan struct {
	Value ir.Scalar
}

func (*LiteralPlan) planNode() {}

// VarPlan yields the value of a variable.
type VarPlan struct {
	Name string
	Pos  queryir.Pos
}

func (*VarPlan) planNode() {}

func appendQueries(out []*CompiledQuery, p Plan) []*CompiledQuery {
	switch n := p.(type) {
	case *QueryPlan:
		out = append(out, n.Query)
	case *ArithPlan:
		out = appendQueries(out, n.Left)
		out = appendQueries(out, n.Right)
	}
	return out
}

// PostKind selects engine-side processing of a query result.
type PostKind int

const (
	// PostNone returns the result unchanged.
	PostNone PostKind = iota
	// PostCompare appends the variacao column to an atual/anterior row.
	PostCompare
	// PostForecast appends extrapolated periodo/valor rows.
	PostForecast
)

// Post describes engine-side processing of a query result.
// Periods is the forecast horizon; zero means the configured default.
type Post struct {
	Kind    PostKind
	Periods int
}

func (p Post) String() string {
	switch p.Kind {
	case PostCompare:
		return "compare"
	case PostForecast:
		if p.Periods == 0 {
			return "forecast(default)"
		}
		return fmt.Sprintf("forecast(%d)", p.Periods)
	default:
		return "none"
	}
}

// CompiledQuery is parameterized SQL plus its bound parameters.
//
// SQL uses ":name" placeholders; every name appears exactly once and
// Params lists them in placeholder order. Text is the normalized source
// text the query was compiled from and feeds the cache key.
type CompiledQuery struct {
	SQL    string
	Params []ir.Param
	Shape  ir.Shape
	Post   Post
	Text   string
	Pos    queryir.Pos
}

// CacheKey returns the content-addressed key of this query execution.
func (q *CompiledQuery) CacheKey() (string, error) {
	return ir.CacheKey(q.Text, q.SQL, q.Params)
}
