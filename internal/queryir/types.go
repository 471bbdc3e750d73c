package queryir

import (
	"fmt"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/ir"
)

// Pos is a source position. Line and Column are 1-based; Offset is the
// byte offset into the script source.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsValid reports whether the position was set by the parser.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Kind is the statement kind chosen by the first parse decision.
type Kind int

const (
	KindQuery Kind = iota
	KindAssignment
	KindDashboard
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindAssignment:
		return "assignment"
	case KindDashboard:
		return "dashboard"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// QueryType is the caller-facing classification of a statement or script.
type QueryType string

const (
	QueryTypeSimple    QueryType = "simple"
	QueryTypeVariable  QueryType = "variable"
	QueryTypeDashboard QueryType = "dashboard"
)

// QueryType maps a statement kind to its classification.
func (k Kind) QueryType() QueryType {
	switch k {
	case KindAssignment:
		return QueryTypeVariable
	case KindDashboard:
		return QueryTypeDashboard
	default:
		return QueryTypeSimple
	}
}

// Script is an ordered sequence of statements separated by ";".
type Script struct {
	Source     string
	Statements []*Statement
}

// QueryType classifies the whole script: dashboard wins over variable,
// variable over simple. An empty script is simple.
func (s *Script) QueryType() QueryType {
	qt := QueryTypeSimple
	for _, st := range s.Statements {
		switch st.Kind {
		case KindDashboard:
			return QueryTypeDashboard
		case KindAssignment:
			qt = QueryTypeVariable
		}
	}
	return qt
}

// Statement is one parsed unit of TQL source.
//
// Exactly one of Expr (query, assignment) or Dashboard (dashboard block)
// is set. Normalized is the token-normalized text used for cache keys:
// keywords upper-cased, whitespace and comments collapsed.
type Statement struct {
	Index      int
	Kind       Kind
	RawText    string
	Normalized string
	Pos        Pos

	Target    string // assignment target
	TargetPos Pos

	Expr      Expr
	Dashboard *Dashboard
}

// Ident is a named reference to an entity or field.
type Ident struct {
	Name string
	Pos  Pos
}

// Expr is an expression node.
//
// This is a sealed interface - only types in this package implement it.
// Backends switch exhaustively over:
//   - *Aggregation: FUNC field DE entity [ONDE cond] [AGRUPADO POR field]
//   - *Search: BUSCAR fields DE entity [ONDE cond] [ORDENAR POR f] [LIMITE n]
//   - *Top: TOP n group POR aggregation
//   - *PeriodCompare: COMPARAR aggregation COM temporal
//   - *Forecast: PREVER aggregation POR field [PROXIMOS n]
//   - *TemporalFunction: UNIT(n), only meaningful inside a condition
//   - *BinaryOp: arithmetic over two expressions
//   - *Literal: numeric or text constant
//   - *VariableRef: reference to an earlier assignment
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Condition is a filter predicate inside ONDE.
//
// This is a sealed interface - only *Compare, *InPeriod, *And and *Or
// implement it.
type Condition interface {
	conditionNode() // Marker method - seals interface to this package
}

// Aggregation applies an aggregate function over one field of an entity.
//
// Field is empty when Star is set (CONTAR *). A non-nil GroupBy flips the
// result shape from scalar to row set.
type Aggregation struct {
	Func    grammar.Keyword
	Field   Ident
	Star    bool
	Entity  Ident
	Filter  Condition
	GroupBy *Ident
	Pos     Pos
}

func (*Aggregation) exprNode() {}

// Search lists rows. Empty Fields means every column (BUSCAR *).
// Limit zero means no LIMIT clause.
type Search struct {
	Fields  []Ident
	Entity  Ident
	Filter  Condition
	OrderBy *Ident
	Limit   int
	Pos     Pos
}

func (*Search) exprNode() {}

// Top ranks the groups of Group by the aggregation, descending, keeping N.
type Top struct {
	N     int
	Group Ident
	Agg   *Aggregation
	Pos   Pos
}

func (*Top) exprNode() {}

// PeriodCompare evaluates Agg over its own EM period and over With.
type PeriodCompare struct {
	Agg  *Aggregation
	With *TemporalFunction
	Pos  Pos
}

func (*PeriodCompare) exprNode() {}

// Forecast aggregates Agg per value of By and extrapolates a linear trend
// for Periods future periods. Periods zero means the configured default.
type Forecast struct {
	Agg     *Aggregation
	By      Ident
	Periods int
	Pos     Pos
}

func (*Forecast) exprNode() {}

// Window selects how a temporal function maps to a date range.
type Window int

const (
	// WindowCalendar is the calendar unit shifted by Offset: MES(0), MES(-1).
	WindowCalendar Window = iota
	// WindowLast is the rolling window [now - Offset units, now).
	WindowLast
	// WindowNext is the rolling window [now, now + Offset units).
	WindowNext
)

func (w Window) String() string {
	switch w {
	case WindowLast:
		return "ULTIMOS"
	case WindowNext:
		return "PROXIMOS"
	default:
		return ""
	}
}

// TemporalFunction is a relative date range such as MES(0) or
// ULTIMOS DIA(30).
type TemporalFunction struct {
	Unit   grammar.Unit
	Offset int
	Window Window
	Pos    Pos
}

func (*TemporalFunction) exprNode() {}

func (t *TemporalFunction) String() string {
	s := fmt.Sprintf("%s(%d)", t.Unit, t.Offset)
	if t.Window != WindowCalendar {
		s = t.Window.String() + " " + s
	}
	return s
}

// ArithOp is a binary arithmetic operator.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// BinaryOp combines two scalar expressions. It is evaluated by the engine,
// never in SQL, because operands may come from separate statements.
type BinaryOp struct {
	Op    ArithOp
	Left  Expr
	Right Expr
	Pos   Pos
}

func (*BinaryOp) exprNode() {}

// Literal is a numeric or text constant.
type Literal struct {
	Value ir.Scalar
	Pos   Pos
}

func (*Literal) exprNode() {}

// VariableRef names a variable assigned earlier in the script.
type VariableRef struct {
	Name string
	Pos  Pos
}

func (*VariableRef) exprNode() {}

// Comparator is a comparison operator used by conditions and color rules.
type Comparator string

const (
	CmpEq Comparator = "="
	CmpNe Comparator = "!="
	CmpGt Comparator = ">"
	CmpLt Comparator = "<"
	CmpGe Comparator = ">="
	CmpLe Comparator = "<="
)

// ParseComparator returns the comparator for an operator spelling.
func ParseComparator(s string) (Comparator, bool) {
	switch c := Comparator(s); c {
	case CmpEq, CmpNe, CmpGt, CmpLt, CmpGe, CmpLe:
		return c, true
	default:
		return "", false
	}
}

// Apply evaluates "a <cmp> b".
func (c Comparator) Apply(a, b float64) bool {
	switch c {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpGt:
		return a > b
	case CmpLt:
		return a < b
	case CmpGe:
		return a >= b
	case CmpLe:
		return a <= b
	default:
		return false
	}
}

// Compare is "field <cmp> literal".
type Compare struct {
	Field Ident
	Op    Comparator
	Value *Literal
}

func (*Compare) conditionNode() {}

// InPeriod is "field EM temporal".
type InPeriod struct {
	Field  Ident
	Period *TemporalFunction
}

func (*InPeriod) conditionNode() {}

// And is a conjunction (all must be true). Empty means always true.
type And struct {
	Conditions []Condition
}

func (*And) conditionNode() {}

// Or is a disjunction (any must be true).
type Or struct {
	Conditions []Condition
}

func (*Or) conditionNode() {}

// Dashboard is a named, ordered list of widgets.
type Dashboard struct {
	Name    string
	NamePos Pos
	Widgets []*Widget
}

// WidgetKind is the renderable kind of a widget.
type WidgetKind string

const (
	WidgetKPI   WidgetKind = "kpi"
	WidgetChart WidgetKind = "chart"
	WidgetTable WidgetKind = "table"
)

// Widget is one KPI, chart or table inside a dashboard.
//
// Index is the dashboard-relative display order. ChartType is set only for
// charts. Rules keep declaration order; the first matching color rule wins.
type Widget struct {
	Index     int
	Kind      WidgetKind
	ChartType string
	Title     string
	Source    Expr
	Rules     []FormatRule
	RawText   string
	Pos       Pos
}

// FormatRule is a display rule attached to a widget.
//
// This is a sealed interface - only *Currency, *Percentage, *Decimal and
// *ConditionalColor implement it.
type FormatRule interface {
	formatRule() // Marker method - seals interface to this package
}

// Currency renders numbers as money with the given symbol ("" = default).
type Currency struct {
	Symbol string
}

func (*Currency) formatRule() {}

// Percentage renders numbers as percentages.
type Percentage struct{}

func (*Percentage) formatRule() {}

// Decimal renders numbers with a fixed number of decimal places.
type Decimal struct {
	Places int
}

func (*Decimal) formatRule() {}

// ConditionalColor sets the widget color when "value <cmp> threshold".
type ConditionalColor struct {
	Comparator Comparator
	Threshold  float64
	Color      string
}

func (*ConditionalColor) formatRule() {}

// ExprPos returns the source position of an expression node.
func ExprPos(e Expr) Pos {
	switch n := e.(type) {
	case *Aggregation:
		return n.Pos
	case *Search:
		return n.Pos
	case *Top:
		return n.Pos
	case *PeriodCompare:
		return n.Pos
	case *Forecast:
		return n.Pos
	case *TemporalFunction:
		return n.Pos
	case *BinaryOp:
		return n.Pos
	case *Literal:
		return n.Pos
	case *VariableRef:
		return n.Pos
	default:
		return Pos{}
	}
}
