// Package resolver checks a parsed TQL script against a schema snapshot.
//
// Resolution is a single left-to-right pass. A variable is visible only to
// statements after its assignment, so the dependency graph is a DAG by
// construction and evaluation order is script order.
package resolver

import (
	"fmt"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/schema"
)

// Variable is a name bound by an assignment.
type Variable struct {
	Name           string
	StatementIndex int
	Shape          ir.Shape
	Deps           []string // variables read by the assignment
}

// ResolvedStatement is a statement that passed resolution.
type ResolvedStatement struct {
	Statement *queryir.Statement

	// Shape is the result shape of Statement.Expr. Unused for dashboards.
	Shape ir.Shape

	// Deps lists the variables the statement reads, first use first.
	Deps []string

	// Widgets holds one entry per dashboard widget, in display order.
	Widgets []ResolvedWidget
}

// ResolvedWidget is the resolution of one widget source.
type ResolvedWidget struct {
	Widget *queryir.Widget
	Shape  ir.Shape
	Deps   []string
}

// ResolvedScript is a script whose names, shapes and dependencies are
// known. Statements holds the resolved prefix when resolution fails.
type ResolvedScript struct {
	Script     *queryir.Script
	Schema     *schema.Snapshot
	Statements []*ResolvedStatement
	Variables  map[string]*Variable

	shapes map[queryir.Expr]ir.Shape
}

// ShapeOf returns the resolved shape of an expression node.
func (r *ResolvedScript) ShapeOf(e queryir.Expr) (ir.Shape, bool) {
	s, ok := r.shapes[e]
	return s, ok
}

// Dependents returns every variable that reads name, directly or
// transitively, in assignment order.
func (r *ResolvedScript) Dependents(name string) []string {
	affected := map[string]bool{name: true}
	out := []string{}
	for _, st := range r.Statements {
		if st.Statement.Kind != queryir.KindAssignment {
			continue
		}
		v := r.Variables[st.Statement.Target]
		for _, d := range v.Deps {
			if affected[d] {
				affected[v.Name] = true
				out = append(out, v.Name)
				break
			}
		}
	}
	return out
}

// Resolve validates script against snapshot.
//
// On failure the returned script holds the statements resolved before the
// failing one and the error is a *SemanticError.
func Resolve(script *queryir.Script, snapshot *schema.Snapshot) (*ResolvedScript, error) {
	r := &resolver{
		out: &ResolvedScript{
			Script:     script,
			Schema:     snapshot,
			Statements: []*ResolvedStatement{},
			Variables:  map[string]*Variable{},
			shapes:     map[queryir.Expr]ir.Shape{},
		},
		schema:   snapshot,
		assigned: map[string]int{},
	}
	for _, st := range script.Statements {
		if st.Kind == queryir.KindAssignment {
			if _, seen := r.assigned[st.Target]; !seen {
				r.assigned[st.Target] = st.Index
			}
		}
	}

	for _, st := range script.Statements {
		rs, err := r.statement(st)
		if err != nil {
			return r.out, err
		}
		r.out.Statements = append(r.out.Statements, rs)
	}
	return r.out, nil
}

type resolver struct {
	out    *ResolvedScript
	schema *schema.Snapshot

	// assigned maps every assignment target to its first statement index,
	// to tell "assigned later" apart from "never assigned".
	assigned map[string]int

	st   *queryir.Statement
	deps []string
}

func (r *resolver) errorf(code ErrorCode, name string, pos queryir.Pos, format string, args ...any) *SemanticError {
	return &SemanticError{
		Code:           code,
		Message:        fmt.Sprintf(format, args...),
		Name:           name,
		Pos:            pos,
		Statement:      r.st.RawText,
		StatementIndex: r.st.Index,
	}
}

func (r *resolver) statement(st *queryir.Statement) (*ResolvedStatement, error) {
	r.st = st
	rs := &ResolvedStatement{Statement: st}

	if st.Kind == queryir.KindDashboard {
		rs.Widgets = make([]ResolvedWidget, 0, len(st.Dashboard.Widgets))
		for _, w := range st.Dashboard.Widgets {
			r.deps = []string{}
			shape, err := r.expr(w.Source)
			if err != nil {
				return nil, err
			}
			if err := r.checkWidget(w, shape); err != nil {
				return nil, err
			}
			rs.Widgets = append(rs.Widgets, ResolvedWidget{Widget: w, Shape: shape, Deps: r.deps})
		}
		return rs, nil
	}

	r.deps = []string{}
	shape, err := r.expr(st.Expr)
	if err != nil {
		return nil, err
	}
	rs.Shape = shape
	rs.Deps = r.deps

	if st.Kind == queryir.KindAssignment {
		if prev, exists := r.out.Variables[st.Target]; exists {
			return nil, r.errorf(ErrCodeDuplicateVariable, st.Target, st.TargetPos,
				"variable %q is already assigned in statement %d", st.Target, prev.StatementIndex+1)
		}
		r.out.Variables[st.Target] = &Variable{
			Name:           st.Target,
			StatementIndex: st.Index,
			Shape:          shape,
			Deps:           rs.Deps,
		}
	}
	return rs, nil
}

func (r *resolver) checkWidget(w *queryir.Widget, shape ir.Shape) error {
	want := ir.ShapeRowSet
	if w.Kind == queryir.WidgetKPI {
		want = ir.ShapeScalar
	}
	if shape != want {
		return r.errorf(ErrCodeTypeMismatch, string(w.Kind), w.Pos,
			"%s widget needs a %s source, got %s", w.Kind, want, shape)
	}
	return nil
}

func (r *resolver) record(e queryir.Expr, s ir.Shape) (ir.Shape, error) {
	r.out.shapes[e] = s
	return s, nil
}

func (r *resolver) addDep(name string) {
	for _, d := range r.deps {
		if d == name {
			return
		}
	}
	r.deps = append(r.deps, name)
}

func (r *resolver) expr(e queryir.Expr) (ir.Shape, error) {
	switch n := e.(type) {
	case *queryir.Literal:
		return r.record(n, ir.ShapeScalar)

	case *queryir.VariableRef:
		v, ok := r.out.Variables[n.Name]
		if !ok {
			if idx, later := r.assigned[n.Name]; later {
				return 0, r.errorf(ErrCodeUnresolvedVariable, n.Name, n.Pos,
					"variable %q is referenced before its assignment in statement %d", n.Name, idx+1)
			}
			return 0, r.errorf(ErrCodeUnresolvedVariable, n.Name, n.Pos, "variable %q is not defined", n.Name)
		}
		r.addDep(n.Name)
		return r.record(n, v.Shape)

	case *queryir.BinaryOp:
		for _, operand := range []queryir.Expr{n.Left, n.Right} {
			s, err := r.expr(operand)
			if err != nil {
				return 0, err
			}
			if s != ir.ShapeScalar {
				return 0, r.errorf(ErrCodeTypeMismatch, string(n.Op), n.Pos,
					"operator %s needs scalar operands, got %s", n.Op, s)
			}
			if lit, ok := operand.(*queryir.Literal); ok && lit.Value.Kind == ir.ScalarText {
				return 0, r.errorf(ErrCodeTypeMismatch, string(n.Op), n.Pos,
					"operator %s cannot be applied to text %q", n.Op, lit.Value.Text)
			}
		}
		return r.record(n, ir.ShapeScalar)

	case *queryir.Aggregation:
		if err := r.aggregation(n); err != nil {
			return 0, err
		}
		if n.GroupBy != nil {
			return r.record(n, ir.ShapeRowSet)
		}
		return r.record(n, ir.ShapeScalar)

	case *queryir.Search:
		entity, err := r.entity(n.Entity)
		if err != nil {
			return 0, err
		}
		for _, f := range n.Fields {
			if _, err := r.field(entity, f); err != nil {
				return 0, err
			}
		}
		if err := r.condition(entity, n.Filter); err != nil {
			return 0, err
		}
		if n.OrderBy != nil {
			if _, err := r.field(entity, *n.OrderBy); err != nil {
				return 0, err
			}
		}
		return r.record(n, ir.ShapeRowSet)

	case *queryir.Top:
		if err := r.aggregation(n.Agg); err != nil {
			return 0, err
		}
		entity, _ := r.schema.Entity(n.Agg.Entity.Name)
		if _, err := r.field(entity, n.Group); err != nil {
			return 0, err
		}
		r.out.shapes[n.Agg] = ir.ShapeScalar
		return r.record(n, ir.ShapeRowSet)

	case *queryir.PeriodCompare:
		if err := r.aggregation(n.Agg); err != nil {
			return 0, err
		}
		r.out.shapes[n.Agg] = ir.ShapeScalar
		return r.record(n, ir.ShapeRowSet)

	case *queryir.Forecast:
		if err := r.aggregation(n.Agg); err != nil {
			return 0, err
		}
		entity, _ := r.schema.Entity(n.Agg.Entity.Name)
		if _, err := r.field(entity, n.By); err != nil {
			return 0, err
		}
		r.out.shapes[n.Agg] = ir.ShapeScalar
		return r.record(n, ir.ShapeRowSet)

	case *queryir.TemporalFunction:
		return 0, r.errorf(ErrCodeTypeMismatch, n.String(), n.Pos,
			"temporal function %s can only be used after EM or COM", n)

	default:
		return 0, r.errorf(ErrCodeTypeMismatch, "", r.st.Pos, "unsupported expression %T", e)
	}
}

func (r *resolver) aggregation(a *queryir.Aggregation) error {
	entity, err := r.entity(a.Entity)
	if err != nil {
		return err
	}
	if !a.Star {
		f, err := r.field(entity, a.Field)
		if err != nil {
			return err
		}
		fn, _ := grammar.LookupFunction(a.Func)
		if fn.Numeric && f.Type.Known() && !f.Type.IsNumeric() {
			return r.errorf(ErrCodeTypeMismatch, a.Field.Name, a.Field.Pos,
				"%s needs a numeric field, %s.%s is %s", a.Func, entity.Name, f.Name, f.Type)
		}
	}
	if err := r.condition(entity, a.Filter); err != nil {
		return err
	}
	if a.GroupBy != nil {
		if _, err := r.field(entity, *a.GroupBy); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) entity(id queryir.Ident) (*schema.Entity, error) {
	e, ok := r.schema.Entity(id.Name)
	if !ok {
		return nil, r.errorf(ErrCodeUnknownEntity, id.Name, id.Pos, "unknown entity %q", id.Name)
	}
	return e, nil
}

func (r *resolver) field(e *schema.Entity, id queryir.Ident) (schema.Field, error) {
	f, ok := e.Field(id.Name)
	if !ok {
		return f, r.errorf(ErrCodeUnknownField, id.Name, id.Pos, "unknown field %q in entity %s", id.Name, e.Name)
	}
	return f, nil
}

func (r *resolver) condition(e *schema.Entity, c queryir.Condition) error {
	switch n := c.(type) {
	case nil:
		return nil
	case *queryir.And:
		for _, sub := range n.Conditions {
			if err := r.condition(e, sub); err != nil {
				return err
			}
		}
		return nil
	case *queryir.Or:
		for _, sub := range n.Conditions {
			if err := r.condition(e, sub); err != nil {
				return err
			}
		}
		return nil
	case *queryir.Compare:
		f, err := r.field(e, n.Field)
		if err != nil {
			return err
		}
		if f.Type.IsNumeric() && n.Value.Value.Kind == ir.ScalarText {
			return r.errorf(ErrCodeTypeMismatch, f.Name, n.Value.Pos,
				"%s.%s is numeric, cannot compare with text %q", e.Name, f.Name, n.Value.Value.Text)
		}
		return nil
	case *queryir.InPeriod:
		f, err := r.field(e, n.Field)
		if err != nil {
			return err
		}
		if f.Type.Known() && !f.Type.IsTemporal() {
			return r.errorf(ErrCodeTypeMismatch, f.Name, n.Field.Pos,
				"EM needs a date field, %s.%s is %s", e.Name, f.Name, f.Type)
		}
		return nil
	default:
		return r.errorf(ErrCodeTypeMismatch, "", r.st.Pos, "unsupported condition %T", c)
	}
}
