package queryir

import "fmt"

// Walk visits e and its sub-expressions depth-first, left to right.
// Returning false from fn skips the children of the visited node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *BinaryOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Top:
		Walk(n.Agg, fn)
	case *PeriodCompare:
		Walk(n.Agg, fn)
		Walk(n.With, fn)
	case *Forecast:
		Walk(n.Agg, fn)
	}
}

// WalkCondition visits c and its nested conditions depth-first.
func WalkCondition(c Condition, fn func(Condition) bool) {
	if c == nil || !fn(c) {
		return
	}
	switch n := c.(type) {
	case *And:
		for _, sub := range n.Conditions {
			WalkCondition(sub, fn)
		}
	case *Or:
		for _, sub := range n.Conditions {
			WalkCondition(sub, fn)
		}
	}
}

// VariableRefs returns every variable reference in e in source order.
func VariableRefs(e Expr) []*VariableRef {
	refs := []*VariableRef{}
	Walk(e, func(n Expr) bool {
		if ref, ok := n.(*VariableRef); ok {
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}

// Periods returns every EM predicate of a condition in source order.
func Periods(c Condition) []*InPeriod {
	out := []*InPeriod{}
	WalkCondition(c, func(n Condition) bool {
		if p, ok := n.(*InPeriod); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// StatementExprs returns the expressions a statement evaluates: its own
// expression, or each widget source of a dashboard in display order.
func StatementExprs(st *Statement) []Expr {
	if st.Dashboard != nil {
		out := make([]Expr, 0, len(st.Dashboard.Widgets))
		for _, w := range st.Dashboard.Widgets {
			out = append(out, w.Source)
		}
		return out
	}
	if st.Expr == nil {
		return []Expr{}
	}
	return []Expr{st.Expr}
}

// ValidationResult lists legal but suspicious constructs in a statement.
type ValidationResult struct {
	// Clean is true when there are no warnings.
	Clean bool

	Warnings []string
}

// Validate reports warnings for constructs that compile but are likely
// mistakes. It never fails; errors belong to the parser and resolver.
//
// Validate is a pure function with no side effects.
func Validate(st *Statement) ValidationResult {
	v := &validator{warnings: []string{}}
	for _, e := range StatementExprs(st) {
		v.validateExpr(e)
	}
	if st.Dashboard != nil {
		for _, w := range st.Dashboard.Widgets {
			v.validateWidget(w)
		}
	}
	return ValidationResult{
		Clean:    len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateExpr(e Expr) {
	Walk(e, func(n Expr) bool {
		switch node := n.(type) {
		case *Search:
			if node.Limit == 0 {
				v.addWarning("%s: BUSCAR on %s has no LIMITE; result size is unbounded", node.Pos, node.Entity.Name)
			}
		case *Aggregation:
			if node.Filter != nil {
				v.validateCondition(node.Filter)
			}
		case *BinaryOp:
			if node.Op == OpDiv {
				if lit, ok := node.Right.(*Literal); ok {
					if f, isNum := lit.Value.Float(); isNum && f == 0 {
						v.addWarning("%s: division by literal zero always yields null", node.Pos)
					}
				}
			}
		}
		return true
	})
}

func (v *validator) validateCondition(c Condition) {
	WalkCondition(c, func(n Condition) bool {
		if or, ok := n.(*Or); ok {
			for _, sub := range or.Conditions {
				if _, isPeriod := sub.(*InPeriod); isPeriod {
					v.addWarning("EM inside OU widens the period filter; COMPARAR cannot use it")
					return true
				}
			}
		}
		return true
	})
}

func (v *validator) validateWidget(w *Widget) {
	formats := 0
	for _, r := range w.Rules {
		switch r.(type) {
		case *Currency, *Percentage, *Decimal:
			formats++
		}
	}
	if formats > 1 {
		v.addWarning("widget %d declares %d number formats; the last one wins", w.Index+1, formats)
	}
}
