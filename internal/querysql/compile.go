// Package querysql lowers resolved TQL scripts to parameterized SQL.
//
// CRITICAL: every value reaches the database as a bound parameter. Literals
// bind as :p1, :p2, ...; temporal ranges as :start/:end (then :start_2,
// :end_2, ...); row limits as :limit. Identifiers come from the schema
// snapshot and must match identPattern before they are emitted.
package querysql

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/resolver"
	"github.com/roach88/tql/internal/schema"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compiler compiles resolved scripts. The now function is read once per
// Compile call, so every temporal function of a script sees the same
// instant.
type Compiler struct {
	now func() time.Time
}

// NewCompiler creates a compiler. A nil now uses time.Now.
func NewCompiler(now func() time.Time) *Compiler {
	if now == nil {
		now = time.Now
	}
	return &Compiler{now: now}
}

// Compile lowers every resolved statement. Compilation is all-or-nothing:
// the first *CompileError aborts the program.
func (c *Compiler) Compile(rs *resolver.ResolvedScript) (*Program, error) {
	if rs == nil || rs.Script == nil {
		return nil, fmt.Errorf("cannot compile nil script")
	}

	now := c.now()
	prog := &Program{
		Script:     rs.Script,
		QueryType:  rs.Script.QueryType(),
		Now:        now,
		Statements: make([]*CompiledStatement, 0, len(rs.Statements)),
	}
	for _, st := range rs.Statements {
		sc := &stmtCompiler{schema: rs.Schema, st: st.Statement, now: now}
		cs, err := sc.compile(st)
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, cs)
	}
	return prog, nil
}

type stmtCompiler struct {
	schema *schema.Snapshot
	st     *queryir.Statement
	now    time.Time
}

func (sc *stmtCompiler) errorf(pos queryir.Pos, format string, args ...any) *CompileError {
	return &CompileError{
		Message:        fmt.Sprintf(format, args...),
		Pos:            pos,
		Statement:      sc.st.RawText,
		StatementIndex: sc.st.Index,
	}
}

func (sc *stmtCompiler) compile(rs *resolver.ResolvedStatement) (*CompiledStatement, error) {
	st := rs.Statement
	cs := &CompiledStatement{
		Index:      st.Index,
		Kind:       st.Kind,
		Target:     st.Target,
		RawText:    st.RawText,
		Normalized: st.Normalized,
		Pos:        st.Pos,
		Shape:      rs.Shape,
		Deps:       rs.Deps,
		Dashboard:  st.Dashboard,
	}

	if st.Kind == queryir.KindDashboard {
		cs.Widgets = make([]*CompiledWidget, 0, len(rs.Widgets))
		for _, rw := range rs.Widgets {
			plan, err := sc.plan(rw.Widget.Source, parser.Normalize(rw.Widget.RawText))
			if err != nil {
				return nil, err
			}
			cs.Widgets = append(cs.Widgets, &CompiledWidget{
				Widget: rw.Widget,
				Shape:  rw.Shape,
				Deps:   rw.Deps,
				Plan:   plan,
			})
		}
		return cs, nil
	}

	plan, err := sc.plan(st.Expr, st.Normalized)
	if err != nil {
		return nil, err
	}
	cs.Plan = plan
	return cs, nil
}

func (sc *stmtCompiler) plan(e queryir.Expr, text string) (Plan, error) {
	switch n := e.(type) {
	case *queryir.Literal:
		return &LiteralPlan{Value: n.Value}, nil
	case *queryir.VariableRef:
		return &VarPlan{Name: n.Name, Pos: n.Pos}, nil
	case *queryir.BinaryOp:
		left, err := sc.plan(n.Left, text)
		if err != nil {
			return nil, err
		}
		right, err := sc.plan(n.Right, text)
		if err != nil {
			return nil, err
		}
		return &ArithPlan{Op: n.Op, Left: left, Right: right, Pos: n.Pos}, nil
	case *queryir.TemporalFunction:
		return nil, sc.errorf(n.Pos, "temporal function %s has no value outside a filter", n)
	}

	q, err := sc.query(e)
	if err != nil {
		return nil, err
	}
	q.Text = text
	q.Pos = queryir.ExprPos(e)
	return &QueryPlan{Query: q}, nil
}

func (sc *stmtCompiler) query(e queryir.Expr) (*CompiledQuery, error) {
	switch n := e.(type) {
	case *queryir.Aggregation:
		return sc.aggregation(n)
	case *queryir.Search:
		return sc.search(n)
	case *queryir.Top:
		return sc.top(n)
	case *queryir.PeriodCompare:
		return sc.compare(n)
	case *queryir.Forecast:
		return sc.forecast(n)
	default:
		return nil, sc.errorf(queryir.ExprPos(e), "unsupported expression %T", e)
	}
}

// builder accumulates the parameters of one query in placeholder order.
type builder struct {
	sc       *stmtCompiler
	params   []ir.Param
	literals int
	ranges   int
}

func (b *builder) bind(name string, v any) string {
	b.params = append(b.params, ir.Param{Name: name, Value: v})
	return ":" + name
}

func (b *builder) literal(v ir.Scalar) string {
	b.literals++
	name := fmt.Sprintf("p%d", b.literals)
	switch v.Kind {
	case ir.ScalarNumber:
		return b.bind(name, v.Number)
	case ir.ScalarText:
		return b.bind(name, v.Text)
	default:
		return b.bind(name, nil)
	}
}

func (b *builder) period(t *queryir.TemporalFunction) (start, end string) {
	b.ranges++
	suffix := ""
	if b.ranges > 1 {
		suffix = fmt.Sprintf("_%d", b.ranges)
	}
	from, to := TemporalRange(t, b.sc.now)
	return b.bind("start"+suffix, from), b.bind("end"+suffix, to)
}

func (b *builder) finish(sql string, shape ir.Shape, post Post) *CompiledQuery {
	params := b.params
	if params == nil {
		params = []ir.Param{}
	}
	return &CompiledQuery{SQL: sql, Params: params, Shape: shape, Post: post}
}

func (sc *stmtCompiler) entity(id queryir.Ident) (*schema.Entity, string, error) {
	e, ok := sc.schema.Entity(id.Name)
	if !ok {
		return nil, "", sc.errorf(id.Pos, "entity %q is not in the schema", id.Name)
	}
	if !identPattern.MatchString(e.Name) {
		return nil, "", sc.errorf(id.Pos, "entity name %q cannot be used as an SQL identifier", e.Name)
	}
	return e, e.Name, nil
}

func (sc *stmtCompiler) column(e *schema.Entity, id queryir.Ident) (string, error) {
	f, ok := e.Field(id.Name)
	if !ok {
		return "", sc.errorf(id.Pos, "field %q is not in entity %s", id.Name, e.Name)
	}
	if !identPattern.MatchString(f.Name) {
		return "", sc.errorf(id.Pos, "field name %q cannot be used as an SQL identifier", f.Name)
	}
	return f.Name, nil
}

// aggregate renders FUNC(col). A non-nil wrap rewrites the argument;
// CONTAR * hands it "1".
func (sc *stmtCompiler) aggregate(e *schema.Entity, a *queryir.Aggregation, wrap func(string) string) (string, error) {
	fn, ok := grammar.LookupFunction(a.Func)
	if !ok {
		return "", sc.errorf(a.Pos, "unknown aggregation function %s", a.Func)
	}
	arg := "*"
	if !a.Star {
		col, err := sc.column(e, a.Field)
		if err != nil {
			return "", err
		}
		arg = col
	}
	if wrap != nil {
		if a.Star {
			arg = wrap("1")
		} else {
			arg = wrap(arg)
		}
	}
	return fmt.Sprintf("%s(%s)", fn.SQL, arg), nil
}

func (sc *stmtCompiler) ungrouped(a *queryir.Aggregation, form string) error {
	if a.GroupBy != nil {
		return sc.errorf(a.GroupBy.Pos, "%s needs an ungrouped aggregation, found AGRUPADO POR %s", form, a.GroupBy.Name)
	}
	return nil
}

func (sc *stmtCompiler) aggregation(a *queryir.Aggregation) (*CompiledQuery, error) {
	e, table, err := sc.entity(a.Entity)
	if err != nil {
		return nil, err
	}
	b := &builder{sc: sc}
	agg, err := sc.aggregate(e, a, nil)
	if err != nil {
		return nil, err
	}

	if a.GroupBy == nil {
		where, err := sc.where(b, e, a.Filter)
		if err != nil {
			return nil, err
		}
		return b.finish(fmt.Sprintf("SELECT %s FROM %s%s", agg, table, where), ir.ShapeScalar, Post{}), nil
	}

	group, err := sc.column(e, *a.GroupBy)
	if err != nil {
		return nil, err
	}
	where, err := sc.where(b, e, a.Filter)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s, %s AS valor FROM %s%s GROUP BY %s ORDER BY %s",
		group, agg, table, where, group, group)
	return b.finish(sql, ir.ShapeRowSet, Post{}), nil
}

func (sc *stmtCompiler) search(s *queryir.Search) (*CompiledQuery, error) {
	e, table, err := sc.entity(s.Entity)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		col, err := sc.column(e, f)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	selectList := "*"
	if len(cols) > 0 {
		selectList = strings.Join(cols, ", ")
	}

	orderBy := ""
	switch {
	case s.OrderBy != nil:
		col, err := sc.column(e, *s.OrderBy)
		if err != nil {
			return nil, err
		}
		orderBy = col
	case len(cols) > 0:
		orderBy = cols[0]
	case len(e.Fields) > 0:
		col, err := sc.column(e, queryir.Ident{Name: e.Fields[0].Name, Pos: s.Entity.Pos})
		if err != nil {
			return nil, err
		}
		orderBy = col
	}

	b := &builder{sc: sc}
	where, err := sc.where(b, e, s.Filter)
	if err != nil {
		return nil, err
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s FROM %s%s", selectList, table, where)
	if orderBy != "" {
		sql.WriteString(" ORDER BY " + orderBy)
	}
	if s.Limit > 0 {
		sql.WriteString(" LIMIT " + b.bind("limit", int64(s.Limit)))
	}
	return b.finish(sql.String(), ir.ShapeRowSet, Post{}), nil
}

func (sc *stmtCompiler) top(t *queryir.Top) (*CompiledQuery, error) {
	if err := sc.ungrouped(t.Agg, "TOP"); err != nil {
		return nil, err
	}
	e, table, err := sc.entity(t.Agg.Entity)
	if err != nil {
		return nil, err
	}
	group, err := sc.column(e, t.Group)
	if err != nil {
		return nil, err
	}
	agg, err := sc.aggregate(e, t.Agg, nil)
	if err != nil {
		return nil, err
	}

	b := &builder{sc: sc}
	where, err := sc.where(b, e, t.Agg.Filter)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s, %s AS valor FROM %s%s GROUP BY %s ORDER BY valor DESC, %s LIMIT %s",
		group, agg, table, where, group, group, b.bind("limit", int64(t.N)))
	return b.finish(sql, ir.ShapeRowSet, Post{}), nil
}

// compare lowers COMPARAR to conditional aggregation over the filter's EM
// period (atual) and the COM period (anterior). The EM predicate must be a
// top-level conjunct of the filter; the remaining conjuncts stay in WHERE.
func (sc *stmtCompiler) compare(pc *queryir.PeriodCompare) (*CompiledQuery, error) {
	a := pc.Agg
	if err := sc.ungrouped(a, "COMPARAR"); err != nil {
		return nil, err
	}
	if n := len(queryir.Periods(a.Filter)); n != 1 {
		return nil, sc.errorf(pc.Pos, "COMPARAR needs exactly one EM period in its filter, found %d", n)
	}

	conjuncts := []queryir.Condition{a.Filter}
	if and, ok := a.Filter.(*queryir.And); ok {
		conjuncts = and.Conditions
	}
	var current *queryir.InPeriod
	rest := []queryir.Condition{}
	for _, c := range conjuncts {
		if ip, ok := c.(*queryir.InPeriod); ok && current == nil {
			current = ip
			continue
		}
		rest = append(rest, c)
	}
	if current == nil {
		return nil, sc.errorf(pc.Pos, "COMPARAR cannot use an EM period inside OU")
	}

	e, table, err := sc.entity(a.Entity)
	if err != nil {
		return nil, err
	}

	b := &builder{sc: sc}
	caseWhen := func(ip *queryir.InPeriod) (string, error) {
		cond, err := sc.condition(b, e, ip, ctxTop)
		if err != nil {
			return "", err
		}
		return sc.aggregate(e, a, func(v string) string {
			return fmt.Sprintf("CASE WHEN %s THEN %s END", cond, v)
		})
	}

	atual, err := caseWhen(current)
	if err != nil {
		return nil, err
	}
	anterior, err := caseWhen(&queryir.InPeriod{Field: current.Field, Period: pc.With})
	if err != nil {
		return nil, err
	}

	var filter queryir.Condition
	switch len(rest) {
	case 0:
	case 1:
		filter = rest[0]
	default:
		filter = &queryir.And{Conditions: rest}
	}
	where, err := sc.where(b, e, filter)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s AS atual, %s AS anterior FROM %s%s", atual, anterior, table, where)
	return b.finish(sql, ir.ShapeRowSet, Post{Kind: PostCompare}), nil
}

func (sc *stmtCompiler) forecast(f *queryir.Forecast) (*CompiledQuery, error) {
	if err := sc.ungrouped(f.Agg, "PREVER"); err != nil {
		return nil, err
	}
	e, table, err := sc.entity(f.Agg.Entity)
	if err != nil {
		return nil, err
	}
	by, err := sc.column(e, f.By)
	if err != nil {
		return nil, err
	}
	agg, err := sc.aggregate(e, f.Agg, nil)
	if err != nil {
		return nil, err
	}

	b := &builder{sc: sc}
	where, err := sc.where(b, e, f.Agg.Filter)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s AS periodo, %s AS valor FROM %s%s GROUP BY %s ORDER BY %s",
		by, agg, table, where, by, by)
	return b.finish(sql, ir.ShapeRowSet, Post{Kind: PostForecast, Periods: f.Periods}), nil
}

func (sc *stmtCompiler) where(b *builder, e *schema.Entity, c queryir.Condition) (string, error) {
	if c == nil {
		return "", nil
	}
	cond, err := sc.condition(b, e, c, ctxTop)
	if err != nil {
		return "", err
	}
	return " WHERE " + cond, nil
}

// condCtx is the operator a condition is rendered under; it decides
// where parentheses are needed.
type condCtx int

const (
	ctxTop condCtx = iota
	ctxAnd
	ctxOr
)

func (sc *stmtCompiler) condition(b *builder, e *schema.Entity, c queryir.Condition, ctx condCtx) (string, error) {
	switch n := c.(type) {
	case *queryir.Compare:
		col, err := sc.column(e, n.Field)
		if err != nil {
			return "", err
		}
		op := string(n.Op)
		if n.Op == queryir.CmpNe {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", col, op, b.literal(n.Value.Value)), nil

	case *queryir.InPeriod:
		col, err := sc.column(e, n.Field)
		if err != nil {
			return "", err
		}
		start, end := b.period(n.Period)
		return paren(fmt.Sprintf("%s >= %s AND %s < %s", col, start, col, end), ctx == ctxOr), nil

	case *queryir.And:
		if len(n.Conditions) == 0 {
			return "1 = 1", nil
		}
		parts, err := sc.conditions(b, e, n.Conditions, ctxAnd)
		if err != nil {
			return "", err
		}
		return paren(strings.Join(parts, " AND "), ctx == ctxOr && len(parts) > 1), nil

	case *queryir.Or:
		parts, err := sc.conditions(b, e, n.Conditions, ctxOr)
		if err != nil {
			return "", err
		}
		return paren(strings.Join(parts, " OR "), ctx == ctxAnd && len(parts) > 1), nil

	default:
		return "", sc.errorf(sc.st.Pos, "unsupported condition %T", c)
	}
}

func (sc *stmtCompiler) conditions(b *builder, e *schema.Entity, cs []queryir.Condition, ctx condCtx) ([]string, error) {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		s, err := sc.condition(b, e, c, ctx)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return parts, nil
}

func paren(s string, wrap bool) string {
	if wrap {
		return "(" + s + ")"
	}
	return s
}
