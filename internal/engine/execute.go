package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/config"
	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/format"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/querysql"
)

// execution is the state of one script run. Variables are written only by
// the sequential statement loop; dashboard widgets read them concurrently.
type execution struct {
	e         *Engine
	prog      *querysql.Program
	ds        datasource.DataSource
	opts      config.Options
	userID    string
	formatter *format.Formatter

	vars       map[string]ir.Value
	unresolved map[string]bool
	order      []string
}

func newExecution(e *Engine, prog *querysql.Program, ds datasource.DataSource, opts config.Options, userID string) *execution {
	return &execution{
		e:          e,
		prog:       prog,
		ds:         ds,
		opts:       opts,
		userID:     userID,
		formatter:  format.New(format.WithCurrency(opts.Currency), format.WithLocale(opts.Locale)),
		vars:       map[string]ir.Value{},
		unresolved: map[string]bool{},
	}
}

// evalStats counts the queries a plan ran and how many the cache served.
type evalStats struct {
	queries int
	hits    int
}

func (s evalStats) outcome() audit.Outcome {
	if s.queries > 0 && s.hits == s.queries {
		return audit.OutcomeCacheHit
	}
	return audit.OutcomeSuccess
}

func (x *execution) run(ctx context.Context) *ScriptResult {
	res := &ScriptResult{
		QueryType:  x.prog.QueryType,
		Statements: make([]*StatementResult, 0, len(x.prog.Statements)),
		Variables:  map[string]ir.Value{},
		Unresolved: []string{},
	}
	slog.Debug("executing script",
		"statements", len(x.prog.Statements),
		"query_type", x.prog.QueryType,
		"use_cache", x.opts.UseCache,
	)

	for _, cs := range x.prog.Statements {
		var sr *StatementResult
		if cs.Kind == queryir.KindDashboard {
			sr = x.dashboard(ctx, cs)
		} else {
			sr = x.statement(ctx, cs)
		}
		res.Statements = append(res.Statements, sr)
	}

	for _, name := range x.order {
		if x.unresolved[name] {
			res.Unresolved = append(res.Unresolved, name)
			continue
		}
		res.Variables[name] = x.vars[name]
	}
	return res
}

// firstUnresolved returns the first dependency that failed earlier.
func (x *execution) firstUnresolved(deps []string) (string, bool) {
	for _, d := range deps {
		if x.unresolved[d] {
			return d, true
		}
	}
	return "", false
}

func (x *execution) statement(ctx context.Context, cs *querysql.CompiledStatement) *StatementResult {
	start := time.Now()
	sr := &StatementResult{
		Index:     cs.Index,
		Kind:      cs.Kind,
		QueryType: cs.Kind.QueryType(),
		Target:    cs.Target,
		RawText:   cs.RawText,
		Shape:     cs.Shape,
	}

	var (
		v     ir.Value
		err   error
		stats evalStats
	)
	if dep, ok := x.firstUnresolved(cs.Deps); ok {
		err = NewUnresolvedError(cs.Index, dep, cs.Pos)
	} else {
		v, err = x.eval(ctx, cs.Plan, &stats)
	}
	sr.DurationMs = time.Since(start).Milliseconds()

	if cs.Kind == queryir.KindAssignment {
		x.order = append(x.order, cs.Target)
	}
	if err != nil {
		re := wrapRuntime(err, cs.Index, nil, cs.Pos)
		sr.Err = re
		sr.Error = ErrorInfoFrom(re)
		sr.Outcome = outcomeOf(re)
		if cs.Kind == queryir.KindAssignment {
			x.unresolved[cs.Target] = true
		}
		slog.Warn("statement failed",
			"statement", cs.Index,
			"target", cs.Target,
			"code", re.Code,
			"error", re.Message,
		)
	} else {
		sr.Value = v
		sr.Formatted = x.formatResult(v)
		sr.Outcome = stats.outcome()
		if cs.Kind == queryir.KindAssignment {
			x.vars[cs.Target] = v
		}
		slog.Debug("statement executed",
			"statement", cs.Index,
			"target", cs.Target,
			"outcome", sr.Outcome,
			"duration_ms", sr.DurationMs,
		)
	}
	sr.CacheHit = sr.Outcome == audit.OutcomeCacheHit

	x.record(ctx, audit.Record{
		RawStatement:   cs.RawText,
		QueryType:      sr.QueryType,
		StatementIndex: cs.Index,
		DurationMs:     sr.DurationMs,
		Outcome:        sr.Outcome,
		Error:          errorText(sr.Err),
		CacheKey:       x.soleKey(cs.Plan),
	})
	return sr
}

// widgetRun is the outcome of one widget, collected before auditing so
// records keep display order.
type widgetRun struct {
	payload    format.WidgetPayload
	outcome    audit.Outcome
	err        *RuntimeError
	durationMs int64
	cacheKey   string
}

func (x *execution) dashboard(ctx context.Context, cs *querysql.CompiledStatement) *StatementResult {
	start := time.Now()
	id := x.e.ids.Generate()
	runs := make([]widgetRun, len(cs.Widgets))

	// Widgets share no cancellation: a failing widget must not stop its
	// siblings, so the group never returns an error.
	var g errgroup.Group
	g.SetLimit(x.opts.MaxWidgetConcurrency)
	for i, w := range cs.Widgets {
		g.Go(func() error {
			runs[i] = x.widget(ctx, cs, w, id)
			return nil
		})
	}
	_ = g.Wait()

	payload := &format.DashboardPayload{
		ID:      id,
		Name:    cs.Dashboard.Name,
		Widgets: make([]format.WidgetPayload, 0, len(runs)),
	}
	hits, failed := 0, 0
	for i, r := range runs {
		payload.Widgets = append(payload.Widgets, r.payload)
		switch r.outcome {
		case audit.OutcomeCacheHit:
			hits++
		case audit.OutcomeSuccess:
		default:
			failed++
		}
		wi := cs.Widgets[i].Widget.Index
		x.record(ctx, audit.Record{
			RawStatement:   cs.RawText,
			QueryType:      queryir.QueryTypeDashboard,
			StatementIndex: cs.Index,
			WidgetIndex:    &wi,
			DurationMs:     r.durationMs,
			Outcome:        r.outcome,
			Error:          errorText(r.err),
			CacheKey:       r.cacheKey,
		})
	}

	outcome := audit.OutcomeSuccess
	if len(runs) > 0 && hits == len(runs) {
		outcome = audit.OutcomeCacheHit
	}
	sr := &StatementResult{
		Index:      cs.Index,
		Kind:       cs.Kind,
		QueryType:  queryir.QueryTypeDashboard,
		RawText:    cs.RawText,
		Dashboard:  payload,
		Outcome:    outcome,
		CacheHit:   outcome == audit.OutcomeCacheHit,
		DurationMs: time.Since(start).Milliseconds(),
	}
	slog.Info("dashboard executed",
		"statement", cs.Index,
		"dashboard", cs.Dashboard.Name,
		"id", id,
		"widgets", len(runs),
		"failed", failed,
		"duration_ms", sr.DurationMs,
	)
	return sr
}

func (x *execution) widget(ctx context.Context, cs *querysql.CompiledStatement, w *querysql.CompiledWidget, dashboardID string) (run widgetRun) {
	start := time.Now()
	idx := w.Widget.Index
	fail := func(err error) {
		re := wrapRuntime(err, cs.Index, &idx, queryir.ExprPos(w.Widget.Source))
		run.err = re
		run.outcome = outcomeOf(re)
		run.payload = x.formatter.AssembleWidget(dashboardID, w.Widget, nil, &format.WidgetError{
			Message: widgetMessage(re),
			Code:    string(re.Code),
		})
		slog.Warn("widget failed",
			"statement", cs.Index,
			"widget", idx,
			"code", re.Code,
			"error", re.Message,
		)
	}
	defer func() {
		if r := recover(); r != nil {
			fail(&RuntimeError{Code: ErrCodePanic, Message: fmt.Sprintf("widget panicked: %v", r)})
		}
		run.durationMs = time.Since(start).Milliseconds()
	}()

	run.cacheKey = x.soleKey(w.Plan)
	if dep, ok := x.firstUnresolved(w.Deps); ok {
		fail(NewUnresolvedError(cs.Index, dep, queryir.ExprPos(w.Widget.Source)))
		return run
	}
	var stats evalStats
	v, err := x.eval(ctx, w.Plan, &stats)
	if err != nil {
		fail(err)
		return run
	}
	run.outcome = stats.outcome()
	run.payload = x.formatter.AssembleWidget(dashboardID, w.Widget, v, nil)
	return run
}

// eval computes the value of a plan. Queries run in left-to-right order.
func (x *execution) eval(ctx context.Context, p querysql.Plan, stats *evalStats) (ir.Value, error) {
	switch n := p.(type) {
	case *querysql.QueryPlan:
		v, hit, err := x.query(ctx, n.Query)
		stats.queries++
		if hit {
			stats.hits++
		}
		return v, err
	case *querysql.LiteralPlan:
		return n.Value, nil
	case *querysql.VarPlan:
		if x.unresolved[n.Name] {
			return nil, NewUnresolvedError(0, n.Name, n.Pos)
		}
		v, ok := x.vars[n.Name]
		if !ok {
			return nil, NewUnresolvedError(0, n.Name, n.Pos)
		}
		return v, nil
	case *querysql.ArithPlan:
		left, err := x.eval(ctx, n.Left, stats)
		if err != nil {
			return nil, err
		}
		right, err := x.eval(ctx, n.Right, stats)
		if err != nil {
			return nil, err
		}
		return arith(n.Op, left, right, n.Pos)
	default:
		return nil, &RuntimeError{Code: ErrCodeInternal, Message: fmt.Sprintf("unknown plan node %T", p)}
	}
}

// arith applies op to two scalars. A null operand yields null.
func arith(op queryir.ArithOp, left, right ir.Value, pos queryir.Pos) (ir.Value, error) {
	l, lok := left.(ir.Scalar)
	r, rok := right.(ir.Scalar)
	if !lok || !rok {
		return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Message: fmt.Sprintf("operator %s needs scalar operands", op), Pos: pos}
	}
	if l.Kind == ir.ScalarNull || r.Kind == ir.ScalarNull {
		return ir.Null(), nil
	}
	a, aok := l.Float()
	b, bok := r.Float()
	if !aok || !bok {
		return nil, &RuntimeError{Code: ErrCodeArithmetic, Message: fmt.Sprintf("operator %s needs numeric operands", op), Pos: pos}
	}
	switch op {
	case queryir.OpAdd:
		return ir.Number(a + b), nil
	case queryir.OpSub:
		return ir.Number(a - b), nil
	case queryir.OpMul:
		return ir.Number(a * b), nil
	case queryir.OpDiv:
		if b == 0 {
			return nil, &RuntimeError{Code: ErrCodeDivisionByZero, Message: "division by zero", Pos: pos}
		}
		return ir.Number(a / b), nil
	default:
		return nil, &RuntimeError{Code: ErrCodeArithmetic, Message: fmt.Sprintf("unknown operator %q", op), Pos: pos}
	}
}

// formatResult renders a statement value without widget rules. A
// COMPARAR row shows its variation as a percentage.
func (x *execution) formatResult(v ir.Value) *format.FormattedValue {
	if rs, ok := v.(ir.RowSet); ok && rs.ColumnIndex(columnVariation) >= 0 {
		fv := x.formatter.FormatColumns(rs, map[string][]queryir.FormatRule{
			columnVariation: {&queryir.Percentage{}},
		})
		return &fv
	}
	fv := x.formatter.Format(v, nil)
	return &fv
}

// soleKey returns the cache key of a plan that runs exactly one query.
func (x *execution) soleKey(p querysql.Plan) string {
	qp, ok := p.(*querysql.QueryPlan)
	if !ok {
		return ""
	}
	key, err := qp.Query.CacheKey()
	if err != nil {
		return ""
	}
	return key
}

// record appends an audit record. Failures are logged and counted.
func (x *execution) record(ctx context.Context, r audit.Record) {
	r.ID = audit.NewID()
	r.Timestamp = x.e.now().UTC()
	r.UserID = x.userID
	x.e.metrics.statement(r.Outcome)
	if x.e.audit == nil {
		return
	}
	if err := x.e.audit.Append(context.WithoutCancel(ctx), r); err != nil {
		x.e.metrics.failure("audit")
		slog.Error("audit append failed",
			"statement", r.StatementIndex,
			"outcome", r.Outcome,
			"error", err,
		)
	}
}

func outcomeOf(re *RuntimeError) audit.Outcome {
	switch re.Code {
	case ErrCodeTimeout:
		return audit.OutcomeTimeout
	case ErrCodeUnresolved:
		return audit.OutcomeUnresolved
	default:
		return audit.OutcomeError
	}
}

// widgetMessage is the short message shown in a failed widget.
func widgetMessage(re *RuntimeError) string {
	switch re.Code {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeUnresolved:
		return "unresolved"
	default:
		return re.Message
	}
}

func errorText(re *RuntimeError) string {
	if re == nil {
		return ""
	}
	return re.Error()
}
