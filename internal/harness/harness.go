package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/format"
	"github.com/roach88/tql/internal/schema"
	"github.com/roach88/tql/internal/testutil"
)

// dashboardIDs are handed out in order to the dashboards of a scenario.
var dashboardIDs = []string{"dash-1", "dash-2", "dash-3", "dash-4", "dash-5", "dash-6", "dash-7", "dash-8"}

// Harness is the execution environment of one scenario: a fresh engine
// over a scripted mock, an in-memory audit log and a stopped clock.
type Harness struct {
	engine *engine.Engine
	mock   *datasource.Mock
	log    *audit.MemoryLog
	clock  *testutil.FixedClock
}

// New builds the environment of s.
func New(s *Scenario) (*Harness, error) {
	h := &Harness{
		mock:  datasource.NewMock(),
		log:   audit.NewMemoryLog(),
		clock: testutil.NewReferenceClock(),
	}
	for _, r := range s.Mock {
		switch {
		case r.Panic:
			h.mock.PanicOn(r.Match)
		case r.Block:
			h.mock.BlockOn(r.Match)
		case r.Error != "":
			h.mock.FailOn(r.Match, errors.New(r.Error))
		default:
			h.mock.On(r.Match, r.Response())
		}
	}

	var provider schema.Provider = schema.NewStatic(testutil.SalesSchema())
	if path := s.SchemaPath(); path != "" {
		provider = schema.NewCUEProvider(path)
	}

	eng, err := engine.New(provider, datasource.Static(h.mock),
		engine.WithClock(h.clock.Now),
		engine.WithAuditLog(h.log),
		engine.WithOptions(s.Options),
		engine.WithIDGenerator(engine.NewFixedGenerator(dashboardIDs...)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	h.engine = eng
	return h, nil
}

// Close releases blocked mock queries and closes the engine.
func (h *Harness) Close() error {
	h.mock.Release()
	return h.engine.Close()
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build a fresh engine over the scripted mock
//  2. Run each step, checking its expectations
//  3. Collect the audit trail and data-source calls
//  4. Evaluate the assertions
//
// The returned error reports a broken environment (unreadable schema,
// invalid options); failed checks only mark the result as failed.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	h, err := New(s)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	result := NewResult()
	for i, st := range s.Steps {
		h.step(ctx, i, st, result)
	}

	records, err := h.log.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	result.Audit = records
	result.Calls = h.mock.Calls()

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) step(ctx context.Context, i int, st Step, result *Result) {
	if st.Advance > 0 {
		h.clock.Advance(st.Advance)
	}
	res, err := h.engine.Run(ctx, st.TQL, engine.Request{UserID: st.User})
	resp := h.engine.Respond(st.TQL, res, err)
	result.Steps = append(result.Steps, StepResult{TQL: st.TQL, Response: resp, Script: res})

	if st.Expect != nil {
		for _, msg := range checkExpect(st.Expect, resp) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
		}
	}
}

func checkExpect(want *Expect, resp engine.Response) []string {
	var errs []string
	if want.Success != nil && *want.Success != resp.Success {
		errs = append(errs, fmt.Sprintf("success: expected %v, got %v", *want.Success, resp.Success))
	}
	if want.ErrorCode != "" {
		got := ""
		if resp.Error != nil {
			got = resp.Error.Code
		}
		if got != want.ErrorCode {
			errs = append(errs, fmt.Sprintf("error code: expected %s, got %q", want.ErrorCode, got))
		}
	}
	if want.QueryType != "" && want.QueryType != string(resp.QueryType) {
		errs = append(errs, fmt.Sprintf("query type: expected %s, got %s", want.QueryType, resp.QueryType))
	}
	if len(want.Statements) == 0 {
		return errs
	}

	var got []*engine.StatementResult
	if resp.Data != nil {
		got = resp.Data.Statements
	}
	if len(got) != len(want.Statements) {
		return append(errs, fmt.Sprintf("statements: expected %d, got %d", len(want.Statements), len(got)))
	}
	for i, w := range want.Statements {
		for _, msg := range checkStatement(w, got[i]) {
			errs = append(errs, fmt.Sprintf("statements[%d]: %s", i, msg))
		}
	}
	return errs
}

func checkStatement(want StatementExpect, got *engine.StatementResult) []string {
	var errs []string
	if want.Outcome != "" && want.Outcome != got.Outcome {
		errs = append(errs, fmt.Sprintf("outcome: expected %s, got %s", want.Outcome, got.Outcome))
	}
	if want.ErrorCode != "" {
		code := ""
		if got.Error != nil {
			code = got.Error.Code
		}
		if code != want.ErrorCode {
			errs = append(errs, fmt.Sprintf("error code: expected %s, got %q", want.ErrorCode, code))
		}
	}
	if want.CacheHit != nil && *want.CacheHit != got.CacheHit {
		errs = append(errs, fmt.Sprintf("cache hit: expected %v, got %v", *want.CacheHit, got.CacheHit))
	}
	if want.Display != "" || want.Color != "" {
		display, color := "", ""
		if f := got.Formatted; f != nil && f.Scalar != nil {
			display, color = f.Scalar.Display, f.Color
		}
		if want.Display != "" && want.Display != display {
			errs = append(errs, fmt.Sprintf("display: expected %q, got %q", want.Display, display))
		}
		if want.Color != "" && want.Color != color {
			errs = append(errs, fmt.Sprintf("color: expected %s, got %q", want.Color, color))
		}
	}
	if want.Rows != nil {
		n := -1
		if f := got.Formatted; f != nil && f.Scalar == nil {
			n = len(f.Rows)
		}
		if n != *want.Rows {
			errs = append(errs, fmt.Sprintf("rows: expected %d, got %d", *want.Rows, n))
		}
	}
	if len(want.Widgets) > 0 {
		errs = append(errs, checkWidgets(want.Widgets, got.Dashboard)...)
	}
	return errs
}

func checkWidgets(want []WidgetExpect, d *format.DashboardPayload) []string {
	if d == nil {
		return []string{"widgets: statement is not a dashboard"}
	}
	if len(d.Widgets) != len(want) {
		return []string{fmt.Sprintf("widgets: expected %d, got %d", len(want), len(d.Widgets))}
	}
	var errs []string
	for i, w := range want {
		p := d.Widgets[i]
		var bad []string
		if w.ErrorCode != "" {
			code := ""
			if p.Error != nil {
				code = p.Error.Code
			}
			if code != w.ErrorCode {
				bad = append(bad, fmt.Sprintf("error code %q", code))
			}
		}
		if w.Display != "" && (p.Value == nil || p.Value.Display != w.Display) {
			bad = append(bad, fmt.Sprintf("display %q", widgetDisplay(p)))
		}
		if w.Color != "" && w.Color != p.Color {
			bad = append(bad, fmt.Sprintf("color %q", p.Color))
		}
		if len(bad) > 0 {
			errs = append(errs, fmt.Sprintf("widgets[%d]: got %s", i, strings.Join(bad, ", ")))
		}
	}
	return errs
}

func widgetDisplay(p format.WidgetPayload) string {
	if p.Value == nil {
		return ""
	}
	return p.Value.Display
}
