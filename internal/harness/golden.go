package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/format"
	"github.com/roach88/tql/internal/ir"
)

// Render produces the golden snapshot of a scenario run: every step's
// response, the audit trail and the data-source call count. Volatile
// fields (record IDs, durations) are left out.
func Render(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	for i, st := range result.Steps {
		fmt.Fprintf(&b, "\n== step %d\n", i+1)
		for _, line := range strings.Split(strings.TrimRight(st.TQL, "\n"), "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		renderResponse(&b, st.Response)
	}

	fmt.Fprintf(&b, "\n== audit\n")
	for i, r := range result.Audit {
		fmt.Fprintf(&b, "%d stmt=%d", i+1, r.StatementIndex+1)
		if r.WidgetIndex != nil {
			fmt.Fprintf(&b, " widget=%d", *r.WidgetIndex)
		}
		fmt.Fprintf(&b, " %s %s", r.QueryType, r.Outcome)
		if r.UserID != "" {
			fmt.Fprintf(&b, " user=%s", r.UserID)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n== calls: %d\n", len(result.Calls))
	return []byte(b.String())
}

func renderResponse(b *strings.Builder, resp engine.Response) {
	fmt.Fprintf(b, "success: %v (%s)\n", resp.Success, resp.QueryType)
	if e := resp.Error; e != nil {
		fmt.Fprintf(b, "error: %s", e.Code)
		if e.StatementIndex != nil {
			fmt.Fprintf(b, " (statement %d)", *e.StatementIndex+1)
		}
		b.WriteByte('\n')
	}
	if resp.Data == nil {
		return
	}
	for _, s := range resp.Data.Statements {
		renderStatement(b, s)
	}
	if len(resp.Data.Variables) > 0 {
		names := make([]string, 0, len(resp.Data.Variables))
		for n := range resp.Data.Variables {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = n + "=" + rawValue(resp.Data.Variables[n])
		}
		fmt.Fprintf(b, "variables: %s\n", strings.Join(parts, " "))
	}
	if len(resp.Data.Unresolved) > 0 {
		fmt.Fprintf(b, "unresolved: %s\n", strings.Join(resp.Data.Unresolved, " "))
	}
}

func renderStatement(b *strings.Builder, s *engine.StatementResult) {
	fmt.Fprintf(b, "[%d] %s %s", s.Index+1, s.QueryType, s.Outcome)
	if s.Target != "" {
		fmt.Fprintf(b, " target=%s", s.Target)
	}
	switch {
	case s.Error != nil:
		fmt.Fprintf(b, " error=%s", s.Error.Code)
	case s.Dashboard != nil:
		fmt.Fprintf(b, " dashboard=%s %q", s.Dashboard.ID, s.Dashboard.Name)
	case s.Formatted != nil && s.Formatted.Scalar != nil:
		fmt.Fprintf(b, " value=%s display=%q color=%s", rawValue(s.Value), s.Formatted.Scalar.Display, s.Formatted.Color)
	case s.Formatted != nil:
		fmt.Fprintf(b, " rows=%d columns=%s", len(s.Formatted.Rows), strings.Join(s.Formatted.Columns, ","))
	}
	b.WriteByte('\n')

	if s.Dashboard != nil {
		for _, w := range s.Dashboard.Widgets {
			renderWidget(b, w)
		}
	}
}

func renderWidget(b *strings.Builder, w format.WidgetPayload) {
	fmt.Fprintf(b, "  %s %s", w.ID, w.Kind)
	if w.ChartType != "" {
		fmt.Fprintf(b, " %s", w.ChartType)
	}
	if w.Title != "" {
		fmt.Fprintf(b, " %q", w.Title)
	}
	switch {
	case w.Error != nil:
		fmt.Fprintf(b, " error=%s", w.Error.Code)
	case w.Value != nil:
		fmt.Fprintf(b, " display=%q color=%s", w.Value.Display, w.Color)
	default:
		fmt.Fprintf(b, " rows=%d columns=%s", len(w.Rows), strings.Join(w.Columns, ","))
	}
	b.WriteByte('\n')
}

func rawValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.Scalar:
		if val.Kind == ir.ScalarNull {
			return "null"
		}
		return val.String()
	case ir.RowSet:
		return fmt.Sprintf("<%d rows>", len(val.Rows))
	default:
		return "<nil>"
	}
}

// RunWithGolden executes a scenario and compares its Render output with
// testdata/scenarios/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// GoldenDir is the directory holding the golden files of the scenarios
// in scenariosDir.
func GoldenDir(scenariosDir string) string {
	return filepath.Join(scenariosDir, "golden")
}

// GoldenPath returns the golden file of the named scenario.
func GoldenPath(scenariosDir, name string) string {
	return filepath.Join(GoldenDir(scenariosDir), name+".golden")
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir(filepath.Join("testdata", "scenarios"))),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(name, result))
}
