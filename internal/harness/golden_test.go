package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/format"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
)

// To regenerate after an intentional change:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"variables_arithmetic", "dashboard_isolation", "parse_error"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRender(t *testing.T) {
	w := 1
	stmt := 0
	result := &Result{
		Steps: []StepResult{{
			TQL: "x = 1;\nTOP 2 produto DE vendas POR valor",
			Response: engine.Response{
				Success:   true,
				QueryType: queryir.QueryTypeVariable,
				Data: &engine.ScriptResult{
					Statements: []*engine.StatementResult{
						{
							Index: 0, QueryType: queryir.QueryTypeVariable, Target: "x",
							Outcome: audit.OutcomeSuccess, Value: ir.Number(1),
							Formatted: &format.FormattedValue{Shape: ir.ShapeScalar, Scalar: &format.Cell{Raw: 1.0, Display: "1"}, Color: "cinza"},
						},
						{
							Index: 1, QueryType: queryir.QueryTypeSimple, Outcome: audit.OutcomeError,
							Error: &engine.ErrorInfo{Code: "TIMEOUT", StatementIndex: &stmt},
						},
					},
					Variables:  map[string]ir.Value{"x": ir.Number(1), "a": ir.Null()},
					Unresolved: []string{"y"},
				},
			},
		}},
		Audit: []audit.Record{
			{StatementIndex: 0, QueryType: queryir.QueryTypeVariable, Outcome: audit.OutcomeSuccess, UserID: "ana"},
			{StatementIndex: 1, WidgetIndex: &w, QueryType: queryir.QueryTypeDashboard, Outcome: audit.OutcomeTimeout},
		},
	}

	want := `scenario: render

== step 1
> x = 1;
> TOP 2 produto DE vendas POR valor
success: true (variable)
[1] variable success target=x value=1 display="1" color=cinza
[2] simple error error=TIMEOUT
variables: a=null x=1
unresolved: y

== audit
1 stmt=1 variable success user=ana
2 stmt=2 widget=1 dashboard timeout

== calls: 0
`
	assert.Equal(t, want, string(Render("render", result)))
}

func TestRender_Widgets(t *testing.T) {
	result := &Result{
		Steps: []StepResult{{
			TQL: `DASHBOARD "d"`,
			Response: engine.Response{
				Success:   true,
				QueryType: queryir.QueryTypeDashboard,
				Data: &engine.ScriptResult{
					Statements: []*engine.StatementResult{{
						QueryType: queryir.QueryTypeDashboard,
						Outcome:   audit.OutcomeCacheHit,
						Dashboard: &format.DashboardPayload{
							ID:   "dash-1",
							Name: "d",
							Widgets: []format.WidgetPayload{
								{ID: "dash-1/w0", Kind: queryir.WidgetChart, ChartType: "barras", Columns: []string{"regiao", "valor"}, Rows: [][]format.Cell{{}, {}}},
								{ID: "dash-1/w1", Kind: queryir.WidgetKPI, Title: "t", Error: &format.WidgetError{Message: "unresolved", Code: "UNRESOLVED"}},
							},
						},
					}},
				},
			},
		}},
	}

	got := string(Render("widgets", result))
	assert.Contains(t, got, "[1] dashboard cache_hit dashboard=dash-1 \"d\"\n")
	assert.Contains(t, got, "  dash-1/w0 chart barras rows=2 columns=regiao,valor\n")
	assert.Contains(t, got, "  dash-1/w1 kpi \"t\" error=UNRESOLVED\n")
}
