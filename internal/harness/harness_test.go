package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/audit"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Steps, len(s.Steps))
		})
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectations
mock:
  - match: SUM(valor)
    value: 10
steps:
  - tql: SOMAR valor DE vendas
    expect:
      success: false
      query_type: dashboard
      statements:
        - outcome: cache_hit
          display: "11"
          color: verde
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "steps[0]: success: expected false, got true")
	assert.Contains(t, result.Errors, "steps[0]: query type: expected dashboard, got simple")
	assert.Contains(t, result.Errors, "steps[0]: statements[0]: outcome: expected cache_hit, got success")
	assert.Contains(t, result.Errors, `steps[0]: statements[0]: display: expected "11", got "10"`)
	assert.Contains(t, result.Errors, `steps[0]: statements[0]: color: expected verde, got "cinza"`)
}

func TestRun_StatementCountMismatch(t *testing.T) {
	s := mustParse(t, `
name: count_mismatch
steps:
  - tql: "1; 2"
    expect:
      statements:
        - outcome: success
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"steps[0]: statements: expected 1, got 2"}, result.Errors)
}

func TestRun_WidgetExpectations(t *testing.T) {
	s := mustParse(t, `
name: widgets
mock:
  - match: SUM(valor)
    value: 10
steps:
  - tql: |
      DASHBOARD "d":
        KPI SOMAR valor DE vendas
    expect:
      statements:
        - widgets:
            - display: "11"
              error_code: TIMEOUT
  - tql: SOMAR valor DE vendas
    expect:
      statements:
        - widgets:
            - display: "10"
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`steps[0]: statements[0]: widgets[0]: got error code "", display "10"`,
		"steps[1]: statements[0]: widgets: statement is not a dashboard",
	}, result.Errors)
}

func TestRun_StepsShareEngineState(t *testing.T) {
	s := mustParse(t, `
name: shared
steps:
  - tql: CONTAR * DE vendas
    user: ana
  - tql: CONTAR * DE vendas
    user: bia
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.Len(t, result.Audit, 2)
	assert.Equal(t, "ana", result.Audit[0].UserID)
	assert.Equal(t, "bia", result.Audit[1].UserID)
	assert.Equal(t, audit.OutcomeCacheHit, result.Audit[1].Outcome)
	assert.Len(t, result.Calls, 1)

	first := result.Steps[0].Script.Statements[0].Value
	second := result.Steps[1].Script.Statements[0].Value
	assert.Equal(t, first, second, "synthetic data is deterministic")
}

func TestRun_CacheDisabled(t *testing.T) {
	s := mustParse(t, `
name: no_cache
options:
  use_cache: false
steps:
  - tql: CONTAR * DE vendas
  - tql: CONTAR * DE vendas
assertions:
  - type: audit_outcomes
    outcomes: [success, success]
  - type: datasource_calls
    count: 2
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResult_Last(t *testing.T) {
	r := NewResult()
	assert.Nil(t, r.Last())
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
