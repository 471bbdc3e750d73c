package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/harness"
)

const passingScenario = `name: soma
steps:
  - tql: SOMAR valor DE vendas
    expect:
      success: true
      statements:
        - outcome: success
mock:
  - match: SUM(valor)
    value: 10
assertions:
  - type: audit_count
    count: 1
`

const failingScenario = `name: falha
steps:
  - tql: CONTAR * DE vendas
    expect:
      success: false
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommandPassAndFail(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"soma.yaml": passingScenario, "falha.yaml": failingScenario})

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ soma\n")
	assert.Contains(t, out, "✗ falha\n")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"soma.yaml": passingScenario, "falha.yaml": failingScenario})

	out, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir, "--filter", "so*")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "soma", resp.Data.Scenarios[0].Name)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: x\nsteps: []\nunknown: 1\n"})

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"soma.yaml": passingScenario})
	goldenPath := harness.GoldenPath(dir, "soma")

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ soma (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), "scenario: soma")

	_, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err, "a fresh golden file matches")

	require.NoError(t, os.WriteFile(goldenPath, []byte("stale\n"), 0o644))
	out, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommandRepositoryScenarios(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 failed")
}
