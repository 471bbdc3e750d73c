package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/datasource"
)

// runShellInput feeds input to a shell and returns its output.
func runShellInput(t *testing.T, env *Environment, input string, args ...string) string {
	t.Helper()
	cmd := NewShellCommand(&RootOptions{Format: "text", Env: env})
	cmd.SetIn(strings.NewReader(input))
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestShellCachesAcrossScripts(t *testing.T) {
	mock := salesMock()
	env := newTestEnv(mock)

	out := runShellInput(t, env, "SOMAR valor DE vendas\nSOMAR valor DE vendas\n\\cache stats\n\\q\nCONTAR * DE vendas\n")

	assert.Contains(t, out, "[1] 1.500\n")
	assert.Contains(t, out, "[1] 1.500 (cached)\n")
	assert.Contains(t, out, "entries=1 hits=1 misses=1")
	assert.NotContains(t, out, "[1] 30", "input after \\q is ignored")
	assert.Equal(t, 1, mock.CallCount())
}

func TestShellCacheClear(t *testing.T) {
	mock := salesMock()
	env := newTestEnv(mock)

	out := runShellInput(t, env, "SOMAR valor DE vendas\n\\cache clear\nSOMAR valor DE vendas\n")

	assert.Contains(t, out, "✓ Cleared 1 cached result(s)")
	assert.NotContains(t, out, "(cached)")
	assert.Equal(t, 2, mock.CallCount())
}

func TestShellContinuationLines(t *testing.T) {
	env := newTestEnv(salesMock())

	out := runShellInput(t, env, "receita = SOMAR valor DE vendas; \\\nreceita * 2\n")

	assert.Contains(t, out, "[1] receita = 1.500\n")
	assert.Contains(t, out, "[2] 3.000\n")
}

func TestShellAuditAndErrors(t *testing.T) {
	env := newTestEnv(salesMock())

	out := runShellInput(t, env, "SOMAR valor DE\nCONTAR * DE vendas\n\\audit 5\n", "--user", "ana")

	assert.Contains(t, out, "✗ PARSE_ERROR", "a failing script does not end the session")
	assert.Contains(t, out, "[1] 30")
	assert.Contains(t, out, "Audit records 1-1 of 1")
	assert.Contains(t, out, "user=ana")
}

func TestShellMetaCommands(t *testing.T) {
	env := newTestEnv(salesMock())

	out := runShellInput(t, env, "\\help\n\\suggest SOMAR valor DE ve\nSOMAR valor DE vendas\n\\metrics\n\\bogus\n\\cache nope\n\\audit x\n")

	assert.Contains(t, out, `\cache clear`)
	assert.Contains(t, out, "vendas\n")
	assert.Contains(t, out, `tql_statements_total{outcome="success"} 1`)
	assert.Contains(t, out, `unknown command \bogus`)
	assert.Contains(t, out, `usage: \cache clear|stats`)
	assert.Contains(t, out, `usage: \audit [n]`)
}

func TestShellNoPromptWithoutTerminal(t *testing.T) {
	out := runShellInput(t, newTestEnv(datasource.NewMock()), "")
	assert.Empty(t, out)
}
