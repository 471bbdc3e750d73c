package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/queryir"
)

func TestValidateValid(t *testing.T) {
	mock := datasource.NewMock()
	cmd := NewValidateCommand(&RootOptions{Format: "text", Env: newTestEnv(mock)})

	out, err := execute(cmd, "x = CONTAR * DE vendas;", "x + 1")
	require.NoError(t, err)
	assert.Equal(t, "✓ Valid: 2 statement(s) (variable)\n", out)
	assert.Zero(t, mock.CallCount())
}

func TestValidateValidJSON(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "json", Env: newTestEnv(datasource.NewMock())})

	out, err := execute(cmd, "SOMAR valor DE vendas")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, queryir.QueryTypeSimple, resp.Data.QueryType)
	assert.Equal(t, 1, resp.Data.Statements)
}

func TestValidateParseErrorText(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text", Env: newTestEnv(datasource.NewMock())})

	out, err := execute(cmd, "SOMAR valor DE")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "PARSE_ERROR")
	assert.Contains(t, out, "statement 1, line 1, column 15")
	assert.Contains(t, out, "    SOMAR valor DE\n")
	assert.Contains(t, out, "expected:")
}

func TestValidateUnknownFieldJSON(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "json", Env: newTestEnv(datasource.NewMock())})

	out, err := execute(cmd, "SOMAR preco DE vendas")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Valid bool              `json:"valid"`
			Error *engine.ErrorInfo `json:"error"`
		} `json:"data"`
		Error *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotNil(t, resp.Data.Error)
	assert.Equal(t, "UNKNOWN_FIELD", resp.Data.Error.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_FIELD", resp.Error.Code)
}

func TestSourceLine(t *testing.T) {
	src := "x = 1;\nSOMAR valor DE"

	line, ok := sourceLine(src, &engine.Position{Line: 2, Column: 15})
	assert.True(t, ok)
	assert.Equal(t, "SOMAR valor DE", line)

	_, ok = sourceLine(src, &engine.Position{Line: 3, Column: 1})
	assert.False(t, ok)
	_, ok = sourceLine(src, &engine.Position{Line: 1, Column: 40})
	assert.False(t, ok)
	_, ok = sourceLine(src, nil)
	assert.False(t, ok)
}
