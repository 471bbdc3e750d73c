package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/saved"
)

func TestSavedLifecycle(t *testing.T) {
	env := newTestEnv(datasource.NewMock())
	opts := &RootOptions{Format: "json", Env: env}

	out, err := execute(NewSavedCommand(opts), "save", "--name", "Receita", "--tag", "vendas", "--tag", "vendas", "SOMAR valor DE vendas")
	require.NoError(t, err)
	var created struct {
		Data saved.Query `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	id := created.Data.ID
	require.NotEmpty(t, id)
	assert.Equal(t, queryir.QueryTypeSimple, created.Data.QueryType)
	assert.Equal(t, []string{"vendas"}, created.Data.Tags)

	out, err = execute(NewSavedCommand(&RootOptions{Format: "text", Env: env}), "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Receita ("+id+")")
	assert.Contains(t, out, "SOMAR valor DE vendas")

	_, err = execute(NewSavedCommand(opts), "save", "--id", id, "--name", "Receita total", "x = SOMAR valor DE vendas; x")
	require.NoError(t, err)
	q, err := env.Saved.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Receita total", q.Name)
	assert.Equal(t, queryir.QueryTypeVariable, q.QueryType)

	out, err = execute(NewSavedCommand(&RootOptions{Format: "text", Env: env}), "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Receita total")

	out, err = execute(NewSavedCommand(&RootOptions{Format: "text", Env: env}), "delete", id)
	require.NoError(t, err)
	assert.Equal(t, "✓ Deleted "+id+"\n", out)

	_, err = env.Saved.Get(context.Background(), id)
	assert.True(t, saved.IsNotFound(err))
}

func TestSavedListByTag(t *testing.T) {
	env := newTestEnv(datasource.NewMock())
	ctx := context.Background()
	_, err := env.Saved.Save(ctx, saved.Query{Name: "a", TQL: "CONTAR * DE vendas", Tags: []string{"vendas"}})
	require.NoError(t, err)
	_, err = env.Saved.Save(ctx, saved.Query{Name: "b", TQL: "CONTAR * DE estoque", Tags: []string{"estoque"}})
	require.NoError(t, err)

	out, err := execute(NewSavedCommand(&RootOptions{Format: "json", Env: env}), "list", "--tag", "estoque")
	require.NoError(t, err)
	var resp struct {
		Data []saved.Query `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "b", resp.Data[0].Name)
}

func TestSavedSaveRejectsUnparsableTQL(t *testing.T) {
	env := newTestEnv(datasource.NewMock())

	out, err := execute(NewSavedCommand(&RootOptions{Format: "text", Env: env}), "save", "--name", "x", "SOMAR valor DE")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PARSE_ERROR")

	_, err = execute(NewSavedCommand(&RootOptions{Format: "text", Env: env}), "save", "--name", "x", "--force", "SOMAR valor DE")
	require.NoError(t, err)
	qs, err := env.Saved.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, qs, 1)
}

func TestSavedNotFound(t *testing.T) {
	for _, sub := range []string{"get", "delete"} {
		t.Run(sub, func(t *testing.T) {
			out, err := execute(NewSavedCommand(&RootOptions{Format: "text", Env: newTestEnv(datasource.NewMock())}), sub, "missing")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E005]: saved query not found: missing")
		})
	}
}
