package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/suggest"
)

func TestSuggestEntities(t *testing.T) {
	cmd := NewSuggestCommand(&RootOptions{Format: "text", Env: newTestEnv(datasource.NewMock())})

	out, err := execute(cmd, "SOMAR valor DE ")
	require.NoError(t, err)
	assert.Contains(t, out, "Entidades\n")
	assert.Contains(t, out, "clientes")
	assert.Contains(t, out, "vendas")
}

func TestSuggestJSONWithCursor(t *testing.T) {
	cmd := NewSuggestCommand(&RootOptions{Format: "json", Env: newTestEnv(datasource.NewMock())})

	out, err := execute(cmd, "--cursor", "15", "SOMAR valor DE vendas")
	require.NoError(t, err)

	var resp struct {
		Data []suggest.Suggestion `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	labels := []string{}
	for _, s := range resp.Data {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{"clientes", "estoque", "vendas"}, labels)
}

func TestSuggestEmptyInputAndLimit(t *testing.T) {
	cmd := NewSuggestCommand(&RootOptions{Format: "json", Env: newTestEnv(datasource.NewMock())})

	out, err := execute(cmd, "--limit", "3")
	require.NoError(t, err)

	var resp struct {
		Data []suggest.Suggestion `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, suggest.KindFunction, resp.Data[0].Kind)
}
