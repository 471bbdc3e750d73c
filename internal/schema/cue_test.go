package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCUE_FieldMap(t *testing.T) {
	snap, err := ParseCUE([]byte(`
		entities: vendas: {
			valor:   "number"
			data:    "date"
			regiao?: "text"
			ativo:   bool
			qtd:     int
		}
	`), "schema.cue")
	require.NoError(t, err)

	e, ok := snap.Entity("vendas")
	require.True(t, ok)
	require.Len(t, e.Fields, 5)

	assert.Equal(t, Field{Name: "valor", Type: TypeNumber}, e.Fields[0])
	assert.Equal(t, Field{Name: "data", Type: TypeDate}, e.Fields[1])
	assert.Equal(t, Field{Name: "regiao", Type: TypeText, Nullable: true}, e.Fields[2])
	assert.Equal(t, TypeBoolean, e.Fields[3].Type)
	assert.Equal(t, TypeNumber, e.Fields[4].Type)
}

func TestParseCUE_IntrospectionShape(t *testing.T) {
	snap, err := ParseCUE([]byte(`{
		"entities": {
			"clientes": {
				"fields": [
					{"name": "id", "type": "integer", "nullable": false},
					{"name": "nome", "type": "varchar", "nullable": true}
				]
			}
		}
	}`), "schema.json")
	require.NoError(t, err)

	e, ok := snap.Entity("clientes")
	require.True(t, ok)
	assert.Equal(t, []Field{
		{Name: "id", Type: TypeNumber},
		{Name: "nome", Type: TypeText, Nullable: true},
	}, e.Fields)
}

func TestParseCUE_MissingEntities(t *testing.T) {
	_, err := ParseCUE([]byte(`tables: {}`), "schema.cue")
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "entities", le.Field)
}

func TestParseCUE_SyntaxError(t *testing.T) {
	_, err := ParseCUE([]byte(`entities: {`), "broken.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCUEProvider_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(`entities: pedidos: total: "number"`), 0o644))

	snap, err := NewCUEProvider(path).GetSchema(context.Background())
	require.NoError(t, err)

	e, ok := snap.Entity("pedidos")
	require.True(t, ok)
	assert.Equal(t, []string{"total"}, e.FieldNames())
}

func TestCUEProvider_MissingFile(t *testing.T) {
	_, err := NewCUEProvider(filepath.Join(t.TempDir(), "nope.cue")).GetSchema(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
