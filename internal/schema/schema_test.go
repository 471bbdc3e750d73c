package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesSnapshot() *Snapshot {
	return NewSnapshot(
		&Entity{Name: "vendas", Fields: []Field{
			{Name: "valor", Type: TypeNumber},
			{Name: "data", Type: TypeDate},
			{Name: "produto", Type: TypeText, Nullable: true},
		}},
		&Entity{Name: "Clientes", Fields: []Field{{Name: "id", Type: TypeNumber}}},
	)
}

func TestSnapshot_CaseInsensitiveLookup(t *testing.T) {
	snap := salesSnapshot()

	e, ok := snap.Entity("VENDAS")
	require.True(t, ok)
	assert.Equal(t, "vendas", e.Name)

	f, ok := e.Field("Valor")
	require.True(t, ok)
	assert.Equal(t, "valor", f.Name)
	assert.True(t, f.Type.IsNumeric())

	_, ok = e.Field("preco")
	assert.False(t, ok)

	c, ok := snap.Entity("clientes")
	require.True(t, ok)
	assert.Equal(t, "Clientes", c.Name, "declared spelling is preserved")
}

func TestSnapshot_Names(t *testing.T) {
	snap := salesSnapshot()

	assert.Equal(t, []string{"Clientes", "vendas"}, snap.EntityNames())
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, []string{"valor", "data", "produto"}, snap.Entities()[1].FieldNames())

	var empty *Snapshot
	assert.Empty(t, empty.EntityNames())
	assert.Equal(t, 0, empty.Len())
	_, ok := empty.Entity("x")
	assert.False(t, ok)
}

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		in   string
		want FieldType
	}{
		{"number", TypeNumber},
		{"INTEGER", TypeNumber},
		{"numeric(10,2)", TypeNumber},
		{"double precision", TypeNumber},
		{"bigint", TypeNumber},
		{"character varying", TypeText},
		{"VARCHAR(255)", TypeText},
		{"uuid", TypeText},
		{"date", TypeDate},
		{"timestamp with time zone", TypeDateTime},
		{"DATETIME", TypeDateTime},
		{"boolean", TypeBoolean},
		{"interval", TypeUnknown},
		{"", TypeUnknown},
		{"blob", TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFieldType(tt.in))
		})
	}
}

func TestFieldTypePredicates(t *testing.T) {
	assert.True(t, TypeDate.IsTemporal())
	assert.True(t, TypeDateTime.IsTemporal())
	assert.False(t, TypeText.IsTemporal())
	assert.True(t, TypeText.IsText())
	assert.False(t, TypeUnknown.Known())
}

func TestStatic(t *testing.T) {
	snap := salesSnapshot()
	got, err := NewStatic(snap).GetSchema(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, got)
}
