package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var v Value = Number(1)
	switch v.(type) {
	case Scalar:
		// Expected
	case RowSet:
		t.Fatal("unexpected type")
	}
	assert.Equal(t, ShapeScalar, v.Shape())
	assert.Equal(t, ShapeRowSet, RowSet{}.Shape())
}

func TestShapeText(t *testing.T) {
	b, err := json.Marshal(ShapeRowSet)
	require.NoError(t, err)
	assert.Equal(t, `"rowset"`, string(b))

	var s Shape
	require.NoError(t, json.Unmarshal([]byte(`"scalar"`), &s))
	assert.Equal(t, ShapeScalar, s)
	assert.Error(t, json.Unmarshal([]byte(`"matrix"`), &s))
}

func TestScalarJSON(t *testing.T) {
	tests := []struct {
		name string
		in   Scalar
		want string
	}{
		{"number", Number(12.5), "12.5"},
		{"text", Text("ok"), `"ok"`},
		{"null", Null(), "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))

			var back Scalar
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestMarshalValueEnvelope(t *testing.T) {
	rs := RowSet{
		Columns: []string{"produto", "valor"},
		Rows:    []Row{{"a", 10.0}, {"b", nil}},
	}

	data, err := MarshalValue(rs)
	require.NoError(t, err)

	back, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, rs, back)

	data, err = MarshalValue(Number(3))
	require.NoError(t, err)
	back, err = UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, Number(3), back)
}

func TestUnmarshalValueErrors(t *testing.T) {
	_, err := UnmarshalValue([]byte("not json"))
	assert.Error(t, err)

	_, err = UnmarshalValue([]byte(`{"type":"rowset"}`))
	assert.Error(t, err)
}

func TestNormalizeCell(t *testing.T) {
	ts := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3.0, NormalizeCell(int64(3)))
	assert.Equal(t, 3.0, NormalizeCell(int32(3)))
	assert.Equal(t, "abc", NormalizeCell([]byte("abc")))
	assert.Equal(t, "2026-10-14T12:00:00Z", NormalizeCell(ts))
	assert.Nil(t, NormalizeCell(nil))
	assert.Equal(t, true, NormalizeCell(true))
}

func TestRowSetColumn(t *testing.T) {
	rs := RowSet{Columns: []string{"a", "b"}, Rows: []Row{{1.0, 2.0}, {3.0}}}

	assert.Equal(t, 1, rs.ColumnIndex("b"))
	assert.Equal(t, -1, rs.ColumnIndex("z"))
	assert.Equal(t, []any{2.0, nil}, rs.Column("b"))
	assert.Nil(t, rs.Column("z"))
}

func TestScalarFromCell(t *testing.T) {
	assert.Equal(t, Number(5), ScalarFromCell(int64(5)))
	assert.Equal(t, Text("x"), ScalarFromCell("x"))
	assert.Equal(t, Null(), ScalarFromCell(nil))
	assert.Equal(t, Number(1), ScalarFromCell(true))
}
