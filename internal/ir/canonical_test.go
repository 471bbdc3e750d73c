package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"float", 1.5, "1.5"},
		{"integral float", float64(1000), "1000"},
		{"bool true", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{1, "a", false}, `[1,"a",false]`},
		{"number scalar", Number(2.5), "2.5"},
		{"null scalar", Null(), "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"y": 1, "x": 2},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalTime(t *testing.T) {
	local := time.Date(2026, 10, 1, 0, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	result, err := MarshalCanonical(local)
	require.NoError(t, err)
	assert.Equal(t, `{"$time":"2026-10-01T03:00:00Z"}`, string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	require.Error(t, err)

	_, err = MarshalCanonical([]any{math.Inf(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")
}

func TestMarshalCanonicalRejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("valor > 10 & <x>")
	require.NoError(t, err)
	assert.Equal(t, `"valor > 10 & <x>"`, string(result))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "m\u00E9dia"
	decomposed := "me\u0301dia"

	result1, err := MarshalCanonical(composed)
	require.NoError(t, err)
	result2, err := MarshalCanonical(decomposed)
	require.NoError(t, err)

	assert.Equal(t, result1, result2, "NFC normalization should make these equal")
}

func TestCompareKeysRFC8785(t *testing.T) {
	assert.Equal(t, -1, compareKeysRFC8785("a", "b"))
	assert.Equal(t, 1, compareKeysRFC8785("b", "a"))
	assert.Equal(t, 0, compareKeysRFC8785("a", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "aa"))
	// U+FFFF sorts after U+1F600 in UTF-8 but before it in UTF-16
	// (surrogate 0xD83D < 0xFFFF).
	assert.Equal(t, 1, compareKeysRFC8785("\uFFFF", "\U0001F600"))
}
