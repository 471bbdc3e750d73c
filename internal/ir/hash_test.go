package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyDeterminism(t *testing.T) {
	params := []Param{
		{Name: "start", Value: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "end", Value: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
	}
	sql := "SELECT SUM(valor) FROM vendas WHERE data >= :start AND data < :end"

	key1, err := CacheKey("vendas_mes = SOMAR valor DE vendas", sql, params)
	require.NoError(t, err)
	key2, err := CacheKey("vendas_mes = SOMAR valor DE vendas", sql, params)
	require.NoError(t, err)

	assert.Equal(t, key1, key2, "CacheKey must be deterministic")
	assert.Len(t, key1, 64, "SHA-256 hex is 64 characters")
}

func TestCacheKeyChangesWithParameterValue(t *testing.T) {
	sql := "SELECT COUNT(*) FROM vendas WHERE status = :p1"

	k1 := MustCacheKey("CONTAR * DE vendas ONDE status = 'pago'", sql, []Param{{Name: "p1", Value: "pago"}})
	k2 := MustCacheKey("CONTAR * DE vendas ONDE status = 'pago'", sql, []Param{{Name: "p1", Value: "aberto"}})

	assert.NotEqual(t, k1, k2, "different parameter values must produce different keys")
}

func TestCacheKeyChangesWithStatementAndSQL(t *testing.T) {
	params := []Param{{Name: "p1", Value: 10.0}}

	base := MustCacheKey("a", "SELECT 1", params)
	assert.NotEqual(t, base, MustCacheKey("b", "SELECT 1", params))
	assert.NotEqual(t, base, MustCacheKey("a", "SELECT 2", params))
}

func TestCacheKeyParameterOrderMatters(t *testing.T) {
	a := []Param{{Name: "p1", Value: 1.0}, {Name: "p2", Value: 2.0}}
	b := []Param{{Name: "p2", Value: 2.0}, {Name: "p1", Value: 1.0}}

	assert.NotEqual(t, MustCacheKey("s", "q", a), MustCacheKey("s", "q", b))
}

func TestCacheKeyRejectsUnsupportedParam(t *testing.T) {
	_, err := CacheKey("s", "q", []Param{{Name: "p1", Value: struct{}{}}})
	require.Error(t, err)
	assert.Panics(t, func() {
		MustCacheKey("s", "q", []Param{{Name: "p1", Value: struct{}{}}})
	})
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain("tql/cache/v1", data), hashWithDomain("tql/other/v1", data))
}
