package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCacheKey = "tql/cache/v1"
)

// Param is one named bound parameter of a compiled query.
type Param struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey computes the content-addressed cache key of one query execution.
//
// The key covers the normalized statement text, the generated SQL and every
// bound parameter value, so two statements that differ only in a literal get
// independent cache entries. Parameter order is significant.
func CacheKey(normalizedText, sql string, params []Param) (string, error) {
	ps := make([]any, len(params))
	for i, p := range params {
		ps[i] = map[string]any{"name": p.Name, "value": p.Value}
	}
	obj := map[string]any{
		"statement": normalizedText,
		"sql":       sql,
		"params":    ps,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CacheKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCacheKey, canonical), nil
}

// MustCacheKey is like CacheKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCacheKey(normalizedText, sql string, params []Param) string {
	key, err := CacheKey(normalizedText, sql, params)
	if err != nil {
		panic(err)
	}
	return key
}
