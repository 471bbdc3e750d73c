// Package cache is the content-addressed result cache of the TQL engine.
//
// Entries are immutable: a value is encoded (JSON, then snappy) before it
// is inserted, and a reader always decodes its own copy, so a concurrent
// read never observes a partially written entry. Expiry is lazy and checked
// at read time against an injected clock; Sweep reclaims memory early but
// is never needed for correctness.
package cache

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/tql/internal/ir"
)

// CacheError is an encode or decode failure. Callers log it and treat the
// lookup as a miss.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, shortKey(e.Key), e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// IsCacheError returns true if err is (or wraps) a CacheError.
func IsCacheError(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Expired   int64 `json:"expired"`
	Evictions int64 `json:"evictions"`
}

// Cache is a bounded LRU of encoded query results. Safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, entry]
	now func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	expired   atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most size entries.
func New(size int, opts ...Option) (*Cache, error) {
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c := &Cache{lru: l, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached value for key. An expired entry is removed and
// reported as a miss. A decode failure removes the entry and returns a
// *CacheError alongside the miss.
func (c *Cache) Get(key string) (ir.Value, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		c.expired.Add(1)
		c.misses.Add(1)
		return nil, false, nil
	}

	v, err := decode(e.data)
	if err != nil {
		c.lru.Remove(key)
		c.misses.Add(1)
		return nil, false, &CacheError{Op: "decode", Key: key, Err: err}
	}
	c.hits.Add(1)
	return v, true, nil
}

// Set stores v under key for ttl. A ttl of zero never expires.
func (c *Cache) Set(key string, v ir.Value, ttl time.Duration) error {
	data, err := encode(v)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	if evicted := c.lru.Add(key, e); evicted {
		c.evictions.Add(1)
	}
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if !ok || e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			continue
		}
		if c.lru.Remove(k) {
			removed++
		}
	}
	c.expired.Add(int64(removed))
	return removed
}

// Clear removes every entry unconditionally and returns how many were held.
func (c *Cache) Clear() int {
	n := c.lru.Len()
	c.lru.Purge()
	return n
}

// Len returns the number of entries, expired ones included until read or
// swept.
func (c *Cache) Len() int { return c.lru.Len() }

// Stats returns activity counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Expired:   c.expired.Load(),
		Evictions: c.evictions.Load(),
	}
}

func encode(v ir.Value) ([]byte, error) {
	raw, err := ir.MarshalValue(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decode(data []byte) (ir.Value, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	return ir.UnmarshalValue(raw)
}
