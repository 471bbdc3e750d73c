package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/ir"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, size int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	c, err := New(size, WithClock(clock.Now))
	require.NoError(t, err)
	return c, clock
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t, 8)
	rows := ir.RowSet{
		Columns: []string{"regiao", "valor"},
		Rows:    []ir.Row{{"Sul", 10.5}, {"Norte", nil}},
	}

	require.NoError(t, c.Set("a", ir.Number(12.5), time.Minute))
	require.NoError(t, c.Set("b", rows, time.Minute))

	v, ok, err := c.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.Number(12.5), v)

	v, ok, err = c.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, v)

	_, ok, err = c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, Stats{Entries: 2, Hits: 2, Misses: 1}, c.Stats())
}

func TestCache_LazyExpiry(t *testing.T) {
	c, clock := newTestCache(t, 8)
	require.NoError(t, c.Set("k", ir.Number(1), time.Minute))

	clock.Advance(59 * time.Second)
	_, ok, _ := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = c.Get("k")
	assert.False(t, ok, "an entry expires exactly at expiresAt")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().Expired)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestCache(t, 8)
	require.NoError(t, c.Set("k", ir.Text("x"), 0))

	clock.Advance(24 * 365 * time.Hour)
	v, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.Text("x"), v)
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, 8)
	require.NoError(t, c.Set("short", ir.Number(1), time.Second))
	require.NoError(t, c.Set("long", ir.Number(2), time.Hour))
	require.NoError(t, c.Set("forever", ir.Number(3), 0))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 0, c.Sweep())
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache(t, 8)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(fmt.Sprintf("k%d", i), ir.Number(float64(i)), time.Minute))
	}
	assert.Equal(t, 3, c.Clear())
	assert.Equal(t, 0, c.Len())
	_, ok, _ := c.Get("k0")
	assert.False(t, ok)
}

func TestCache_Bounded(t *testing.T) {
	c, _ := newTestCache(t, 2)
	require.NoError(t, c.Set("a", ir.Number(1), 0))
	require.NoError(t, c.Set("b", ir.Number(2), 0))
	_, _, _ = c.Get("a") // a becomes most recently used
	require.NoError(t, c.Set("c", ir.Number(3), 0))

	_, ok, _ := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, _ = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_DecodeFailureIsMiss(t *testing.T) {
	c, _ := newTestCache(t, 8)
	c.lru.Add("bad", entry{data: []byte("not snappy")})

	v, ok, err := c.Get("bad")
	assert.Nil(t, v)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, IsCacheError(err))
	assert.Equal(t, 0, c.Len(), "corrupt entry is dropped")
}

func TestCache_EncodeFailure(t *testing.T) {
	c, _ := newTestCache(t, 8)
	err := c.Set("k", nil, time.Minute)
	require.Error(t, err)
	var ce *CacheError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "encode", ce.Op)
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, 64)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 100; j++ {
				_ = c.Set(key, ir.Number(float64(i)), time.Minute)
				v, ok, err := c.Get(key)
				if assert.NoError(t, err) && ok {
					_, isScalar := v.(ir.Scalar)
					assert.True(t, isScalar)
				}
			}
		}(i)
	}
	wg.Wait()
}
