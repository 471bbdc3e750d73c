package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog_AppendList(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, Record{RawStatement: fmt.Sprintf("s%d", i), Outcome: OutcomeSuccess}))
	}

	n, err := log.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	page, err := log.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s1", page[0].RawStatement)
	assert.Equal(t, "s2", page[1].RawStatement)

	all, err := log.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5, "limit zero means no limit")
	assert.Equal(t, "s4", all[4].RawStatement, "newest last")

	past, err := log.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.NotNil(t, past)
	assert.Empty(t, past)

	_, err = log.List(ctx, -1, 5)
	assert.Error(t, err)
}

func TestMemoryLog_AssignsIDs(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	require.NoError(t, log.Append(ctx, Record{}))
	require.NoError(t, log.Append(ctx, Record{ID: "fixed"}))

	recs, err := log.List(ctx, 0, 0)
	require.NoError(t, err)
	id, err := uuid.Parse(recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "fixed", recs[1].ID)
}

func TestMemoryLog_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	require.NoError(t, log.Append(ctx, Record{RawStatement: "a"}))

	recs, _ := log.List(ctx, 0, 0)
	recs[0].RawStatement = "mutated"

	again, _ := log.List(ctx, 0, 0)
	assert.Equal(t, "a", again[0].RawStatement)
}

func TestMemoryLog_Concurrent(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = log.Append(ctx, Record{UserID: fmt.Sprint(g), StatementIndex: i})
			}
		}(g)
	}
	wg.Wait()

	n, _ := log.Count(ctx)
	assert.Equal(t, 400, n)

	recs, _ := log.List(ctx, 0, 0)
	last := map[string]int{}
	for _, r := range recs {
		prev, seen := last[r.UserID]
		if seen {
			assert.Greater(t, r.StatementIndex, prev, "per-writer order is kept")
		}
		last[r.UserID] = r.StatementIndex
	}
}
