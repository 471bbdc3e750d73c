// Package audit defines the append-only execution audit trail.
//
// One Record is appended per statement execution (per widget for
// dashboards), cache hits included. Records are never mutated or deleted
// by the engine; retention is an operator concern.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tql/internal/queryir"
)

// Outcome is the result class of one execution.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeCacheHit   Outcome = "cache_hit"
	OutcomeError      Outcome = "error"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeUnresolved Outcome = "unresolved"
)

// Outcomes lists every outcome in a stable order.
var Outcomes = []Outcome{OutcomeSuccess, OutcomeCacheHit, OutcomeError, OutcomeTimeout, OutcomeUnresolved}

// Record is one audit entry.
type Record struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	UserID         string            `json:"userId,omitempty"`
	RawStatement   string            `json:"rawStatement"`
	QueryType      queryir.QueryType `json:"queryType"`
	StatementIndex int               `json:"statementIndex"`
	WidgetIndex    *int              `json:"widgetIndex,omitempty"`
	DurationMs     int64             `json:"durationMs"`
	Outcome        Outcome           `json:"outcome"`
	Error          string            `json:"error,omitempty"`
	CacheKey       string            `json:"cacheKey,omitempty"`
}

// NewID returns a time-ordered record ID (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Log is an append-only audit trail. Implementations must be safe for
// concurrent use; records of one script keep their append order.
type Log interface {
	Append(ctx context.Context, r Record) error
	// List returns up to limit records starting at offset, oldest first.
	List(ctx context.Context, offset, limit int) ([]Record, error)
	Count(ctx context.Context) (int, error)
}

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{records: []Record{}}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, r Record) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	return nil
}

// List implements Log.
func (l *MemoryLog) List(_ context.Context, offset, limit int) ([]Record, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("audit: offset and limit must not be negative")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []Record{}
	if offset >= len(l.records) {
		return out, nil
	}
	end := len(l.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append(out, l.records[offset:end]...), nil
}

// Count implements Log.
func (l *MemoryLog) Count(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}
