// Package saved defines the CRUD boundary for saved TQL queries and
// dashboards.
//
// The core treats the store as an opaque document collaborator. Two
// backends ship with the module: the sqlite store in internal/store and
// S3Store, which keeps one JSON document per query under a key prefix.
package saved

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/queryir"
)

// ErrNotFound is returned by Get and Delete for an unknown ID.
var ErrNotFound = errors.New("saved query not found")

// IsNotFound returns true if err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Query is a stored TQL script.
type Query struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	TQL         string            `json:"tql"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags"`
	QueryType   queryir.QueryType `json:"queryType"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Store persists saved queries.
//
// Save creates a query when ID is empty and replaces it otherwise,
// returning the ID either way. List returns queries oldest first.
type Store interface {
	Save(ctx context.Context, q Query) (string, error)
	Get(ctx context.Context, id string) (Query, error)
	List(ctx context.Context) ([]Query, error)
	Delete(ctx context.Context, id string) error
}

// Validate checks the fields a caller must supply.
func Validate(q Query) error {
	var errs []error
	if strings.TrimSpace(q.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(q.TQL) == "" {
		errs = append(errs, errors.New("tql is required"))
	}
	return errors.Join(errs...)
}

// Prepare validates q and fills the fields owned by the store: ID,
// classification, normalized tags and timestamps. prev is the stored
// version when q replaces an existing query; its CreatedAt is kept.
func Prepare(q Query, prev *Query, now time.Time) (Query, error) {
	if err := Validate(q); err != nil {
		return Query{}, fmt.Errorf("invalid saved query: %w", err)
	}
	if q.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Query{}, fmt.Errorf("generate id: %w", err)
		}
		q.ID = id.String()
	}
	q.Name = strings.TrimSpace(q.Name)
	q.Tags = normalizeTags(q.Tags)
	q.QueryType = parser.Classify(q.TQL)

	now = now.UTC()
	q.CreatedAt = now
	if prev != nil {
		q.CreatedAt = prev.CreatedAt
	}
	q.UpdatedAt = now
	return q, nil
}

// Sort orders queries oldest first, ties broken by ID.
func Sort(qs []Query) {
	sort.SliceStable(qs, func(i, j int) bool {
		if !qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].CreatedAt.Before(qs[j].CreatedAt)
		}
		return qs[i].ID < qs[j].ID
	})
}

func normalizeTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
