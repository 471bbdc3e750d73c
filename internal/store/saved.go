package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/saved"
)

// SavedQueries is the sqlite-backed saved.Store.
type SavedQueries struct {
	db  *sql.DB
	now func() time.Time
}

var _ saved.Store = (*SavedQueries)(nil)

// SavedOption configures SavedQueries.
type SavedOption func(*SavedQueries)

// WithClock sets the clock used for created/updated timestamps.
func WithClock(now func() time.Time) SavedOption {
	return func(s *SavedQueries) { s.now = now }
}

func newSavedQueries(db *sql.DB, opts ...SavedOption) *SavedQueries {
	s := &SavedQueries{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save implements saved.Store. Replacing a query keeps its created_at.
func (s *SavedQueries) Save(ctx context.Context, q saved.Query) (string, error) {
	var prev *saved.Query
	if q.ID != "" {
		existing, err := s.Get(ctx, q.ID)
		switch {
		case err == nil:
			prev = &existing
		case !saved.IsNotFound(err):
			return "", err
		}
	}
	q, err := saved.Prepare(q, prev, s.now())
	if err != nil {
		return "", err
	}
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_queries (id, name, tql, description, tags, query_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tql = excluded.tql,
			description = excluded.description,
			tags = excluded.tags,
			query_type = excluded.query_type,
			updated_at = excluded.updated_at
	`, q.ID, q.Name, q.TQL, q.Description, string(tags), string(q.QueryType),
		formatTime(q.CreatedAt), formatTime(q.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("save query %s: %w", q.ID, err)
	}
	return q.ID, nil
}

// Get implements saved.Store.
func (s *SavedQueries) Get(ctx context.Context, id string) (saved.Query, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, tql, description, tags, query_type, created_at, updated_at
		FROM saved_queries
		WHERE id = ?
	`, id)
	q, err := scanSavedQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return saved.Query{}, saved.ErrNotFound
	}
	if err != nil {
		return saved.Query{}, fmt.Errorf("get query %s: %w", id, err)
	}
	return q, nil
}

// List implements saved.Store.
func (s *SavedQueries) List(ctx context.Context) ([]saved.Query, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tql, description, tags, query_type, created_at, updated_at
		FROM saved_queries
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	out := []saved.Query{}
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return out, nil
}

// Delete implements saved.Store.
func (s *SavedQueries) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM saved_queries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	if n == 0 {
		return saved.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedQuery(row rowScanner) (saved.Query, error) {
	var (
		q                  saved.Query
		tags, queryType    string
		createdAt, updated string
	)
	if err := row.Scan(&q.ID, &q.Name, &q.TQL, &q.Description, &tags, &queryType, &createdAt, &updated); err != nil {
		return saved.Query{}, err
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return saved.Query{}, fmt.Errorf("decode tags of %s: %w", q.ID, err)
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	q.QueryType = queryir.QueryType(queryType)

	var err error
	if q.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return saved.Query{}, fmt.Errorf("parse created_at of %s: %w", q.ID, err)
	}
	if q.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return saved.Query{}, fmt.Errorf("parse updated_at of %s: %w", q.ID, err)
	}
	return q, nil
}

// formatTime renders a fixed-width UTC timestamp so text ordering matches
// time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
