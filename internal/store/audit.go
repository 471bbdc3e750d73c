package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/queryir"
)

// AuditLog is the sqlite-backed audit.Log. Records are ordered by seq,
// never by timestamp.
type AuditLog struct {
	db *sql.DB
}

var _ audit.Log = (*AuditLog)(nil)

// Append implements audit.Log.
func (l *AuditLog) Append(ctx context.Context, r audit.Record) error {
	if r.ID == "" {
		r.ID = audit.NewID()
	}
	var widget sql.NullInt64
	if r.WidgetIndex != nil {
		widget = sql.NullInt64{Int64: int64(*r.WidgetIndex), Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_records
			(id, timestamp, user_id, raw_statement, query_type, statement_index,
			 widget_index, duration_ms, outcome, error, cache_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.UserID, r.RawStatement, string(r.QueryType),
		r.StatementIndex, widget, r.DurationMs, string(r.Outcome), r.Error, r.CacheKey)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// List implements audit.Log. A limit of zero returns every record from
// offset on.
func (l *AuditLog) List(ctx context.Context, offset, limit int) ([]audit.Record, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("audit: offset and limit must not be negative")
	}
	sqlLimit := int64(limit)
	if limit == 0 {
		sqlLimit = -1 // sqlite: no limit
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, user_id, raw_statement, query_type, statement_index,
		       widget_index, duration_ms, outcome, error, cache_key
		FROM audit_records
		ORDER BY seq ASC
		LIMIT ? OFFSET ?
	`, sqlLimit, offset)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	records := []audit.Record{}
	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// Count implements audit.Log.
func (l *AuditLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// CountByOutcome returns the number of records per outcome. Outcomes with
// no records are present with zero.
func (l *AuditLog) CountByOutcome(ctx context.Context) (map[audit.Outcome]int, error) {
	out := make(map[audit.Outcome]int, len(audit.Outcomes))
	for _, o := range audit.Outcomes {
		out[o] = 0
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM audit_records GROUP BY outcome ORDER BY outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("count audit outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan audit outcome: %w", err)
		}
		out[audit.Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit outcomes: %w", err)
	}
	return out, nil
}

func scanAuditRecord(rows *sql.Rows) (audit.Record, error) {
	var (
		r         audit.Record
		ts        string
		queryType string
		outcome   string
		widget    sql.NullInt64
	)
	err := rows.Scan(&r.ID, &ts, &r.UserID, &r.RawStatement, &queryType, &r.StatementIndex,
		&widget, &r.DurationMs, &outcome, &r.Error, &r.CacheKey)
	if err != nil {
		return audit.Record{}, fmt.Errorf("scan audit record: %w", err)
	}
	r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return audit.Record{}, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
	}
	r.QueryType = queryir.QueryType(queryType)
	r.Outcome = audit.Outcome(outcome)
	if widget.Valid {
		w := int(widget.Int64)
		r.WidgetIndex = &w
	}
	return r, nil
}
