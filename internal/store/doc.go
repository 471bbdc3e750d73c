// Package store provides SQLite-backed durable storage for TQL.
//
// One database file holds two tables:
//   - audit_records: the append-only execution audit trail (audit.Log)
//   - saved_queries: saved scripts and dashboards (saved.Store)
//
// # Critical Patterns
//
// Append-only audit: triggers abort any UPDATE or DELETE on audit_records,
// so the trail cannot be rewritten through this package or any other
// client of the file.
//
// Deterministic reads: audit reads order by seq (insertion order), never
// by timestamp; saved queries order by created_at then id COLLATE BINARY.
//
// Parameterized SQL: every statement binds its values with "?"
// placeholders.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
