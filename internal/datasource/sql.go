package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the pure-Go sqlite driver

	"github.com/roach88/tql/internal/ir"
)

// Dialect selects placeholder binding.
type Dialect int

const (
	// DialectSQLite binds ":name" placeholders natively via sql.Named.
	DialectSQLite Dialect = iota
	// DialectPostgres rewrites ":name" placeholders to $1, $2, ...
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// SQL runs queries through database/sql.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens a database. driver is "sqlite" (modernc.org/sqlite) or
// "postgres" (pgx).
func Open(driver, dsn string) (*SQL, error) {
	var (
		name    string
		dialect Dialect
	)
	switch driver {
	case "sqlite":
		name, dialect = "sqlite", DialectSQLite
	case "postgres", "pgx":
		name, dialect = "pgx", DialectPostgres
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	// An in-memory database lives in a single connection.
	if dialect == DialectSQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect), nil
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// DB returns the underlying database.
func (s *SQL) DB() *sql.DB { return s.db }

// Dialect returns the placeholder dialect.
func (s *SQL) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }

// Query implements DataSource.
func (s *SQL) Query(ctx context.Context, query string, params []ir.Param, shape ir.Shape) (ir.Value, error) {
	text, args, err := s.bind(query, params)
	if err != nil {
		return nil, &DataSourceError{Message: "bind parameters", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, Wrap("query", err)
	}
	defer rows.Close()

	rs, err := scanRows(rows)
	if err != nil {
		return nil, Wrap("scan", err)
	}
	if shape == ir.ShapeScalar {
		if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
			return ir.Null(), nil
		}
		return ir.ScalarFromCell(rs.Rows[0][0]), nil
	}
	return rs, nil
}

func (s *SQL) bind(query string, params []ir.Param) (string, []any, error) {
	if s.dialect == DialectPostgres {
		text, err := Rebind(query, params)
		if err != nil {
			return "", nil, err
		}
		args := make([]any, len(params))
		for i, p := range params {
			args[i] = p.Value
		}
		return text, args, nil
	}

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = sql.Named(p.Name, sqliteValue(p.Value))
	}
	return query, args, nil
}

// sqliteValue renders times in the text form SQLite date columns use, so
// range predicates compare lexically. Midnight becomes a bare date.
func sqliteValue(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// Rebind rewrites ":name" placeholders to PostgreSQL's positional "$n",
// numbering by the position of name in params. Text inside single-quoted
// literals and "::" casts are left alone.
func Rebind(query string, params []ir.Param) (string, error) {
	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p.Name] = i + 1
	}

	var b strings.Builder
	b.Grow(len(query))
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' && inQuote && i+1 < len(query) && query[i+1] == '\'':
			// '' is an escaped quote inside a literal. Backslash escapes
			// (E'...') are not recognized.
			b.WriteString("''")
			i++
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == ':' && !inQuote && i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i++
		case c == ':' && !inQuote && i+1 < len(query) && isNameStart(query[i+1]):
			j := i + 1
			for j < len(query) && isNameChar(query[j]) {
				j++
			}
			name := query[i+1 : j]
			n, ok := index[name]
			if !ok {
				return "", fmt.Errorf("placeholder :%s has no bound parameter", name)
			}
			b.WriteString("$" + strconv.Itoa(n))
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func scanRows(rows *sql.Rows) (ir.RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return ir.RowSet{}, err
	}
	rs := ir.RowSet{Columns: cols, Rows: []ir.Row{}}
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ir.RowSet{}, err
		}
		row := make(ir.Row, len(cols))
		for i, c := range cells {
			row[i] = ir.NormalizeCell(c)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}
