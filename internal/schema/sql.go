package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteProvider introspects a SQLite database through sqlite_master and
// the pragma_table_info table-valued function.
type SQLiteProvider struct {
	DB *sql.DB
}

// NewSQLiteProvider creates a provider over db.
func NewSQLiteProvider(db *sql.DB) *SQLiteProvider {
	return &SQLiteProvider{DB: db}
}

// GetSchema implements Provider.
func (p *SQLiteProvider) GetSchema(ctx context.Context) (*Snapshot, error) {
	tables, err := p.tables(ctx)
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot()
	for _, table := range tables {
		entity, err := p.columns(ctx, table)
		if err != nil {
			return nil, err
		}
		snap.add(entity)
	}
	return snap, nil
}

func (p *SQLiteProvider) tables(ctx context.Context) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("schema: list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("schema: scan table: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (p *SQLiteProvider) columns(ctx context.Context, table string) (*Entity, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("schema: columns of %s: %w", table, err)
	}
	defer rows.Close()

	entity := &Entity{Name: table, Fields: []Field{}}
	for rows.Next() {
		var (
			name, typ string
			notNull   int
		)
		if err := rows.Scan(&name, &typ, &notNull); err != nil {
			return nil, fmt.Errorf("schema: scan column of %s: %w", table, err)
		}
		entity.Fields = append(entity.Fields, Field{
			Name:     name,
			Type:     ParseFieldType(typ),
			Nullable: notNull == 0,
		})
	}
	return entity, rows.Err()
}

// PostgresProvider introspects a PostgreSQL schema through
// information_schema.columns.
type PostgresProvider struct {
	DB     *sql.DB
	Schema string // defaults to "public"
}

// NewPostgresProvider creates a provider over db for the given schema.
func NewPostgresProvider(db *sql.DB, schemaName string) *PostgresProvider {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresProvider{DB: db, Schema: schemaName}
}

// GetSchema implements Provider.
func (p *PostgresProvider) GetSchema(ctx context.Context) (*Snapshot, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position
	`, p.Schema)
	if err != nil {
		return nil, fmt.Errorf("schema: introspect %s: %w", p.Schema, err)
	}
	defer rows.Close()

	byName := map[string]*Entity{}
	order := []string{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("schema: scan column: %w", err)
		}
		e, ok := byName[table]
		if !ok {
			e = &Entity{Name: table, Fields: []Field{}}
			byName[table] = e
			order = append(order, table)
		}
		e.Fields = append(e.Fields, Field{
			Name:     column,
			Type:     ParseFieldType(dataType),
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: iterate columns: %w", err)
	}

	snap := NewSnapshot()
	for _, name := range order {
		snap.add(byName[name])
	}
	return snap, nil
}
