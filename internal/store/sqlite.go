// Package store wraps the retail SQLite database: schema discovery and
// read-only query execution.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// QueryResult holds the result of a SQL query. Execution failures are carried
// in Error rather than returned as Go errors, so a bad query degrades the
// workflow state instead of aborting it.
type QueryResult struct {
	SQL       string
	Columns   []string
	Rows      []map[string]any
	Count     int
	Error     string
	Formatted string // Human-readable table rendering
}

// DB provides access to the retail SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens the database at path. The connection is read-only: the copilot
// never writes, and read-only mode lets concurrent workflows share the file.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Execute runs a read query and captures rows or the failure message. An
// empty or whitespace-only query is a no-op and yields an empty result.
func (d *DB) Execute(ctx context.Context, query string) QueryResult {
	if strings.TrimSpace(query) == "" {
		return QueryResult{SQL: query}
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return QueryResult{SQL: query, Error: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{SQL: query, Error: err.Error()}
	}

	result := QueryResult{SQL: query, Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{SQL: query, Error: err.Error()}
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{SQL: query, Error: err.Error()}
	}

	result.Count = len(result.Rows)
	result.Formatted = formatResult(result)
	return result
}

// normalizeValue converts driver byte slices to strings so results marshal
// and format predictably.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Tables lists the base tables in the database.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Column describes one column of a table.
type Column struct {
	Name string
	Type string
}

// Columns returns the columns of a table in declaration order.
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, Column{Name: name, Type: typ})
	}
	return cols, rows.Err()
}

// ColumnNames returns just the column names of a table.
func (d *DB) ColumnNames(ctx context.Context, table string) ([]string, error) {
	cols, err := d.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names, nil
}

// SchemaText renders the schema of the named tables, or of all base tables
// when none are given, as the text snapshot fed to the SQL generator:
//
//	Table: Orders
//	  - OrderID (INTEGER)
//	  ...
func (d *DB) SchemaText(ctx context.Context, tables ...string) (string, error) {
	if len(tables) == 0 {
		all, err := d.Tables(ctx)
		if err != nil {
			return "", err
		}
		tables = all
	}

	var sb strings.Builder
	for _, table := range tables {
		cols, err := d.Columns(ctx, table)
		if err != nil {
			return "", err
		}
		sb.WriteString("Table: " + table + "\n")
		for _, col := range cols {
			sb.WriteString("  - " + col.Name + " (" + col.Type + ")\n")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
