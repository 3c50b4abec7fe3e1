// Package dbtest provides an in-memory SQLite fixture for smoke
// testing compiled SQL against a real engine.
//
// The target dialect is PostgreSQL, so only the dialect-portable
// subset of compiled statements is executable here; the fixture
// exists to catch structural mistakes (bad clause order, unbalanced
// parentheses, misquoted identifiers), not dialect differences.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bkovari/relinq/internal/schema"
)

// DB is an in-memory database seeded from entity descriptors.
type DB struct {
	db *sql.DB
}

// Open creates an in-memory database and a table per entity. SQLite
// column affinity is dynamic, so columns are declared without types.
func Open(ctx context.Context, entities ...*schema.Entity) (*DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}

	// A single connection keeps every statement on the same in-memory
	// database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, e := range entities {
		ddl := fmt.Sprintf("CREATE TABLE %q (%s)", e.Name, strings.Join(e.Columns, ", "))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create table %q: %w", e.Name, err)
		}
	}
	return &DB{db: db}, nil
}

// Close releases the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Seed inserts one row per record.
func (d *DB) Seed(ctx context.Context, records ...*schema.Record) error {
	for _, r := range records {
		cols := r.InsertColumns()
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = r.Values[c]
		}
		stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
			r.Entity.Name, strings.Join(cols, ", "), placeholders)
		if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("seed %q: %w", r.Entity.Name, err)
		}
	}
	return nil
}

// QueryRows executes a compiled SELECT and returns every row as a
// value slice, in result order.
func (d *DB) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result = append(result, values)
	}
	return result, rows.Err()
}
