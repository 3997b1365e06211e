// Package db keeps a DuckDB index of the loaded map features so they can be
// inspected with SQL.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

const schema = `CREATE TABLE IF NOT EXISTS features (
	layer      VARCHAR NOT NULL,
	fid        VARCHAR NOT NULL,
	categories VARCHAR,
	hidden     BOOLEAN,
	min_x      DOUBLE,
	min_y      DOUBLE,
	max_x      DOUBLE,
	max_y      DOUBLE,
	properties VARCHAR
)`

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
}

// Row is one indexed feature.
type Row struct {
	Layer      string
	FID        string
	Categories []string
	Hidden     bool
	Bound      [4]float64
	Properties map[string]any
}

// Index is the feature table.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the database and its features table.
func Open(cfg Config) (*Index, error) {
	dsn := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(dir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating features table: %w", err)
	}
	return &Index{db: conn}, nil
}

// DB exposes the connection for ad-hoc queries.
func (ix *Index) DB() *sql.DB { return ix.db }

// Close closes the database connection.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// Replace swaps the table contents for rows in one transaction.
func (ix *Index) Replace(ctx context.Context, rows []Row) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM features"); err != nil {
		return fmt.Errorf("clearing features: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO features (layer, fid, categories, hidden, min_x, min_y, max_x, max_y, properties)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		props, err := json.Marshal(r.Properties)
		if err != nil {
			return fmt.Errorf("encoding %s/%s: %w", r.Layer, r.FID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.Layer, r.FID, strings.Join(r.Categories, ","), r.Hidden,
			r.Bound[0], r.Bound[1], r.Bound[2], r.Bound[3], string(props),
		); err != nil {
			return fmt.Errorf("inserting %s/%s: %w", r.Layer, r.FID, err)
		}
	}
	return tx.Commit()
}

// SetHidden updates the hidden flag of the given features.
func (ix *Index) SetHidden(ctx context.Context, layer string, fids []string, hidden bool) error {
	for _, fid := range fids {
		if _, err := ix.db.ExecContext(ctx,
			"UPDATE features SET hidden = ? WHERE layer = ? AND fid = ?", hidden, layer, fid); err != nil {
			return fmt.Errorf("updating %s/%s: %w", layer, fid, err)
		}
	}
	return nil
}

// Tables lists the tables of the database.
func (ix *Index) Tables(ctx context.Context) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Result is a generic query result.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Query runs a SQL query and collects every row.
func (ix *Index) Query(ctx context.Context, query string, args ...any) (Result, error) {
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}
