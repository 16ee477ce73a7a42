// Package duckdb stores normalized repertoire tables in DuckDB so that
// several runs can be queried together.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// Table names.
const (
	TableRearrangements = "rearrangements"
	TableChains         = "chains"
	TablePaired         = "paired_cells"
	TableSources        = "sources"
)

// Kinds of loaded sources. Rows of one source file are stored separately
// per kind, so a file read by several commands keeps every result.
const (
	KindBulk        = "bulk"
	KindSingleCell  = "singlecell"
	KindDemultiplex = "demultiplex"
)

// Store manages a DuckDB connection holding repertoire tables.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rearrangements (
		source VARCHAR,
		kind VARCHAR,
		templates BIGINT,
		junction VARCHAR,
		junction_aa VARCHAR,
		v_call VARCHAR,
		j_call VARCHAR,
		cdr3_nt VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS chains (
		source VARCHAR,
		kind VARCHAR,
		cell_id VARCHAR,
		clone_id VARCHAR,
		sequence_id VARCHAR,
		sequence VARCHAR,
		productive VARCHAR,
		v_call VARCHAR,
		j_call VARCHAR,
		junction VARCHAR,
		junction_aa VARCHAR,
		duplicate_count BIGINT,
		chain VARCHAR,
		sample_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS paired_cells (
		source VARCHAR,
		kind VARCHAR,
		cell_id VARCHAR,
		clone_id VARCHAR,
		sequence_a_id VARCHAR,
		sequence_b_id VARCHAR,
		sequence_a VARCHAR,
		sequence_b VARCHAR,
		productive VARCHAR,
		v_a_call VARCHAR,
		v_b_call VARCHAR,
		j_a_call VARCHAR,
		j_b_call VARCHAR,
		junction_a VARCHAR,
		junction_b VARCHAR,
		junction_a_aa VARCHAR,
		junction_b_aa VARCHAR,
		duplicate_count_a BIGINT,
		duplicate_count_b BIGINT,
		sample_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS sources (
		path VARCHAR,
		kind VARCHAR,
		size BIGINT,
		mod_time_ns BIGINT,
		row_count BIGINT,
		PRIMARY KEY (path, kind)
	)`,
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// appendRows replaces the rows of one (source, kind) in table with the
// rows produced by row, using the Appender API. The delete and the appends
// run in one transaction, so a failed write keeps the previous rows.
func (s *Store) appendRows(table, source, kind string, n int, row func(i int) []driver.Value) (err error) {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	if _, err := conn.ExecContext(ctx, "DELETE FROM "+table+" WHERE source=? AND kind=?", source, kind); err != nil {
		return fmt.Errorf("clear %s for %s: %w", table, source, err)
	}

	if n > 0 {
		var appender *goduckdb.Appender
		if err := conn.Raw(func(driverConn any) error {
			var err error
			appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
			return err
		}); err != nil {
			return fmt.Errorf("create appender: %w", err)
		}

		for i := 0; i < n; i++ {
			vals := append([]driver.Value{source, kind}, row(i)...)
			if err := appender.AppendRow(vals...); err != nil {
				appender.Close()
				return fmt.Errorf("append %s row: %w", table, err)
			}
		}
		// Close flushes the remaining rows.
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush %s: %w", table, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}
