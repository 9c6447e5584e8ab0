package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ratingpart/internal/config"
)

// SQLite is the embedded dialect backed by modernc.org/sqlite.
//
// Transactions are opened with BEGIN IMMEDIATE, which takes the database
// write lock up front. That lock plays the role PostgreSQL's row lock plays
// for the round-robin counter, so LockClause is empty.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string       { return config.DriverSQLite }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) DSN(cfg config.DatabaseConfig, _ string) string {
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	q.Add("_txlock", "immediate")

	return "file:" + cfg.Path + "?" + q.Encode()
}

func (SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }

// TxOptions returns nil: sqlite transactions are always serializable.
func (SQLite) TxOptions() *sql.TxOptions { return nil }

func (SQLite) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

func (SQLite) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ?`
}

func (SQLite) LockClause() string { return "" }

func (SQLite) CascadeClause() string { return "" }

func (d SQLite) CopyFrom(ctx context.Context, tx *sql.Tx, table string, columns []string, src RowSource) (int64, error) {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
		marks[i] = "?"
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("storage: prepare copy into %s: %w", table, err)
	}
	defer stmt.Close()

	var n int64
	for src.Next() {
		if _, err := stmt.ExecContext(ctx, src.Values()...); err != nil {
			return n, fmt.Errorf("storage: copy row into %s: %w", table, err)
		}
		n++
	}
	if err := src.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// Bootstrap creates the database file when it is missing.
func (d SQLite) Bootstrap(ctx context.Context, cfg config.DatabaseConfig) (bool, error) {
	if cfg.Path == "" || cfg.Path == ":memory:" {
		return false, nil
	}

	_, err := os.Stat(cfg.Path)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("storage: stat %s: %w", cfg.Path, err)
	}

	db, err := sql.Open(d.DriverName(), d.DSN(cfg, cfg.Name))
	if err != nil {
		return false, fmt.Errorf("storage: open %s: %w", cfg.Path, err)
	}
	defer db.Close()

	// Switching the journal mode writes the database header, creating the file.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return false, fmt.Errorf("storage: create %s: %w", cfg.Path, err)
	}
	return true, nil
}
