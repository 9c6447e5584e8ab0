package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"ratingpart/internal/config"
)

// Postgres is the PostgreSQL dialect backed by lib/pq.
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Name() string       { return config.DriverPostgres }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) DSN(cfg config.DatabaseConfig, database string) string {
	parts := []string{
		"host=" + quoteDSNValue(cfg.Host),
		"dbname=" + quoteDSNValue(database),
		"user=" + quoteDSNValue(cfg.User),
	}
	if cfg.Port != 0 {
		parts = append(parts, "port="+strconv.Itoa(cfg.Port))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(cfg.Password))
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSNValue(cfg.SSLMode))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes a key/value connection string value.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (Postgres) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

func (Postgres) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1`
}

func (Postgres) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name LIKE $1`
}

func (Postgres) LockClause() string { return " FOR UPDATE" }

func (Postgres) CascadeClause() string { return " CASCADE" }

// CopyFrom streams rows through COPY FROM STDIN.
func (Postgres) CopyFrom(ctx context.Context, tx *sql.Tx, table string, columns []string, src RowSource) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
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

	// An Exec without arguments flushes the buffered COPY data.
	if _, err := stmt.ExecContext(ctx); err != nil {
		return n, fmt.Errorf("storage: flush copy into %s: %w", table, err)
	}
	return n, nil
}

// Bootstrap connects to the admin database outside any transaction block,
// since CREATE DATABASE cannot run inside one.
func (d Postgres) Bootstrap(ctx context.Context, cfg config.DatabaseConfig) (bool, error) {
	if err := ValidateIdentifier(cfg.Name); err != nil {
		return false, err
	}

	admin := cfg.AdminDatabase
	if admin == "" {
		admin = "postgres"
	}

	db, err := sql.Open(d.DriverName(), d.DSN(cfg, admin))
	if err != nil {
		return false, fmt.Errorf("storage: open admin database %s: %w", admin, err)
	}
	defer db.Close()

	return ensureDatabase(ctx, db, cfg.Name)
}

// ensureDatabase runs in autocommit mode: every statement on a *sql.DB outside
// a transaction commits on its own.
func ensureDatabase(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM pg_catalog.pg_database WHERE datname = $1", name).Scan(&one)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("storage: check database %s: %w", name, err)
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		return false, fmt.Errorf("storage: create database %s: %w", name, err)
	}
	return true, nil
}
