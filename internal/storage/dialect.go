package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ratingpart/internal/config"
)

// Dialect isolates the SQL that differs between supported stores.
type Dialect interface {
	// Name is the config.Database.Driver value selecting this dialect.
	Name() string
	// DriverName is the database/sql driver name.
	DriverName() string
	// DSN builds a connection string for database.
	DSN(cfg config.DatabaseConfig, database string) string
	QuoteIdentifier(name string) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// TxOptions returns the options used for every read-write transaction.
	TxOptions() *sql.TxOptions
	// TableExistsQuery takes one argument (the table name) and yields a count.
	TableExistsQuery() string
	// ListTablesQuery takes one LIKE pattern argument and yields table names.
	ListTablesQuery() string
	// LockClause is appended to a SELECT to lock the rows it reads.
	LockClause() string
	// CascadeClause is appended to DROP TABLE to drop dependent objects.
	CascadeClause() string
	// CopyFrom bulk inserts rows into table within tx and returns the row count.
	CopyFrom(ctx context.Context, tx *sql.Tx, table string, columns []string, src RowSource) (int64, error)
	// Bootstrap creates the configured database when absent.
	Bootstrap(ctx context.Context, cfg config.DatabaseConfig) (bool, error)
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return Postgres{}, nil
	case config.DriverSQLite:
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
}
