package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"ratingpart/internal/config"
	"ratingpart/internal/logger"
)

// ErrInvalidIdentifier is returned for table or database names that cannot be
// safely interpolated into SQL text.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks that name is a lower-case SQL identifier.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// Querier is the subset of *sql.DB and *sql.Tx used by catalog helpers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RowSource streams rows into a bulk copy.
type RowSource interface {
	Next() bool
	Values() []any
	Err() error
}

// DB is a connection pool bound to the dialect of the store it talks to.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	d, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(d.DriverName(), d.DSN(cfg, cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open %s database: %w", d.Name(), err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("storage: failed to connect to %s database: %w", d.Name(), err)
	}

	log := logger.WithComponent("storage")
	log.Debug().
		Str("driver", d.Name()).
		Str("database", cfg.Name).
		Msg("database connection opened")

	return &DB{DB: sqlDB, Dialect: d}, nil
}

// New wraps an existing *sql.DB.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{DB: db, Dialect: d}
}

// InTx runs fn inside a transaction opened with the dialect's isolation level.
// The transaction commits when fn returns nil and rolls back otherwise,
// including when fn panics.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, db.Dialect.TxOptions())
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log := logger.WithComponent("storage")
				log.Error().
					Err(rbErr).
					Msg("rollback failed")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// TableExists reports whether a table with the given name is in the catalog.
func (db *DB) TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, db.Dialect.TableExistsQuery(), name).Scan(&n); err != nil {
		return false, fmt.Errorf("storage: catalog lookup for %s: %w", name, err)
	}
	return n > 0, nil
}

// ListTables returns the sorted names of tables starting with prefix.
func (db *DB) ListTables(ctx context.Context, q Querier, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx, db.Dialect.ListTablesQuery(), prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("storage: list tables %s*: %w", prefix, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("storage: scan table name: %w", err)
		}
		// LIKE treats '_' as a wildcard and is case-insensitive on sqlite.
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list tables %s*: %w", prefix, err)
	}

	sort.Strings(names)
	return names, nil
}

// Bootstrap creates the configured database if it does not exist yet.
// It reports whether the database was created.
func Bootstrap(ctx context.Context, cfg config.DatabaseConfig) (bool, error) {
	d, err := DialectFor(cfg.Driver)
	if err != nil {
		return false, err
	}

	log := logger.WithComponent("bootstrap")
	created, err := d.Bootstrap(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("database", cfg.Name).Msg("failed to create database")
		return false, err
	}

	if created {
		log.Info().Str("database", cfg.Name).Msg("database created")
	} else {
		log.Info().Str("database", cfg.Name).Msg("database already exists")
	}
	return created, nil
}
