package partition

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ratingpart/internal/config"
	"ratingpart/internal/metrics"
	"ratingpart/internal/storage"
)

// Names is the naming convention for partition and counter tables.
type Names struct {
	RangePrefix      string
	RoundRobinPrefix string
	CounterTable     string
}

// DefaultNames returns the conventional table names.
func DefaultNames() Names {
	return Names{
		RangePrefix:      "range_part",
		RoundRobinPrefix: "rrobin_part",
		CounterTable:     "round_robin_counter",
	}
}

// NamesFromConfig returns the naming convention configured for cfg.
func NamesFromConfig(cfg config.PartitioningConfig) Names {
	return Names{
		RangePrefix:      cfg.RangePrefix,
		RoundRobinPrefix: cfg.RoundRobinPrefix,
		CounterTable:     cfg.CounterTable,
	}
}

// Table returns the name of partition i for prefix.
func (Names) Table(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}

// Store runs partitioning operations against a database.
type Store struct {
	db    *storage.DB
	names Names
}

// NewStore creates a Store.
func NewStore(db *storage.DB, names Names) (*Store, error) {
	for _, name := range []string{names.RangePrefix, names.RoundRobinPrefix, names.CounterTable} {
		if err := storage.ValidateIdentifier(name); err != nil {
			return nil, err
		}
	}
	return &Store{db: db, names: names}, nil
}

// Names returns the naming convention used by the store.
func (s *Store) Names() Names { return s.names }

// PartitionCount discovers the number of partitions named <prefix><index>.
func (s *Store) PartitionCount(ctx context.Context, prefix string) (int, error) {
	return s.discover(ctx, s.db, prefix)
}

func (s *Store) q(name string) string { return s.db.Dialect.QuoteIdentifier(name) }

func (s *Store) ph(n int) string { return s.db.Dialect.Placeholder(n) }

// partitionIndices returns the sorted indices of tables named <prefix><digits>.
func (s *Store) partitionIndices(ctx context.Context, q storage.Querier, prefix string) ([]int, error) {
	names, err := s.db.ListTables(ctx, q, prefix)
	if err != nil {
		return nil, err
	}

	var indices []int
	for _, name := range names {
		suffix := strings.TrimPrefix(name, prefix)
		if !isIndex(suffix) {
			continue
		}
		idx, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// discover returns the live partition count, failing when indices have gaps.
func (s *Store) discover(ctx context.Context, q storage.Querier, prefix string) (int, error) {
	indices, err := s.partitionIndices(ctx, q, prefix)
	if err != nil {
		return 0, err
	}
	for i, idx := range indices {
		if idx != i {
			return 0, fmt.Errorf("%w: %s%d missing", ErrPartitionGap, prefix, i)
		}
	}
	return len(indices), nil
}

// isIndex reports whether s is a canonical non-negative decimal integer.
func isIndex(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// dropPartitions drops every partition table carrying prefix, whatever the
// count it was created with.
func (s *Store) dropPartitions(ctx context.Context, tx *sql.Tx, prefix string) error {
	indices, err := s.partitionIndices(ctx, tx, prefix)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		if err := s.dropTable(ctx, tx, s.names.Table(prefix, idx)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) dropTable(ctx context.Context, q storage.Querier, name string) error {
	query := "DROP TABLE IF EXISTS " + s.q(name) + s.db.Dialect.CascadeClause()
	if _, err := q.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}

// createPartitions creates n empty partition tables for prefix.
func (s *Store) createPartitions(ctx context.Context, tx *sql.Tx, prefix string, n int) error {
	for i := 0; i < n; i++ {
		name := s.names.Table(prefix, i)
		query := "CREATE TABLE " + s.q(name) + " (userid INTEGER, movieid INTEGER, rating FLOAT)"
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}

// requireTable fails with ErrTableNotFound when table is absent.
func (s *Store) requireTable(ctx context.Context, q storage.Querier, table string) error {
	ok, err := s.db.TableExists(ctx, q, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

// insertRow appends one rating row to table using bound parameters.
func (s *Store) insertRow(ctx context.Context, q storage.Querier, table string, userID, movieID int64, rating float64) error {
	query := fmt.Sprintf("INSERT INTO %s (userid, movieid, rating) VALUES (%s, %s, %s)",
		s.q(table), s.ph(1), s.ph(2), s.ph(3))
	if _, err := q.ExecContext(ctx, query, userID, movieID, rating); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (s *Store) countRows(ctx context.Context, q storage.Querier, table string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.q(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return n, nil
}

func validatePartitionCount(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPartitionCount, n)
	}
	return nil
}

// observe records the outcome of an operation.
func observe(op string, start time.Time, err error) {
	metrics.OperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
