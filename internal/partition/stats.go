package partition

import (
	"context"
	"fmt"

	"ratingpart/internal/storage"
)

// Stats is a snapshot of a ratings table and its partitions.
type Stats struct {
	Table      string  `json:"table"`
	Rows       int64   `json:"rows"`
	Range      []int64 `json:"range"`
	RoundRobin []int64 `json:"roundrobin"`
	// Counter is nil when the counter table has not been created.
	Counter *int64 `json:"counter,omitempty"`
}

// Stats counts the rows of table and of every partition of both schemes.
func (s *Store) Stats(ctx context.Context, table string) (*Stats, error) {
	if err := storage.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := s.requireTable(ctx, s.db, table); err != nil {
		return nil, err
	}

	rows, err := s.countRows(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	st := &Stats{Table: table, Rows: rows}

	if st.Range, err = s.partitionSizes(ctx, s.names.RangePrefix); err != nil {
		return nil, err
	}
	if st.RoundRobin, err = s.partitionSizes(ctx, s.names.RoundRobinPrefix); err != nil {
		return nil, err
	}

	ok, err := s.db.TableExists(ctx, s.db, s.names.CounterTable)
	if err != nil {
		return nil, err
	}
	if ok {
		var c int64
		err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(counter), 0) FROM "+s.q(s.names.CounterTable)).Scan(&c)
		if err != nil {
			return nil, fmt.Errorf("read round-robin counter: %w", err)
		}
		st.Counter = &c
	}

	return st, nil
}

func (s *Store) partitionSizes(ctx context.Context, prefix string) ([]int64, error) {
	n, err := s.discover(ctx, s.db, prefix)
	if err != nil {
		return nil, err
	}
	sizes := make([]int64, n)
	for i := range sizes {
		if sizes[i], err = s.countRows(ctx, s.db, s.names.Table(prefix, i)); err != nil {
			return nil, err
		}
	}
	return sizes, nil
}
