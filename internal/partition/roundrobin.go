package partition

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"ratingpart/internal/logger"
	"ratingpart/internal/metrics"
	"ratingpart/internal/models"
	"ratingpart/internal/storage"
)

// rankStageTable holds each raw row's zero-based storage rank during a
// round-robin partitioning pass, so every partition filters the same ranking.
const rankStageTable = "rr_rank_stage"

// RoundRobinPartition rebuilds n round-robin partitions of table. The row at
// zero-based rank k, in the order the store scans table, goes to partition
// k mod n. The counter table is then reset to the row count, so the next
// RoundRobinInsert continues the sequence. The whole pass runs in one
// transaction; on failure it is rolled back and the error returned.
func (s *Store) RoundRobinPartition(ctx context.Context, table string, n int) (err error) {
	start := time.Now()
	defer func() { observe("roundrobin_partition", start, err) }()

	if err := validatePartitionCount(n); err != nil {
		return err
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return err
	}

	log := logger.WithRun("roundrobin_partition", table).With().
		Str("scheme", string(models.SchemeRoundRobin)).
		Int("partitions", n).
		Logger()

	var total int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTable(ctx, tx, table); err != nil {
			return err
		}
		if err := s.dropPartitions(ctx, tx, s.names.RoundRobinPrefix); err != nil {
			return err
		}
		if err := s.createPartitions(ctx, tx, s.names.RoundRobinPrefix, n); err != nil {
			return err
		}

		stage := fmt.Sprintf(
			"CREATE TEMPORARY TABLE %s AS SELECT userid, movieid, rating, ROW_NUMBER() OVER () - 1 AS rnk FROM %s",
			s.q(rankStageTable), s.q(table))
		if _, err := tx.ExecContext(ctx, stage); err != nil {
			return fmt.Errorf("rank rows of %s: %w", table, err)
		}

		for i := 0; i < n; i++ {
			name := s.names.Table(s.names.RoundRobinPrefix, i)
			query := fmt.Sprintf(
				"INSERT INTO %s (userid, movieid, rating) SELECT userid, movieid, rating FROM %s WHERE rnk %% %s = %s",
				s.q(name), s.q(rankStageTable), s.ph(1), s.ph(2))
			if _, err := tx.ExecContext(ctx, query, int64(n), int64(i)); err != nil {
				return fmt.Errorf("populate %s: %w", name, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DROP TABLE "+s.q(rankStageTable)); err != nil {
			return fmt.Errorf("drop rank stage: %w", err)
		}

		var err error
		total, err = s.countRows(ctx, tx, table)
		if err != nil {
			return err
		}
		return s.resetCounter(ctx, tx, total)
	})
	if err != nil {
		log.Error().Err(err).Msg("round-robin partitioning rolled back")
		return fmt.Errorf("round-robin partition %s: %w", table, err)
	}

	metrics.PartitionCount.WithLabelValues(string(models.SchemeRoundRobin)).Set(float64(n))
	metrics.RoundRobinCounter.Set(float64(total))
	log.Info().
		Int64("rows", total).
		Dur("duration", time.Since(start)).
		Msg("round-robin partitioning complete")
	return nil
}

// RoundRobinInsert appends r to table and to the next round-robin partition.
// The counter row is read under a row lock, so concurrent callers serialize
// on it; the raw insert, partition insert and counter increment commit together.
func (s *Store) RoundRobinInsert(ctx context.Context, table string, r models.Rating) (res InsertResult, err error) {
	start := time.Now()
	defer func() { observe("roundrobin_insert", start, err) }()
	log := logger.WithComponent("partition")

	if err := r.Validate(); err != nil {
		return InsertResult{}, err
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return InsertResult{}, err
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTable(ctx, tx, table); err != nil {
			return err
		}
		if err := s.ensureCounter(ctx, tx); err != nil {
			return err
		}

		n, err := s.discover(ctx, tx, s.names.RoundRobinPrefix)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s*", ErrNoPartitions, s.names.RoundRobinPrefix)
		}

		if err := s.insertRow(ctx, tx, table, r.UserID, r.MovieID, r.Rating); err != nil {
			return err
		}

		counter := s.q(s.names.CounterTable)
		var pos int64
		if err := tx.QueryRowContext(ctx,
			"SELECT counter FROM "+counter+" WHERE id = 1"+s.db.Dialect.LockClause()).Scan(&pos); err != nil {
			return fmt.Errorf("read round-robin counter: %w", err)
		}

		idx := RoundRobinIndex(pos, n)
		res = InsertResult{
			Scheme:    models.SchemeRoundRobin,
			Table:     s.names.Table(s.names.RoundRobinPrefix, idx),
			Partition: idx,
			Position:  pos,
		}

		if err := s.insertRow(ctx, tx, res.Table, r.UserID, r.MovieID, r.Rating); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "UPDATE "+counter+" SET counter = counter + 1 WHERE id = 1"); err != nil {
			return fmt.Errorf("advance round-robin counter: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("table", table).
			Msg("round-robin insert rolled back")
		return InsertResult{}, fmt.Errorf("round-robin insert into %s: %w", table, err)
	}

	metrics.PartitionInsertsTotal.WithLabelValues(string(models.SchemeRoundRobin), strconv.Itoa(res.Partition)).Inc()
	metrics.RoundRobinCounter.Set(float64(res.Position + 1))
	log.Debug().
		Str("table", table).
		Str("partition", res.Table).
		Int64("position", res.Position).
		Msg("round-robin insert committed")

	return res, nil
}

func (s *Store) createCounter(ctx context.Context, tx *sql.Tx) error {
	query := "CREATE TABLE IF NOT EXISTS " + s.q(s.names.CounterTable) +
		" (id INTEGER PRIMARY KEY CHECK (id = 1), counter BIGINT NOT NULL DEFAULT 0)"
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create counter table: %w", err)
	}
	return nil
}

// ensureCounter creates the counter table and its single row when missing.
// The constant key makes concurrent first inserts collapse into one row.
func (s *Store) ensureCounter(ctx context.Context, tx *sql.Tx) error {
	if err := s.createCounter(ctx, tx); err != nil {
		return err
	}
	query := "INSERT INTO " + s.q(s.names.CounterTable) + " (id, counter) VALUES (1, 0) ON CONFLICT (id) DO NOTHING"
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initialize counter: %w", err)
	}
	return nil
}

// resetCounter recreates the counter table holding value.
func (s *Store) resetCounter(ctx context.Context, tx *sql.Tx, value int64) error {
	if err := s.dropTable(ctx, tx, s.names.CounterTable); err != nil {
		return err
	}
	if err := s.createCounter(ctx, tx); err != nil {
		return err
	}
	query := "INSERT INTO " + s.q(s.names.CounterTable) + " (id, counter) VALUES (1, " + s.ph(1) + ")"
	if _, err := tx.ExecContext(ctx, query, value); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}
