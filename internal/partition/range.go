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

// RangePartition rebuilds n range partitions of table. Every existing range
// partition is dropped and each row of table is copied into the one bucket
// whose rating interval contains it. The whole redistribution runs in one
// transaction; on failure it is rolled back and the error returned.
func (s *Store) RangePartition(ctx context.Context, table string, n int) (err error) {
	start := time.Now()
	defer func() { observe("range_partition", start, err) }()

	if err := validatePartitionCount(n); err != nil {
		return err
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return err
	}

	log := logger.WithRun("range_partition", table).With().
		Str("scheme", string(models.SchemeRange)).
		Int("partitions", n).
		Logger()

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTable(ctx, tx, table); err != nil {
			return err
		}
		if err := s.dropPartitions(ctx, tx, s.names.RangePrefix); err != nil {
			return err
		}
		if err := s.createPartitions(ctx, tx, s.names.RangePrefix, n); err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			name := s.names.Table(s.names.RangePrefix, i)
			lo, hi := RangeBounds(i, n)

			lower := ">"
			if i == 0 {
				lower = ">="
			}
			query := fmt.Sprintf(
				"INSERT INTO %s (userid, movieid, rating) SELECT userid, movieid, rating FROM %s WHERE rating %s %s AND rating <= %s",
				s.q(name), s.q(table), lower, s.ph(1), s.ph(2))

			if _, err := tx.ExecContext(ctx, query, lo, hi); err != nil {
				return fmt.Errorf("populate %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("range partitioning rolled back")
		return fmt.Errorf("range partition %s: %w", table, err)
	}

	metrics.PartitionCount.WithLabelValues(string(models.SchemeRange)).Set(float64(n))
	log.Info().Dur("duration", time.Since(start)).Msg("range partitioning complete")
	return nil
}

// RangeInsert appends r to table and to the range partition covering its rating,
// as one transaction.
func (s *Store) RangeInsert(ctx context.Context, table string, r models.Rating) (res InsertResult, err error) {
	start := time.Now()
	defer func() { observe("range_insert", start, err) }()
	log := logger.WithComponent("partition")

	if err := r.Validate(); err != nil {
		return InsertResult{}, err
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return InsertResult{}, err
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		n, err := s.discover(ctx, tx, s.names.RangePrefix)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s*", ErrNoPartitions, s.names.RangePrefix)
		}
		if err := s.requireTable(ctx, tx, table); err != nil {
			return err
		}

		idx := RangeIndex(r.Rating, n)
		res = InsertResult{
			Scheme:    models.SchemeRange,
			Table:     s.names.Table(s.names.RangePrefix, idx),
			Partition: idx,
			Position:  -1,
		}

		if err := s.insertRow(ctx, tx, table, r.UserID, r.MovieID, r.Rating); err != nil {
			return err
		}
		return s.insertRow(ctx, tx, res.Table, r.UserID, r.MovieID, r.Rating)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("table", table).
			Float64("rating", r.Rating).
			Msg("range insert rolled back")
		return InsertResult{}, fmt.Errorf("range insert into %s: %w", table, err)
	}

	metrics.PartitionInsertsTotal.WithLabelValues(string(models.SchemeRange), strconv.Itoa(res.Partition)).Inc()
	log.Debug().
		Str("table", table).
		Str("partition", res.Table).
		Float64("rating", r.Rating).
		Msg("range insert committed")

	return res, nil
}
