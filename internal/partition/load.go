package partition

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"ratingpart/internal/logger"
	"ratingpart/internal/metrics"
	"ratingpart/internal/models"
	"ratingpart/internal/storage"
)

// loadColumns mirrors the ratings file layout. The extra columns and the
// timestamp are dropped once the file is loaded.
var loadColumns = []string{"userid", "extra1", "movieid", "extra2", "rating", "extra3", "timestamp"}

var scaffoldColumns = []string{"extra1", "extra2", "extra3", "timestamp"}

// LoadRatings (re)creates table and bulk loads every line of the ratings file
// at path into it, leaving the columns (userid, movieid, rating). Any existing
// table with that name is replaced. It returns the number of rows loaded.
func (s *Store) LoadRatings(ctx context.Context, table, path string) (n int64, err error) {
	start := time.Now()
	defer func() { observe("load", start, err) }()

	if err := storage.ValidateIdentifier(table); err != nil {
		return 0, err
	}

	log := logger.WithRun("load", table).With().
		Str("path", path).
		Logger()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open ratings file: %w", err)
	}
	defer f.Close()

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.dropTable(ctx, tx, table); err != nil {
			return err
		}

		create := "CREATE TABLE " + s.q(table) + ` (
			userid INTEGER,
			extra1 CHAR,
			movieid INTEGER,
			extra2 CHAR,
			rating FLOAT,
			extra3 CHAR,
			timestamp BIGINT
		)`
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}

		var err error
		n, err = s.db.Dialect.CopyFrom(ctx, tx, table, loadColumns, newLineSource(f))
		if err != nil {
			return err
		}

		// One column per statement: sqlite accepts a single DROP COLUMN per ALTER.
		for _, col := range scaffoldColumns {
			query := "ALTER TABLE " + s.q(table) + " DROP COLUMN " + s.q(col)
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("drop column %s: %w", col, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to load ratings")
		return 0, fmt.Errorf("load ratings into %s: %w", table, err)
	}

	metrics.RowsLoadedTotal.Add(float64(n))
	log.Info().
		Int64("rows", n).
		Dur("duration", time.Since(start)).
		Msg("ratings loaded")

	return n, nil
}

// lineSource adapts a ratings file to storage.RowSource.
type lineSource struct {
	scanner *bufio.Scanner
	line    int
	values  []any
	err     error
}

func newLineSource(f *os.File) *lineSource {
	return &lineSource{scanner: bufio.NewScanner(f)}
}

func (l *lineSource) Next() bool {
	if l.err != nil {
		return false
	}

	for l.scanner.Scan() {
		l.line++
		text := l.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		rec, err := models.ParseLine(text)
		if err == nil {
			err = rec.ToRating().Validate()
		}
		if err != nil {
			l.err = &models.LineError{Line: l.line, Err: err}
			return false
		}

		l.values = []any{rec.UserID, rec.Extra1, rec.MovieID, rec.Extra2, rec.Rating, rec.Extra3, rec.Timestamp}
		return true
	}

	if err := l.scanner.Err(); err != nil {
		l.err = fmt.Errorf("read ratings file: %w", err)
	}
	return false
}

func (l *lineSource) Values() []any { return l.values }

func (l *lineSource) Err() error { return l.err }
