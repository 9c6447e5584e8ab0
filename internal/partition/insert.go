package partition

import (
	"context"

	"ratingpart/internal/models"
)

// InsertResult describes where an inserted rating landed.
type InsertResult struct {
	Scheme    models.Scheme `json:"scheme"`
	Table     string        `json:"table"`
	Partition int           `json:"partition"`
	// Position is the round-robin position assigned to the row; it is -1 for
	// range inserts.
	Position int64 `json:"position"`
}

// Insert routes r to RangeInsert or RoundRobinInsert.
func (s *Store) Insert(ctx context.Context, scheme models.Scheme, table string, r models.Rating) (InsertResult, error) {
	switch scheme {
	case models.SchemeRange:
		return s.RangeInsert(ctx, table, r)
	case models.SchemeRoundRobin:
		return s.RoundRobinInsert(ctx, table, r)
	default:
		return InsertResult{}, models.ErrInvalidScheme
	}
}
