package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ratingpart/internal/models"
	"ratingpart/internal/partition"
)

// mockInserter records inserted ratings and fails on negative user ids
type mockInserter struct {
	mu       sync.Mutex
	inserted []models.Rating
	schemes  []models.Scheme
}

func (m *mockInserter) Insert(ctx context.Context, scheme models.Scheme, table string, r models.Rating) (partition.InsertResult, error) {
	if r.UserID < 0 {
		return partition.InsertResult{}, errors.New("constraint violation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, r)
	m.schemes = append(m.schemes, scheme)
	return partition.InsertResult{Scheme: scheme, Table: table + "_part0"}, nil
}

func (m *mockInserter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

func TestWorkerPool_ProcessEnvelopes(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockInserter{}

	pool := NewPool(Config{
		Inserter:     mock,
		Table:        "ratings",
		EnvelopeChan: ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 20 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 25; i++ {
		ch <- models.NewEnvelope(models.Rating{UserID: int64(i), MovieID: 1, Rating: 3}, models.SchemeRange, "test")
	}

	require.Eventually(t, func() bool { return pool.Stats().Processed == 25 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 25, mock.count())
	require.Zero(t, pool.Stats().Failed)
}

func TestWorkerPool_CountsFailures(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &mockInserter{}

	pool := NewPool(Config{
		Inserter:     mock,
		Table:        "ratings",
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    5,
	})
	pool.Start()

	ch <- models.NewEnvelope(models.Rating{UserID: 1, Rating: 1}, models.SchemeRoundRobin, "test")
	ch <- models.NewEnvelope(models.Rating{UserID: -1, Rating: 1}, models.SchemeRoundRobin, "test")
	ch <- models.NewEnvelope(models.Rating{UserID: 2, Rating: 1}, models.SchemeRoundRobin, "test")
	close(ch)
	pool.Wait()

	stats := pool.Stats()
	require.Equal(t, uint64(2), stats.Processed)
	require.Equal(t, uint64(1), stats.Failed)
	require.Equal(t, []models.Scheme{models.SchemeRoundRobin, models.SchemeRoundRobin}, mock.schemes)
}

func TestWorkerPool_FlushesOnStop(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &mockInserter{}

	pool := NewPool(Config{
		Inserter:     mock,
		Table:        "ratings",
		EnvelopeChan: ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	for i := 0; i < 3; i++ {
		ch <- models.NewEnvelope(models.Rating{UserID: int64(i), Rating: 2}, models.SchemeRange, "test")
	}
	require.Eventually(t, func() bool { return len(ch) == 0 }, time.Second, 5*time.Millisecond)

	pool.Stop()
	require.Equal(t, 3, mock.count())
}

func TestWorkerPool_RoundRobinKeepsConsumeOrder(t *testing.T) {
	ch := make(chan *models.Envelope, 200)
	mock := &mockInserter{}

	pool := NewPool(Config{
		Inserter:     mock,
		Table:        "ratings",
		EnvelopeChan: ch,
		Workers:      4,
		BatchSize:    3,
		BatchTimeout: 5 * time.Millisecond,
	})
	pool.Start()

	// Interleave range traffic so every lane is busy.
	for i := 0; i < 100; i++ {
		ch <- models.NewEnvelope(models.Rating{UserID: int64(i), MovieID: 1, Rating: 1}, models.SchemeRoundRobin, "test")
		ch <- models.NewEnvelope(models.Rating{UserID: int64(i), MovieID: 2, Rating: 4}, models.SchemeRange, "test")
	}
	close(ch)
	pool.Wait()

	mock.mu.Lock()
	defer mock.mu.Unlock()

	var order []int64
	for i, r := range mock.inserted {
		if mock.schemes[i] == models.SchemeRoundRobin {
			order = append(order, r.UserID)
		}
	}
	require.Len(t, order, 100)
	for i, id := range order {
		require.Equal(t, int64(i), id)
	}
	require.Equal(t, uint64(200), pool.Stats().Processed)
}
