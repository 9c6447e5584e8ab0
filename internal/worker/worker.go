package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ratingpart/internal/logger"
	"ratingpart/internal/metrics"
	"ratingpart/internal/models"
	"ratingpart/internal/partition"
)

// Inserter applies a single rating under a partitioning scheme
type Inserter interface {
	Insert(ctx context.Context, scheme models.Scheme, table string, r models.Rating) (partition.InsertResult, error)
}

// Pool manages a pool of workers that consume envelopes and insert them.
// A dispatcher fans envelopes out to one lane per worker: every round-robin
// envelope goes to lane 0, so round-robin positions follow consume order;
// range envelopes are spread by user id.
type Pool struct {
	inserter      Inserter
	table         string
	envelopeChan  <-chan *models.Envelope
	workers       int
	batchSize     int
	batchTimeout  time.Duration
	insertTimeout time.Duration
	lanes         []chan *models.Envelope

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Inserter      Inserter
	Table         string
	EnvelopeChan  <-chan *models.Envelope
	Workers       int
	BatchSize     int
	BatchTimeout  time.Duration
	InsertTimeout time.Duration // bounds each insert transaction
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		inserter:      cfg.Inserter,
		table:         cfg.Table,
		envelopeChan:  cfg.EnvelopeChan,
		workers:       cfg.Workers,
		batchSize:     cfg.BatchSize,
		batchTimeout:  cfg.BatchTimeout,
		insertTimeout: cfg.InsertTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins processing envelopes
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	p.lanes = make([]chan *models.Envelope, p.workers)
	for i := range p.lanes {
		p.lanes[i] = make(chan *models.Envelope, p.batchSize)
		p.wg.Add(1)
		go p.worker(i, p.lanes[i])
	}

	p.wg.Add(1)
	go p.dispatch()
}

// Stop stops the dispatcher; workers apply what was already dispatched and exit
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// Wait blocks until every worker has exited, e.g. after the envelope channel is closed
func (p *Pool) Wait() {
	p.wg.Wait()
}

// dispatch routes envelopes to worker lanes until the pool is stopped or the
// envelope channel is closed.
func (p *Pool) dispatch() {
	defer p.wg.Done()
	defer func() {
		for _, lane := range p.lanes {
			close(lane)
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case envelope, ok := <-p.envelopeChan:
			if !ok {
				return
			}
			lane := p.lanes[p.laneFor(envelope)]
			select {
			case lane <- envelope:
				continue
			default:
			}
			// Lane full, wait for room unless stopping
			select {
			case lane <- envelope:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// laneFor keeps all round-robin envelopes on one lane.
func (p *Pool) laneFor(envelope *models.Envelope) int {
	if envelope.Scheme == models.SchemeRoundRobin {
		return 0
	}
	return int(uint64(envelope.Rating.UserID) % uint64(len(p.lanes)))
}

// worker applies envelopes from its lane in batches
func (p *Pool) worker(id int, lane <-chan *models.Envelope) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Envelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case envelope, ok := <-lane:
			if !ok {
				// Lane closed, flush and exit
				if len(batch) > 0 {
					p.applyBatch(batch)
				}
				return
			}

			batch = append(batch, envelope)

			if len(batch) >= p.batchSize {
				p.applyBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.applyBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// applyBatch inserts a batch of envelopes in arrival order. Each insert is its
// own transaction, so one failure does not affect the rest of the batch.
func (p *Pool) applyBatch(batch []*models.Envelope) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("worker")
	start := time.Now()
	var failed int

	for _, envelope := range batch {
		// Detached from p.ctx so a shutdown still flushes the batch.
		ctx, cancel := context.WithTimeout(context.Background(), p.insertTimeout)
		res, err := p.inserter.Insert(ctx, envelope.Scheme, p.table, envelope.Rating)
		cancel()

		if err != nil {
			failed++
			log.Error().
				Err(err).
				Str("envelope_id", envelope.ID).
				Str("scheme", string(envelope.Scheme)).
				Str("source", envelope.Source).
				Msg("failed to insert rating")
			continue
		}

		log.Debug().
			Str("envelope_id", envelope.ID).
			Str("partition", res.Table).
			Msg("rating inserted")
	}

	duration := time.Since(start)
	metrics.WorkerBatchDuration.Observe(duration.Seconds())

	ok := len(batch) - failed
	p.processed.Add(uint64(ok))
	p.failed.Add(uint64(failed))
	metrics.WorkerProcessedTotal.Add(float64(ok))
	metrics.WorkerFailedTotal.Add(float64(failed))

	log.Info().
		Int("batch_size", len(batch)).
		Int("failed", failed).
		Dur("duration", duration).
		Msg("batch applied")
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64
	Failed    uint64
}
