package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"ratingpart/internal/config"
	"ratingpart/internal/handlers"
	"ratingpart/internal/kafka"
	"ratingpart/internal/logger"
	"ratingpart/internal/metrics"
	"ratingpart/internal/middleware"
	"ratingpart/internal/models"
	"ratingpart/internal/partition"
	"ratingpart/internal/storage"
	"ratingpart/internal/worker"
)

// Processor serves the ratings HTTP API and, when enabled, applies ratings
// streamed from Kafka through the worker pool.
type Processor struct {
	cfg          *config.Config
	db           *storage.DB
	store        *partition.Store
	consumer     *kafka.Consumer
	workerPool   *worker.Pool
	httpServer   *http.Server
	envelopeChan chan *models.Envelope

	listener net.Listener
	ready    chan struct{}
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	queueSize := cfg.Worker.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Processor{
		cfg:          cfg,
		envelopeChan: make(chan *models.Envelope, queueSize),
		ready:        make(chan struct{}),
	}
}

// Ready is closed once the HTTP listener is bound.
func (p *Processor) Ready() <-chan struct{} { return p.ready }

// Addr returns the bound HTTP address. Valid after Ready is closed.
func (p *Processor) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Run opens the store, starts the HTTP server and optional Kafka pipeline,
// and blocks until ctx is cancelled or a component fails.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("driver", p.cfg.Database.Driver).Msg("processor starting")

	db, err := storage.Open(ctx, p.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	p.db = db
	defer db.Close()

	store, err := partition.NewStore(db, partition.NamesFromConfig(p.cfg.Partitioning))
	if err != nil {
		return fmt.Errorf("failed to create partition store: %w", err)
	}
	p.store = store

	if p.cfg.Kafka.Enabled {
		if err := p.initConsumer(); err != nil {
			log.Error().Err(err).Msg("failed to initialize consumer")
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
		p.initWorkerPool()
	}

	listener, err := net.Listen("tcp", p.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.cfg.Server.Addr, err)
	}
	p.listener = listener
	p.httpServer = &http.Server{
		Handler:      p.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	close(p.ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", p.Addr()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if p.consumer != nil {
		p.workerPool.Start()
		g.Go(func() error {
			return p.consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		p.reportStats(gctx)
		return nil
	})

	// Wait for shutdown signal or a failed component
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")
		return p.shutdown()
	})

	return g.Wait()
}

// Handler returns the HTTP routes served by the processor.
func (p *Processor) Handler() http.Handler {
	mux := http.NewServeMux()

	ratingsHandler := handlers.NewRatingsHandler(handlers.RatingsConfig{
		Inserter:    p.store,
		Table:       p.cfg.Partitioning.RatingsTable,
		MaxBodySize: p.cfg.Server.MaxBodySize,
	})
	mux.Handle("/ratings", middleware.Chain(
		ratingsHandler,
		middleware.Recovery,
		middleware.Logging,
	))

	mux.Handle("/partitions", middleware.Chain(
		handlers.PartitionsHandler(p.store, p.cfg.Partitioning.RatingsTable),
		middleware.Recovery,
		middleware.Logging,
	))

	// Health check
	mux.HandleFunc("/health", p.healthHandler)

	// Prometheus metrics endpoint
	if p.cfg.Server.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// initConsumer initializes the Kafka consumer
func (p *Processor) initConsumer() error {
	log := logger.WithComponent("processor")
	consumer, err := kafka.NewConsumer(p.cfg.Kafka, p.envelopeChan)
	if err != nil {
		return err
	}

	p.consumer = consumer
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.Topic).
		Str("group_id", p.cfg.Kafka.GroupID).
		Msg("kafka consumer initialized")
	return nil
}

// initWorkerPool initializes the worker pool
func (p *Processor) initWorkerPool() {
	log := logger.WithComponent("processor")
	p.workerPool = worker.NewPool(worker.Config{
		Inserter:     p.store,
		Table:        p.cfg.Partitioning.RatingsTable,
		EnvelopeChan: p.envelopeChan,
		Workers:      p.cfg.Worker.Workers,
		BatchSize:    p.cfg.Worker.BatchSize,
		BatchTimeout: p.cfg.Worker.BatchTimeout,
	})
	log.Info().Int("workers", p.cfg.Worker.Workers).Msg("worker pool initialized")
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if p.consumer == nil {
		log.Info().Msg("processor stopped gracefully")
		return nil
	}

	// 2. Stop fetching new messages
	log.Info().Msg("closing kafka consumer")
	if err := p.consumer.Close(); err != nil {
		log.Error().Err(err).Msg("consumer close error")
	}

	// 3. Wait for workers to drain (with timeout)
	done := make(chan struct{})
	go func() {
		p.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.WorkerQueueSize.Set(float64(len(p.envelopeChan)))

			event := log.Info().Int("queue_size", len(p.envelopeChan))
			if p.consumer != nil {
				workerStats := p.workerPool.Stats()
				consumerStats := p.consumer.Stats()
				event = event.
					Uint64("worker_processed", workerStats.Processed).
					Uint64("worker_failed", workerStats.Failed).
					Uint64("consumer_consumed", consumerStats.Consumed).
					Uint64("consumer_rejected", consumerStats.Rejected)
			}
			event.Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := p.db.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"driver":    p.db.Dialect.Name(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
