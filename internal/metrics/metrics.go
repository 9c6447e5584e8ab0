package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Partitioning operation metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratingpart_operations_total",
			Help: "Total number of partitioning operations",
		},
		[]string{"operation", "status"}, // status: success, failed
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratingpart_operation_duration_seconds",
			Help:    "Partitioning operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	RowsLoadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratingpart_rows_loaded_total",
			Help: "Total number of rows bulk loaded into ratings tables",
		},
	)

	PartitionInsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratingpart_partition_inserts_total",
			Help: "Total number of single-row inserts routed to a partition",
		},
		[]string{"scheme", "partition"},
	)

	PartitionCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratingpart_partition_count",
			Help: "Number of partitions created by the last full partitioning",
		},
		[]string{"scheme"},
	)

	RoundRobinCounter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratingpart_round_robin_counter",
			Help: "Last observed value of the persisted round-robin counter",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratingpart_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratingpart_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratingpart_worker_queue_size",
			Help: "Current size of the worker queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratingpart_worker_processed_total",
			Help: "Total number of envelopes inserted by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratingpart_worker_failed_total",
			Help: "Total number of envelopes workers failed to insert",
		},
	)

	WorkerBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratingpart_worker_batch_duration_seconds",
			Help:    "Time taken to apply a batch of inserts",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka metrics
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratingpart_kafka_messages_total",
			Help: "Total number of Kafka messages handled",
		},
		[]string{"direction", "status"}, // direction: consumed, published
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratingpart_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratingpart_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

// Status returns the status label for an operation result.
func Status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
