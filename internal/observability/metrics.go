package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody ledger.
type Metrics struct {
	// --- Core ledger ---
	RequestsCreated     *prometheus.CounterVec
	RequestsRejected    *prometheus.CounterVec
	RequestsSettled     *prometheus.CounterVec
	BatchSize           prometheus.Histogram
	BatchItemsFailed    prometheus.Counter
	EpochsClosed        prometheus.Counter
	CurrentEpoch        prometheus.Gauge
	UsersRegistered     prometheus.Counter
	WithdrawalsExecuted prometheus.Counter
	TreasuryBalance     prometheus.Gauge
	CoreSequence        prometheus.Gauge

	// --- Event pipeline ---
	EventsEmitted *prometheus.CounterVec
	PublishDrops  prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Indexer ---
	IndexerTasks       *prometheus.CounterVec
	IndexerRetries     prometheus.Counter
	IndexerDeadLetters prometheus.Counter
	IndexerQueueDepth  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_requests_created_total",
			Help: "Requests admitted by the validation engine",
		}, []string{"request_type"}),

		RequestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_requests_rejected_total",
			Help: "Requests rejected at validation",
		}, []string{"request_type", "outcome"}),

		RequestsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_requests_settled_total",
			Help: "Requests settled (single and batch)",
		}, []string{"request_type"}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_batch_size",
			Help:    "Request ids per batch settlement",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		BatchItemsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_batch_items_failed_total",
			Help: "Batch items rejected per-item",
		}),

		EpochsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_epochs_closed_total",
			Help: "Settlement epochs completed",
		}),

		CurrentEpoch: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_current_epoch",
			Help: "Id of the active epoch",
		}),

		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_users_registered_total",
			Help: "Users auto-registered on first deposit",
		}),

		WithdrawalsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_withdrawals_executed_total",
			Help: "Settled withdrawals paid out",
		}),

		TreasuryBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_treasury_balance",
			Help: "Custodial pool balance (smallest unit)",
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_core_sequence",
			Help: "Next event sequence number",
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_events_emitted_total",
			Help: "Events emitted by the engine",
		}, []string{"event_type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		IndexerTasks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_indexer_tasks_total",
			Help: "Indexer task outcomes",
		}, []string{"event_type", "result"}),

		IndexerRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_indexer_retries_total",
			Help: "Indexer task retry attempts",
		}),

		IndexerDeadLetters: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_indexer_dead_letters_total",
			Help: "Tasks parked after exhausting retries",
		}),

		IndexerQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_indexer_queue_depth",
			Help: "Tasks waiting in the indexer queue",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),
	}
}
