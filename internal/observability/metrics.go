package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault ledger.
type Metrics struct {
	// --- Ledger operations ---
	DepositsCredited    *prometheus.CounterVec
	DepositsRejected    *prometheus.CounterVec
	WithdrawalsApplied  prometheus.Counter
	WithdrawalsRejected *prometheus.CounterVec
	DepositDuration     *prometheus.HistogramVec
	WithdrawDuration    prometheus.Histogram
	SwapsExecuted       *prometheus.CounterVec
	SwapsFailed         *prometheus.CounterVec
	LedgerSequence      prometheus.Gauge

	// --- Ledger state ---
	TotalHeld         prometheus.Gauge
	AvailableCapacity prometheus.Gauge
	AccountCount      prometheus.Gauge
	SlippageBps       prometheus.Gauge

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Outbound publishing ---
	PublishDrops  prometheus.Counter
	PublishErrors prometheus.Counter

	// --- Snapshot ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00005, 0.0001, 0.00025, 0.0005, 0.001,
		0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
	}

	return &Metrics{
		DepositsCredited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_deposits_credited_total",
			Help: "Deposits successfully credited",
		}, []string{"asset"}),

		DepositsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_deposits_rejected_total",
			Help: "Deposits rejected (validation, policy, external)",
		}, []string{"asset", "reason"}),

		WithdrawalsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_withdrawals_applied_total",
			Help: "Withdrawals successfully applied",
		}),

		WithdrawalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_withdrawals_rejected_total",
			Help: "Withdrawals rejected",
		}, []string{"reason"}),

		DepositDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_deposit_duration_seconds",
			Help:    "End-to-end deposit latency including custody and conversion",
			Buckets: opBuckets,
		}, []string{"asset"}),

		WithdrawDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_withdraw_duration_seconds",
			Help:    "End-to-end withdrawal latency including custody",
			Buckets: opBuckets,
		}),

		SwapsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_swaps_executed_total",
			Help: "Conversions executed through the swap router",
		}, []string{"asset_in"}),

		SwapsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_swaps_failed_total",
			Help: "Conversions aborted (slippage, stale price, route)",
		}, []string{"asset_in", "reason"}),

		LedgerSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_ledger_sequence",
			Help: "Current ledger event sequence",
		}),

		TotalHeld: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_held_accounting_units",
			Help: "Total balance held, in accounting units",
		}),

		AvailableCapacity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_available_capacity_accounting_units",
			Help: "Remaining global capacity, in accounting units",
		}),

		AccountCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_accounts",
			Help: "Accounts with a referenced balance",
		}),

		SlippageBps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_slippage_tolerance_bps",
			Help: "Current slippage tolerance (basis points)",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_errors_total",
			Help: "NATS publish failures",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
