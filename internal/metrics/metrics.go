package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tip jar client counters and histograms, partitioned by network.

var (
	// Orchestrator
	TxSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "orchestrator",
		Name:      "submissions_total",
		Help:      "Total write actions accepted by the orchestrator",
	}, []string{"network", "action"})

	TxRejectedBusy = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "orchestrator",
		Name:      "rejected_busy_total",
		Help:      "Total write actions rejected because another action was in flight",
	}, []string{"network", "action"})

	TxOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "orchestrator",
		Name:      "outcomes_total",
		Help:      "Terminal outcomes of write actions",
	}, []string{"network", "action", "phase", "reason"})

	TxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tipjar",
		Subsystem: "orchestrator",
		Name:      "action_duration_seconds",
		Help:      "Write action duration from submission to terminal state",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60, 120, 300},
	}, []string{"network", "action"})

	// Synchronizer
	SyncRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "synchronizer",
		Name:      "refreshes_total",
		Help:      "Total synchronizer fetches by result",
	}, []string{"network", "result"})

	SyncCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "synchronizer",
		Name:      "coalesced_total",
		Help:      "Total non-forced refreshes skipped because a fetch was in flight",
	}, []string{"network"})

	SyncRefreshLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tipjar",
		Subsystem: "synchronizer",
		Name:      "refresh_duration_seconds",
		Help:      "Synchronizer fetch duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"network"})

	SyncTipRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tipjar",
		Subsystem: "synchronizer",
		Name:      "tip_records",
		Help:      "Tip records in the latest snapshot",
	}, []string{"network"})

	SyncContributorRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tipjar",
		Subsystem: "synchronizer",
		Name:      "contributor_records",
		Help:      "Contributor records in the latest snapshot",
	}, []string{"network"})

	SyncLastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tipjar",
		Subsystem: "synchronizer",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the latest successful refresh",
	}, []string{"network"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total JSON-RPC calls by method and status",
	}, []string{"network", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total RPC calls delayed by the rate limiter",
	}, []string{"network"})

	RPCCircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tipjar",
		Subsystem: "rpc",
		Name:      "circuit_breaker_state",
		Help:      "Read-path circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"network"})

	// Publishers
	SnapshotPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "publisher",
		Name:      "snapshots_total",
		Help:      "Snapshots pushed to downstream sinks by result",
	}, []string{"sink", "result"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tipjar",
		Subsystem: "api",
		Name:      "websocket_clients",
		Help:      "Connected live feed websocket clients",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tipjar",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the cooldown window",
	}, []string{"channel", "type"})
)
