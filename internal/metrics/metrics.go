package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verification lifecycle
	VerificationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nftgate",
		Name:      "verifications_started_total",
		Help:      "Total verification attempts created",
	})

	VerificationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftgate",
		Name:      "verification_transitions_total",
		Help:      "Verification records leaving pending, by resulting status",
	}, []string{"status"})

	// Indexer
	IndexerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftgate",
		Subsystem: "indexer",
		Name:      "requests_total",
		Help:      "Indexer HTTP requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	IndexerQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nftgate",
		Subsystem: "indexer",
		Name:      "queue_wait_seconds",
		Help:      "Time a request spent queued before execution",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	HoldingsMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftgate",
		Subsystem: "indexer",
		Name:      "holdings_matches_total",
		Help:      "Positive holdings lookups by the strategy that matched",
	}, []string{"strategy"})

	// Storage
	StorageFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nftgate",
		Subsystem: "storage",
		Name:      "failovers_total",
		Help:      "Switches from the durable store to the in-memory mirror",
	})

	StorageResyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftgate",
		Subsystem: "storage",
		Name:      "resyncs_total",
		Help:      "Resync attempts by outcome",
	}, []string{"outcome"})

	StorageMemoryMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nftgate",
		Subsystem: "storage",
		Name:      "memory_mode",
		Help:      "1 while operations are served from the in-memory mirror",
	})

	// Orchestration
	PollerInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nftgate",
		Subsystem: "poller",
		Name:      "inflight",
		Help:      "Verification handles currently tracked by the poller",
	})

	RoleActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftgate",
		Name:      "role_actions_total",
		Help:      "Role grant/revoke signals sent to the bot",
	}, []string{"action"})
)
