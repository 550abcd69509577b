package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sender side.
var (
	EventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "events_sent_total",
		Help:      "Total number of synthetic events accepted by the ingest endpoint",
	}, []string{"base"})

	SubmitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "submit_retries_total",
		Help:      "Total number of retried event submissions",
	})

	SubmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "submit_failures_total",
		Help:      "Event submissions that failed after retries",
	}, []string{"kind"})

	ReconcileAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "reconcile_attempts_total",
		Help:      "Backend fetches made while resolving sent events",
	}, []string{"base"})

	UnresolvedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "unresolved_events_total",
		Help:      "Events abandoned after the reconcile budget was exhausted",
	}, []string{"base"})

	ClusterWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fd",
		Name:      "cluster_wait_seconds",
		Help:      "Time spent waiting for cluster membership",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
	})
)

// Backend side.
var (
	ObjectsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "objects_ingested_total",
		Help:      "Total number of objects accepted by ingest",
	}, []string{"base"})

	ObjectsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "objects_indexed_total",
		Help:      "Total number of objects written to the index",
	}, []string{"base"})

	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fd",
		Name:      "ingest_queue_depth",
		Help:      "Tasks waiting for the indexer",
	})

	IndexLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fd",
		Name:      "index_lag_seconds",
		Help:      "Delay between ingest and indexing",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fd",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fd",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
