// Package metrics registers the pipeline's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHitsTotal counts verdict cache hits on the detection path.
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "cache_hits_total",
		Help:      "Verdict cache hits during item detection.",
	})

	// CacheMissesTotal counts verdict cache misses on the detection path.
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "cache_misses_total",
		Help:      "Verdict cache misses during item detection.",
	})

	// BatchesFlushedTotal counts batches handed to the oracle, by trigger.
	BatchesFlushedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "batches_flushed_total",
		Help:      "Batches flushed to the classification oracle.",
	}, []string{"trigger"})

	// ItemsClassifiedTotal counts normalized verdicts applied, by verdict.
	ItemsClassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "items_classified_total",
		Help:      "Items that received a normalized verdict.",
	}, []string{"verdict"})

	// OracleFailuresTotal counts batch-level oracle failures that fail closed.
	OracleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "oracle_failures_total",
		Help:      "Oracle calls that exhausted retries and failed closed.",
	})

	// QuotaLockoutsTotal counts lockout transitions.
	QuotaLockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "quota_lockouts_total",
		Help:      "Daily quota lockout activations.",
	})

	// RelayRequestsTotal counts relay classify requests, by outcome.
	RelayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedsift",
		Name:      "relay_requests_total",
		Help:      "Classify requests handled by the relay.",
	}, []string{"outcome"})
)
