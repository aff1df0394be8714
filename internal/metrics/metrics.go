// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts snapshot synchronization runs by outcome.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlens_sync_runs_total",
		Help: "Snapshot synchronization runs by status (ok, error, rejected).",
	}, []string{"status"})

	// SyncPages counts pages fetched from the upstream streams listing.
	SyncPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamlens_sync_pages_fetched_total",
		Help: "Pages fetched from the upstream streams listing.",
	})

	// GenerationSize is the stream count of the last committed generation.
	GenerationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamlens_generation_streams",
		Help: "Streams in the current committed generation.",
	})

	// TagUpserts counts taxonomy rows written by reconciliation.
	TagUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamlens_tag_upserts_total",
		Help: "Tag rows upserted by taxonomy reconciliation.",
	})

	// CacheRecomputes counts aggregate recomputations by scope.
	CacheRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlens_cache_recomputes_total",
		Help: "Aggregate cache recomputations by scope.",
	}, []string{"scope"})

	// FetchDuration observes upstream fetch latency per operation.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamlens_fetch_duration_seconds",
		Help:    "Upstream fetch latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
