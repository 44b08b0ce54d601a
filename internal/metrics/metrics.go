// Package metrics exposes Prometheus collectors for the merge engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MergesTotal counts merge invocations by terminal status.
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovc_merges_total",
		Help: "Number of merge invocations by terminal status.",
	}, []string{"status"})

	// ConflictsDetected counts detected conflicts by type.
	ConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovc_conflicts_detected_total",
		Help: "Number of detected merge conflicts by conflict type.",
	}, []string{"type"})

	// ResolutionAttempts counts strategy executions by outcome.
	ResolutionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovc_resolution_attempts_total",
		Help: "Number of resolution strategy executions by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	// ResolutionCacheHits counts resolutions served from the cache.
	ResolutionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ovc_resolution_cache_hits_total",
		Help: "Number of resolutions served from the signature cache.",
	})

	// MergeDuration observes end-to-end merge latency.
	MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ovc_merge_duration_seconds",
		Help:    "End-to-end merge duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)
