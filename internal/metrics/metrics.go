// Package metrics provides Prometheus instrumentation for the scan engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomscan_files_scanned_total",
			Help: "Total number of files scanned",
		},
		[]string{"method"},
	)
	FilesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomscan_files_skipped_total",
			Help: "Total number of files skipped during scanning",
		},
		[]string{"reason"},
	)
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomscan_file_scan_duration_seconds",
			Help:    "Per-file scan duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	TasksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomscan_tasks_active",
			Help: "Number of scan tasks currently running",
		},
	)
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomscan_tasks_completed_total",
			Help: "Total number of scan tasks finished by outcome",
		},
		[]string{"outcome"},
	)
	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomscan_backend_calls_total",
			Help: "Total number of backend analysis calls by method",
		},
		[]string{"method"},
	)
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomscan_cache_hits_total",
			Help: "Total number of analysis cache hits",
		},
	)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomscan_cache_misses_total",
			Help: "Total number of analysis cache misses",
		},
	)
	HealingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomscan_healing_attempts_total",
			Help: "Total number of healing recovery attempts by error kind",
		},
		[]string{"kind"},
	)
	HealingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomscan_healing_outcomes_total",
			Help: "Total number of completed healing cycles by error kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomscan_events_dropped_total",
			Help: "Total number of scan events dropped because the observer queue was full",
		},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomscan_queue_depth",
			Help: "Current depth of the scan task queue",
		},
	)
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomscan_workers_active",
			Help: "Number of currently active scan workers",
		},
	)
)

func RecordFileScanned(method string, duration time.Duration) {
	FilesScanned.WithLabelValues(method).Inc()
	ScanDuration.Observe(duration.Seconds())
}

func RecordFileSkipped(reason string) {
	FilesSkipped.WithLabelValues(reason).Inc()
}

func RecordTaskCompleted(outcome string) {
	TasksCompleted.WithLabelValues(outcome).Inc()
}

func RecordBackendCall(method string) {
	BackendCalls.WithLabelValues(method).Inc()
}

func RecordHealingAttempt(kind string) {
	HealingAttempts.WithLabelValues(kind).Inc()
}

func RecordHealingOutcome(kind, outcome string) {
	HealingOutcomes.WithLabelValues(kind, outcome).Inc()
}

func RecordEventDropped() {
	EventsDropped.Inc()
}

func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}
