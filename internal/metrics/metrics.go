// Package metrics exposes pipeline counters on a dedicated Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/consolidator/internal/core"
)

const namespace = "consolidator"

// Row stages counted by rows_total.
const (
	StageIn         = "in"
	StageNormalized = "normalized"
	StageRejected   = "rejected"
	StageDuplicate  = "duplicate"
	StageMerged     = "merged"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	filesTotal       *prometheus.CounterVec
	rowsTotal        *prometheus.CounterVec
	mergedTotal      *prometheus.CounterVec
	fileDuration     *prometheus.HistogramVec
	partitionRecords *prometheus.GaugeVec
	runsTotal        *prometheus.CounterVec
	lastRun          prometheus.Gauge
	mirrorErrors     prometheus.Counter
	publishErrors    prometheus.Counter
}

// New creates the collectors and registers them.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files seen by outcome.",
		},
		[]string{"status", "code"},
	)
	rowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows by pipeline stage.",
		},
		[]string{"stage"},
	)
	mergedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_merged_total",
			Help:      "Records appended to the store by partition.",
		},
		[]string{"partition"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Per-file processing duration in seconds by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
	partitionRecords := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_records",
			Help:      "Records held by each partition.",
		},
		[]string{"partition"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by mode.",
		},
		[]string{"mode"},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		},
	)
	mirrorErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Failed or skipped Postgres mirror syncs.",
		},
	)
	publishErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Merge events that could not be published.",
		},
	)

	registry.MustRegister(filesTotal, rowsTotal, mergedTotal, fileDuration, partitionRecords,
		runsTotal, lastRun, mirrorErrors, publishErrors)

	return &Metrics{
		registry:         registry,
		filesTotal:       filesTotal,
		rowsTotal:        rowsTotal,
		mergedTotal:      mergedTotal,
		fileDuration:     fileDuration,
		partitionRecords: partitionRecords,
		runsTotal:        runsTotal,
		lastRun:          lastRun,
		mirrorErrors:     mirrorErrors,
		publishErrors:    publishErrors,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFile records one file report.
func (m *Metrics) ObserveFile(r core.FileReport) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(string(r.Outcome), r.Code).Inc()
	m.fileDuration.WithLabelValues(string(r.Outcome)).Observe(r.Duration.Seconds())

	if r.Outcome != core.OutcomeAccepted {
		return
	}
	m.rowsTotal.WithLabelValues(StageIn).Add(float64(r.RowsIn))
	m.rowsTotal.WithLabelValues(StageNormalized).Add(float64(r.Normalized))
	m.rowsTotal.WithLabelValues(StageRejected).Add(float64(r.Rejected))
	m.rowsTotal.WithLabelValues(StageDuplicate).Add(float64(r.Duplicates))
	if r.DryRun {
		return
	}
	m.rowsTotal.WithLabelValues(StageMerged).Add(float64(r.Merged))
	m.mergedTotal.WithLabelValues(r.Partition).Add(float64(r.Merged))
	m.partitionRecords.WithLabelValues(r.Partition).Set(float64(r.Total))
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(r core.RunReport) {
	if m == nil {
		return
	}
	mode := "run"
	if r.DryRun {
		mode = "dry_run"
	}
	m.runsTotal.WithLabelValues(mode).Inc()
	m.lastRun.Set(float64(r.FinishedAt.Unix()))
}

// SetPartitionRecords sets the record gauge, e.g. from a store summary at startup.
func (m *Metrics) SetPartitionRecords(partition string, n int) {
	if m == nil {
		return
	}
	m.partitionRecords.WithLabelValues(partition).Set(float64(n))
}

// MirrorError counts a failed or breaker-skipped mirror sync.
func (m *Metrics) MirrorError() {
	if m == nil {
		return
	}
	m.mirrorErrors.Inc()
}

// PublishError counts a merge event that was not delivered.
func (m *Metrics) PublishError() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}
