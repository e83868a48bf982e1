// Package metrics exposes Prometheus instrumentation for reconciliation runs.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/mentor-sync/internal/model"
)

// Metrics provides observability for the reconciliation pipeline.
type Metrics struct {
	// Runs by outcome (complete, failed) and mode (write, dry_run)
	Runs *prometheus.CounterVec

	// Conflicts logged by the latest run
	Conflicts *prometheus.GaugeVec

	// Canonical mentors by status after the latest run
	Mentors *prometheus.GaugeVec

	// Phase latencies (load, reconcile, write)
	PhaseLatency *prometheus.HistogramVec

	// Per-source load latency and size
	SourceLatency *prometheus.HistogramVec
	SourceRows    *prometheus.GaugeVec

	// Rows written to the raw tables by ingest
	IngestedRows *prometheus.CounterVec

	LastSuccess prometheus.Gauge
}

// New registers all pipeline metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_sync_runs_total",
			Help: "Reconciliation runs by outcome and mode",
		}, []string{"outcome", "mode"}),

		Conflicts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mentor_sync_conflicts",
			Help: "Conflicts logged by the latest run by severity and type",
		}, []string{"severity", "type"}),

		Mentors: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mentor_sync_mentors",
			Help: "Canonical mentors by status after the latest run",
		}, []string{"status"}),

		PhaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentor_sync_phase_duration_seconds",
			Help:    "Duration of each run phase",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"phase"}),

		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentor_sync_source_load_duration_seconds",
			Help:    "Duration of a full paged load per raw source",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),

		SourceRows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mentor_sync_source_rows",
			Help: "Rows loaded per raw source by the latest run",
		}, []string{"source"}),

		IngestedRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mentor_sync_ingested_rows_total",
			Help: "Rows upserted into the raw tables by source",
		}, []string{"source"}),

		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "mentor_sync_last_success_timestamp_seconds",
			Help: "Unix time of the latest completed run",
		}),
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(outcome string, dryRun bool) {
	if m == nil {
		return
	}
	mode := "write"
	if dryRun {
		mode = "dry_run"
	}
	m.Runs.WithLabelValues(outcome, mode).Inc()
	if outcome == string(model.RunStatusComplete) {
		m.LastSuccess.SetToCurrentTime()
	}
}

// ObservePhase records the duration of one run phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m != nil {
		m.PhaseLatency.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// ObserveSource records one raw source load. Its signature matches
// source.Observer.
func (m *Metrics) ObserveSource(name string, d time.Duration, rows int) {
	if m != nil {
		m.SourceLatency.WithLabelValues(name).Observe(d.Seconds())
		m.SourceRows.WithLabelValues(name).Set(float64(rows))
	}
}

// ObserveIngest adds rows written by ingest for one source.
func (m *Metrics) ObserveIngest(name string, rows int64) {
	if m != nil {
		m.IngestedRows.WithLabelValues(name).Add(float64(rows))
	}
}

// SetConflicts replaces the conflict gauges with the counts in cs.
func (m *Metrics) SetConflicts(cs []model.Conflict) {
	if m == nil {
		return
	}
	m.Conflicts.Reset()
	for _, c := range cs {
		m.Conflicts.WithLabelValues(string(c.Severity), string(c.Type)).Inc()
	}
}

// SetStatusCounts replaces the mentor gauges. Statuses with no mentors are
// reported as zero.
func (m *Metrics) SetStatusCounts(counts map[model.Status]int) {
	if m == nil {
		return
	}
	for _, s := range model.AllStatuses {
		m.Mentors.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
