// Package metrics exposes Prometheus instrumentation for the story store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SyncRuns      *prometheus.CounterVec
	SyncItems     *prometheus.CounterVec
	SyncDuration  prometheus.Histogram
	RefreshSource *prometheus.CounterVec
	PendingQueue  prometheus.Gauge
	Submissions   *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "story_sync_runs_total",
			Help: "Sync runs by outcome (completed, skipped)",
		}, []string{"outcome"}),
		SyncItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "story_sync_items_total",
			Help: "Pending submissions processed by sync, by result",
		}, []string{"result"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "story_sync_duration_seconds",
			Help:    "Duration of completed sync runs",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshSource: f.NewCounterVec(prometheus.CounterOpts{
			Name: "story_refresh_total",
			Help: "Refresh results by data source (remote, cache)",
		}, []string{"source"}),
		PendingQueue: f.NewGauge(prometheus.GaugeOpts{
			Name: "story_pending_queue_size",
			Help: "Submissions waiting in the pending queue after the last sync",
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "story_submissions_total",
			Help: "New story submissions by status (delivered, queued)",
		}, []string{"status"}),
	}
}

func (m *Metrics) SyncSkipped() {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues("skipped").Inc()
}

// SyncCompleted records a finished run and the queue size it left behind
func (m *Metrics) SyncCompleted(synced, failed, remaining int, seconds float64) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues("completed").Inc()
	m.SyncItems.WithLabelValues("synced").Add(float64(synced))
	m.SyncItems.WithLabelValues("failed").Add(float64(failed))
	m.SyncDuration.Observe(seconds)
	if remaining >= 0 {
		m.PendingQueue.Set(float64(remaining))
	}
}

func (m *Metrics) Refreshed(source string) {
	if m == nil {
		return
	}
	m.RefreshSource.WithLabelValues(source).Inc()
}

func (m *Metrics) Submitted(status string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(status).Inc()
}
