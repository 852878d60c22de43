// Package metrics provides Prometheus metrics for the sync pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync outcomes used as the "outcome" label.
const (
	OutcomeSuccess    = "success"
	OutcomeSkipped    = "skipped"
	OutcomeFetchError = "fetch_error"
	OutcomeStoreError = "store_error"
	OutcomeBusy       = "busy"
)

// Metrics holds the sync metrics and the registry they live on.
type Metrics struct {
	registry *prometheus.Registry

	SyncRuns          *prometheus.CounterVec
	SyncDuration      *prometheus.HistogramVec
	StoredVideos      *prometheus.GaugeVec
	DroppedCandidates *prometheus.CounterVec
	LastSuccess       *prometheus.GaugeVec
}

// New registers the metrics on a fresh registry under namespace
// (default "storefeed"). Go runtime and process collectors are included.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "storefeed"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync runs by outcome",
			},
			[]string{"pipeline", "outcome"},
		),
		SyncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Wall time of sync runs",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"pipeline"},
		),
		StoredVideos: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_videos",
				Help:      "Videos written by the last successful sync, by type",
			},
			[]string{"type"},
		),
		DroppedCandidates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_candidates_total",
				Help:      "Uploads dropped before classification",
			},
			[]string{"reason"},
		),
		LastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful sync",
			},
			[]string{"pipeline"},
		),
	}
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(pipeline, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(pipeline, outcome).Inc()
	m.SyncDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	if outcome == OutcomeSuccess {
		m.LastSuccess.WithLabelValues(pipeline).SetToCurrentTime()
	}
}

// SetStored records the per-type counts of the stored set.
func (m *Metrics) SetStored(videos, shorts int) {
	if m == nil {
		return
	}
	m.StoredVideos.WithLabelValues("video").Set(float64(videos))
	m.StoredVideos.WithLabelValues("short").Set(float64(shorts))
}

// Dropped counts a candidate dropped for reason.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedCandidates.WithLabelValues(reason).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
