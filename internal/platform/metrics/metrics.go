// Package metrics exposes intake pipeline metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// IntakeMetrics implements the IntakeObserver port on a Prometheus registry.
type IntakeMetrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	superseded  prometheus.Counter
	commits     *prometheus.CounterVec
	drafts      prometheus.Gauge
}

// NewIntakeMetrics registers the intake collectors, plus the Go and process collectors,
// on a fresh registry.
func NewIntakeMetrics() *IntakeMetrics {
	m := &IntakeMetrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "ingestion_transitions_total",
			Help:      "Ingestion state transitions by channel, target state and error kind.",
		}, []string{"channel", "state", "error_kind"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "ingestion_duration_seconds",
			Help:      "Time from file selection to merged draft.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"channel"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "entity_resolutions_total",
			Help:      "Counterparty resolutions by entity type and match confidence.",
		}, []string{"entity_type", "confidence"}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "superseded_results_total",
			Help:      "Extraction results dropped because a newer attempt or a discard superseded them.",
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "draft_commits_total",
			Help:      "Committed drafts by mode.",
		}, []string{"mode"}),
		drafts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Name:      "active_drafts",
			Help:      "Draft sessions currently held in memory.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions, m.durations, m.resolutions, m.superseded, m.commits, m.drafts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *IntakeMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IntakeMetrics) IngestionTransition(channel domain.ExtractionChannel, state domain.IngestionState, kind domain.IngestionErrorKind) {
	m.transitions.WithLabelValues(string(channel), string(state), string(kind)).Inc()
}

func (m *IntakeMetrics) IngestionDuration(channel domain.ExtractionChannel, d time.Duration) {
	m.durations.WithLabelValues(string(channel)).Observe(d.Seconds())
}

func (m *IntakeMetrics) EntityResolved(entityType domain.EntityType, confidence domain.MatchConfidence) {
	m.resolutions.WithLabelValues(string(entityType), string(confidence)).Inc()
}

func (m *IntakeMetrics) SupersededDiscarded() {
	m.superseded.Inc()
}

func (m *IntakeMetrics) DraftCommitted(mode string) {
	m.commits.WithLabelValues(mode).Inc()
}

func (m *IntakeMetrics) ActiveDrafts(n int) {
	m.drafts.Set(float64(n))
}
