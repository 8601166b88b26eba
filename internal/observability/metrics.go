// Package observability exposes Prometheus collectors for the guardrail:
// turn outcomes, detector latency, and entity substitution counts.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"piiguard/internal/core"
)

// Metrics holds the guardrail collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	detectionLatency *prometheus.HistogramVec
	turnDuration     *prometheus.HistogramVec
	entitiesDetected *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the
// standard Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(registry)
}

// NewWithRegistry creates the collectors on the given registry.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_turns_total",
			Help: "Completed pipeline turns by terminal status and detector.",
		}, []string{"status", "detector"}),
		detectionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "piiguard_detection_latency_seconds",
			Help:    "Detector call latency per turn.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"detector"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "piiguard_turn_duration_seconds",
			Help:    "End-to-end turn duration including the model call.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"detector"}),
		entitiesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_entities_detected_total",
			Help: "Entity spans substituted with placeholders, by type.",
		}, []string{"detector", "entity_type"}),
	}
}

// ObserveTurn records one completed or failed turn. Implements the
// pipeline's Observer interface.
func (m *Metrics) ObserveTurn(status, detector string, detectionMS, totalMS float64, entityCounts map[core.EntityType]int) {
	m.turnsTotal.WithLabelValues(status, detector).Inc()
	m.detectionLatency.WithLabelValues(detector).Observe(detectionMS / 1000)
	m.turnDuration.WithLabelValues(detector).Observe(totalMS / 1000)
	for entityType, count := range entityCounts {
		m.entitiesDetected.WithLabelValues(detector, string(entityType)).Add(float64(count))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
