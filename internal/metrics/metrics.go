// Package metrics exposes Prometheus metrics for the device slot and the
// orchestrations run against it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "forcedmode"

// Metrics holds the collectors. A Metrics created with enabled=false, or a
// nil *Metrics, records nothing.
type Metrics struct {
	takes          *prometheus.CounterVec
	orchestrations *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	transitionTime *prometheus.HistogramVec
	runDuration    *prometheus.HistogramVec
	available      prometheus.Gauge
	eventClients   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{}
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		takes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "slot_takes_total",
				Help:      "Attempts to take the device from the slot",
			},
			[]string{"result"},
		),
		orchestrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "orchestrations_total",
				Help:      "Orchestration requests by outcome",
			},
			[]string{"outcome"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "transitions_total",
				Help:      "Device transitions by name and result",
			},
			[]string{"transition", "result"},
		),
		transitionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "transition_duration_seconds",
				Help:      "Duration of device transitions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transition"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "orchestration_duration_seconds",
				Help:      "Duration of orchestration runs in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		available: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "device_available",
				Help:      "1 when the device is in the slot, 0 while an orchestration holds it",
			},
		),
		eventClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "event_clients",
				Help:      "Connected event stream clients",
			},
		),
	}

	registry.MustRegister(
		m.takes,
		m.orchestrations,
		m.transitions,
		m.transitionTime,
		m.runDuration,
		m.available,
		m.eventClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.available.Set(1)

	return m
}

// Enabled reports whether m records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// RecordTake records a take attempt; result is "taken" or "busy".
func (m *Metrics) RecordTake(result string) {
	if !m.Enabled() {
		return
	}
	m.takes.WithLabelValues(result).Inc()
}

// RecordTransition records one transition of a run.
func (m *Metrics) RecordTransition(transition string, failed bool, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.transitions.WithLabelValues(transition, result).Inc()
	m.transitionTime.WithLabelValues(transition).Observe(duration.Seconds())
}

// RecordOrchestration records a finished orchestration request.
func (m *Metrics) RecordOrchestration(outcome string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.orchestrations.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetAvailable sets the device availability gauge.
func (m *Metrics) SetAvailable(available bool) {
	if !m.Enabled() {
		return
	}
	value := 0.0
	if available {
		value = 1.0
	}
	m.available.Set(value)
}

// SetEventClients sets the number of connected event stream clients.
func (m *Metrics) SetEventClients(n int) {
	if !m.Enabled() {
		return
	}
	m.eventClients.Set(float64(n))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
