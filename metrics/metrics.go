// Package metrics exposes the Prometheus collectors shared by the service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	interpretations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexo_guideline_interpretations_total",
		Help: "Guideline interpretations by source, interpreter and outcome",
	}, []string{"source", "interpreter", "outcome"})

	interpretLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexo_guideline_interpret_latency_ms",
		Help:    "Latency of guideline interpretations in milliseconds",
		Buckets: []float64{1, 5, 25, 100, 250, 500, 1000, 2000, 5000, 10000},
	}, []string{"interpreter"})

	alertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexo_clinical_alerts_total",
		Help: "Clinical alerts raised by level",
	}, []string{"level"})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexo_alert_notifications_total",
		Help: "Alert notifications by outcome",
	}, []string{"outcome"})

	ingestedPassages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexo_guideline_passages_ingested_total",
		Help: "Guideline passages written to the vector store",
	}, []string{"source"})
)

func ensureRegistered() {
	once.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			interpretations, interpretLatency, alertsRaised, notifications, ingestedPassages,
		)
	})
}

// ObserveInterpretation records one answered guideline question.
func ObserveInterpretation(interpreter, source, outcome string, start time.Time) {
	ensureRegistered()
	interpretations.WithLabelValues(source, interpreter, outcome).Inc()
	interpretLatency.WithLabelValues(interpreter).Observe(float64(time.Since(start).Milliseconds()))
}

// IncAlert counts an alert of the given level.
func IncAlert(level string) {
	ensureRegistered()
	alertsRaised.WithLabelValues(level).Inc()
}

// IncNotification counts a notification attempt.
func IncNotification(outcome string) {
	ensureRegistered()
	notifications.WithLabelValues(outcome).Inc()
}

// AddPassages counts passages ingested for a source.
func AddPassages(source string, n int) {
	ensureRegistered()
	ingestedPassages.WithLabelValues(source).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
