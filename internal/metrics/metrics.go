package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis outcomes.
const (
	OutcomePrediction   = "prediction"
	OutcomeInsufficient = "insufficient_data"
	OutcomeError        = "error"
)

// Ingestion run statuses.
const (
	RunOK      = "ok"
	RunPartial = "partial"
	RunFailed  = "failed"
	RunSkipped = "skipped"
)

// Metrics bundles the service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry        *prometheus.Registry
	analyses        *prometheus.CounterVec
	ingested        *prometheus.CounterVec
	ingestionRuns   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sprout",
			Name:      "analyses_total",
			Help:      "Pricing analyses by outcome.",
		}, []string{"outcome"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sprout",
			Name:      "observations_ingested_total",
			Help:      "Price observations newly written by ingestion.",
		}, []string{"crop"}),
		ingestionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sprout",
			Name:      "ingestion_runs_total",
			Help:      "Ingestion passes by status.",
		}, []string{"status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sprout",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.analyses, m.ingested, m.ingestionRuns, m.requestDuration)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAnalysis counts one analysis outcome.
func (m *Metrics) ObserveAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
}

// AddIngested counts newly persisted observations for a crop.
func (m *Metrics) AddIngested(crop string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingested.WithLabelValues(crop).Add(float64(n))
}

// ObserveIngestionRun counts one ingestion pass.
func (m *Metrics) ObserveIngestionRun(status string) {
	if m == nil {
		return
	}
	m.ingestionRuns.WithLabelValues(status).Inc()
}

// ObserveRequest records an HTTP request latency.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
