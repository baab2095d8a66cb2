package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the local process metrics exposed on /metrics. These are
// about the pipeline itself; per-exchange LLM telemetry goes to the
// observability backend instead.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	ProviderLatency prometheus.Histogram
	ExportedEvents  *prometheus.CounterVec
	ExportFailures  prometheus.Counter
	ExportDropped   prometheus.Counter
	RedactionsTotal *prometheus.CounterVec
	DriftFallbacks  prometheus.Counter
}

// New creates and registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omniguard_requests_total",
			Help: "Chat requests handled, by route and outcome.",
		}, []string{"route", "outcome"}),
		ProviderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omniguard_provider_latency_seconds",
			Help:    "LLM provider round-trip latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ExportedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omniguard_exported_events_total",
			Help: "Telemetry events shipped to the observability backend, by kind.",
		}, []string{"kind"}),
		ExportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omniguard_export_failures_total",
			Help: "Telemetry events that failed to export and were dropped.",
		}),
		ExportDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omniguard_export_dropped_total",
			Help: "Telemetry events dropped because the export buffer was full.",
		}),
		RedactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omniguard_redactions_total",
			Help: "Sensitive substrings redacted, by category.",
		}, []string{"category"}),
		DriftFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omniguard_drift_fallbacks_total",
			Help: "Drift measurements that fell back to the local embedder.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.ProviderLatency,
		m.ExportedEvents,
		m.ExportFailures,
		m.ExportDropped,
		m.RedactionsTotal,
		m.DriftFallbacks,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
