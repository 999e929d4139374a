package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the chat service.
type Metrics struct {
	registry *prometheus.Registry

	ChatTurns         *prometheus.CounterVec
	CompletionLatency prometheus.Histogram
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	CacheAppends      *prometheus.CounterVec
	JanitorSweeps     prometheus.Counter
	JanitorDeleted    prometheus.Counter
	JanitorDuration   prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ChatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorchat_chat_turns_total",
			Help: "Chat turns processed, by agent and outcome.",
		}, []string{"agent", "status"}),
		CompletionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mentorchat_completion_latency_seconds",
			Help:    "Latency of completion calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorchat_cache_hits_total",
			Help: "Conversation cache reads that returned history.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorchat_cache_misses_total",
			Help: "Conversation cache reads that found nothing or expired data.",
		}),
		CacheAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentorchat_cache_appends_total",
			Help: "Cache append attempts, by outcome.",
		}, []string{"status"}),
		JanitorSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorchat_janitor_sweeps_total",
			Help: "Completed janitor sweeps.",
		}),
		JanitorDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentorchat_janitor_deleted_total",
			Help: "Expired cache entries deleted by the janitor.",
		}),
		JanitorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mentorchat_janitor_sweep_duration_seconds",
			Help:    "Duration of janitor sweeps.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}
	reg.MustRegister(
		m.ChatTurns, m.CompletionLatency,
		m.CacheHits, m.CacheMisses, m.CacheAppends,
		m.JanitorSweeps, m.JanitorDeleted, m.JanitorDuration,
	)
	return m
}

// Handler returns an HTTP handler serving the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
