package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "querycache"

// Metrics holds the Prometheus collectors updated by caches and sweepers.
type Metrics struct {
	// Lookups counts backend reads labelled by provider and result
	// ("hit", "miss", "stale", "corrupt", "error").
	Lookups *prometheus.CounterVec
	// Coalesced counts loads that attached to an in-flight load for the same key.
	Coalesced prometheus.Counter
	// Fallbacks counts fallback invocations by status ("success", "error").
	Fallbacks *prometheus.CounterVec
	// FallbackDuration observes fallback latency in seconds.
	FallbackDuration prometheus.Histogram
	// BackendErrors counts absorbed provider failures by provider and op ("get", "set").
	BackendErrors *prometheus.CounterVec
	// GCDeletedRows counts rows removed by the sweeper per table.
	GCDeletedRows *prometheus.CounterVec
	// GCFailures counts failed sweeps per table.
	GCFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests and embedders without a
// metrics endpoint want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lookups_total",
			Help:      "Cache backend lookups by provider and result.",
		}, []string{"provider", "result"}),
		Coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "coalesced_total",
			Help:      "Loads that shared the result of an in-flight load.",
		}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fallbacks_total",
			Help:      "Fallback invocations by status.",
		}, []string{"status"}),
		FallbackDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fallback_duration_seconds",
			Help:      "Fallback latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "backend_errors_total",
			Help:      "Cache backend failures absorbed by the cache, by provider and operation.",
		}, []string{"provider", "op"}),
		GCDeletedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gc_deleted_rows_total",
			Help:      "Expired cache rows deleted by the sweeper.",
		}, []string{"table"}),
		GCFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gc_failures_total",
			Help:      "Failed sweeps per table.",
		}, []string{"table"}),
	}
}
