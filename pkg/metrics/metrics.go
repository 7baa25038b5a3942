package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Service metrics
	ServicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pactown_services_running",
			Help: "Number of services currently in the running state",
		},
	)

	ServiceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactown_service_starts_total",
			Help: "Total service start attempts by result",
		},
		[]string{"result"},
	)

	ServiceRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pactown_service_restarts_total",
			Help: "Total automatic restarts of crashed services",
		},
	)

	HealthProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pactown_health_probe_duration_seconds",
			Help:    "Duration of readiness probes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache metrics
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pactown_cache_entries",
			Help: "Number of cached dependency environments",
		},
	)

	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactown_cache_events_total",
			Help: "Dependency cache events by kind (hit, miss, evict)",
		},
		[]string{"event"},
	)

	// Policy metrics
	PolicyDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pactown_policy_denials_total",
			Help: "Admission denials by anomaly type",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ServicesRunning)
	prometheus.MustRegister(ServiceStarts)
	prometheus.MustRegister(ServiceRestarts)
	prometheus.MustRegister(HealthProbeDuration)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(CacheEvents)
	prometheus.MustRegister(PolicyDenials)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
