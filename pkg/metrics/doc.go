/*
Package metrics exposes Prometheus metrics for pactown.

Metrics are package-level collectors registered at init, so any
component can record without plumbing a registry handle. The admin
endpoint serves them at /metrics via Handler.

# Metric Catalog

Gauges:
  - pactown_services_running: services currently in the running state
  - pactown_cache_entries: cached dependency environments on disk

Counters:
  - pactown_service_starts_total{result}: start attempts by outcome
    (healthy, exited, timeout, skipped)
  - pactown_service_restarts_total: automatic crash restarts
  - pactown_cache_events_total{event}: cache hits, misses, evictions
  - pactown_policy_denials_total{type}: admission denials by anomaly type

Histograms:
  - pactown_health_probe_duration_seconds: readiness probe latency

# Collector

Counters are incremented at the event site, and gauges are updated on
start, exit, and cache mutation. The Collector additionally polls a
StatsSource every 15 seconds and overwrites the gauges from observed
state, correcting any drift between events and reality. The
orchestrator engine is the source; the collector runs only when the
admin endpoint is enabled, since nothing else reads the gauges.

# See Also

  - pkg/api: Serves Handler at /metrics
  - pkg/orchestrator: Implements StatsSource
*/
package metrics
