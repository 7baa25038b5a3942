// Package api exposes the orchestrator's admin HTTP surface:
// liveness, per-service status, and Prometheus metrics.
//
// The server is optional. It runs only when `pactown up --listen` is
// given an address, and it never accepts commands: everything it
// serves is read-only observation of the running ecosystem. Control
// stays with the CLI process that owns the sandboxes.
//
// # Architecture
//
//	┌─────────────── curl / dashboards / Prometheus ──────────────┐
//	│                                                             │
//	│   GET /healthz        GET /status          GET /metrics     │
//	└────────┬──────────────────┬────────────────────┬────────────┘
//	         │                  │                    │
//	┌────────▼──────────────────▼────────────────────▼────────────┐
//	│                      api.Server (mux)                       │
//	│                                                             │
//	│   liveness only      StatusSource.Status    metrics.Handler │
//	│                      (orchestrator.Engine)   (promhttp)     │
//	└─────────────────────────────────────────────────────────────┘
//
// # Endpoints
//
//   - /healthz: reports that the orchestrator process itself is
//     alive, with the ecosystem name and build version.
//   - /status: one entry per declared service with state, port, PID,
//     health verdict, uptime in seconds, and last probe latency.
//     Running services are probed live, so the response reflects the
//     moment of the request, not a cached snapshot.
//   - /metrics: the Prometheus registry from pkg/metrics.
//
// All endpoints are GET-only and respond with JSON except /metrics,
// which uses the Prometheus text exposition format.
//
// # Usage
//
//	srv := api.NewServer(engine, cfg.Name, version)
//	go func() {
//		if err := srv.Start("127.0.0.1:9911"); err != nil {
//			log.Error().Err(err).Msg("Admin server stopped")
//		}
//	}()
//
// # See Also
//
//   - pkg/orchestrator: implements StatusSource
//   - pkg/metrics: the registry behind /metrics
package api
