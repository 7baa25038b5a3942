// Package health provides the probes that decide when a sandboxed
// service is ready and whether it stays healthy while running.
//
// # Architecture
//
// Two probes share one Checker interface:
//
//	┌──────────────────────────────────────────────┐
//	│                  Checker                     │
//	│                                              │
//	│  HTTPChecker ──▶ GET /health, 200-399 = ok   │
//	│  TCPChecker  ──▶ port accepts connections    │
//	└──────────────────┬───────────────────────────┘
//	                   │
//	        ┌──────────┴──────────┐
//	        ▼                     ▼
//	   WaitReady              Status.Update
//	   (startup gate)         (steady-state monitor)
//
// HTTP is the default; a service that sets an empty health check path
// is probed over TCP instead, so binding its port is enough to count
// as ready.
//
// # Readiness
//
// WaitReady polls with an escalating back-off (50ms, 100ms, 250ms,
// 500ms, then every 500ms) until the service answers or its timeout
// elapses. Fast services are detected within the first attempts
// instead of waiting out a fixed interval. The caller cancels the
// context to abort a probe whose process has already exited.
//
// # Monitoring
//
// Status tracks consecutive results for one running service and only
// flips to unhealthy after Config.Retries failures in a row, so a
// single dropped request does not mark a service down. One success
// recovers it immediately.
//
// # Usage
//
//	checker := health.NewHTTPChecker("http://127.0.0.1:8003/health").
//		WithTimeout(2 * time.Second)
//
//	if err := health.WaitReady(ctx, checker, 60*time.Second); err != nil {
//		return err
//	}
//
// # See Also
//
//   - pkg/sandbox: gates service startup on WaitReady
//   - pkg/metrics: records probe durations
package health
