// Package sandbox materializes services into isolated directories,
// launches their processes and supervises them until exit.
//
// # Architecture
//
// Every service gets one directory under the sandbox root. The
// Manager owns the full lifecycle:
//
//	┌──────────────────────────────────────────────────────┐
//	│                      Manager                         │
//	│                                                      │
//	│  Create ─▶ <root>/<service>/                         │
//	│              ├── main.py …      artifact files       │
//	│              ├── .env ─▶        cached environment   │
//	│              ├── .state.json    lifecycle record     │
//	│              ├── service.log    mirrored output      │
//	│              └── error.log      crash post-mortem    │
//	│                                                      │
//	│  Start ─▶ sh -c <command>   (own session, cwd=dir)   │
//	│              │                                       │
//	│              ├─▶ readiness probe  (HTTP or TCP)      │
//	│              └─▶ supervise goroutine ─▶ exit event   │
//	└──────────────────────────────────────────────────────┘
//
// Materialized state survives the pactown process: .state.json lets a
// fresh invocation reconcile, stop or report services launched by an
// earlier one.
//
// # Lifecycle
//
// A sandbox moves through created, materialized, starting, running,
// stopping and dead. Start gates on a readiness probe and reports one
// of four outcomes: healthy, exited (the child died first), timeout,
// or skipped when probing is disabled. After readiness the supervisor
// goroutine waits on the child; when it exits the endpoint is
// unregistered, the cached env reference released and an event
// published to the broker. Exit statuses are flattened to one int:
// zero for success, positive exit codes, negative signal numbers
// (-15 SIGTERM, -9 SIGKILL, -2 SIGINT).
//
// # Command Preparation
//
// Run commands are taken from the artifact verbatim apart from port
// reconciliation: $PORT and $MARKPACT_PORT expand to the allocated
// port, and a differing literal port in --port N, -p N, PORT=N or a
// :NNNN address suffix is rewritten. PORT and MARKPACT_PORT are
// always present in the child environment.
//
// # Stopping
//
// Stop signals the whole process group with SIGTERM, waits out a
// grace period (10 s by default) and escalates to SIGKILL. Stopping
// an unknown name is a no-op.
//
// # Usage
//
//	m, err := sandbox.NewManager(root, envCache, reg, broker)
//	if err != nil {
//		return err
//	}
//
//	sb, err := m.Create("api", art)
//	if err != nil {
//		return err
//	}
//
//	res, err := m.Start(ctx, sb, port, env, sandbox.StartOptions{
//		HealthCheck: "/health",
//		Timeout:     30 * time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer m.Stop(res.Service)
//
// # See Also
//
//   - pkg/artifact: parses the files, deps and run command materialized here
//   - pkg/cache: provides the shared dependency environments linked at .env
//   - pkg/health: implements the readiness probes Start gates on
//   - pkg/events: receives lifecycle and exit events from the supervisor
package sandbox
