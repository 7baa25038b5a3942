// Package orchestrator drives a whole ecosystem: startup in dependency
// order, steady-state supervision with auto-restart, and reverse-order
// shutdown.
//
// # Architecture
//
// The Engine wires every subsystem together and is the only component
// that sees all of them:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                         Engine                          │
//	│                                                         │
//	│   resolver ──▶ waves ──▶ errgroup per wave              │
//	│                            │                            │
//	│                            ▼  per service               │
//	│   policy ─▶ registry ─▶ sandbox ─▶ health gate          │
//	│   (admit)   (port)      (create+start)                  │
//	│                            │                            │
//	│   broker ◀── exit events ──┘                            │
//	│     │                                                   │
//	│     └─▶ Run loop: auto-restart / shutdown sweep         │
//	└─────────────────────────────────────────────────────────┘
//
// # Startup
//
// Up groups services into dependency waves: every service in a wave
// depends only on services of earlier waves. Waves start in order;
// members of one wave start concurrently, bounded by Options.Workers.
// Each service runs the same sequence: policy admission, endpoint
// registration, sandbox materialization, environment composition,
// launch, readiness wait. Dependency environment variables are
// composed after the dependency's wave completed, so they carry live
// allocated ports rather than declared ones. Any failure aborts Up and
// tears down everything this call started, in reverse order.
//
// # Steady State
//
// Run consumes broker events until its context is cancelled. A service
// that exits without being stopped is restarted with a freshly
// materialized sandbox when its config sets auto_restart (the
// default); the restart passes policy admission again, so crash loops
// surface as rate-limit denials instead of runaway respawning.
// Cancellation triggers one full Down sweep.
//
// # Shutdown
//
// Down walks the resolver order backwards so dependents stop before
// their dependencies. Every stop is attempted even when earlier ones
// fail; errors are aggregated with errors.Join.
//
// # Usage
//
//	eng, err := orchestrator.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	if err := eng.Up(ctx, orchestrator.Options{}); err != nil {
//		return err
//	}
//	return eng.Run(ctx, orchestrator.Options{})
//
// # See Also
//
//   - pkg/resolver: computes the dependency order and waves
//   - pkg/sandbox: materializes, launches and supervises the processes
//   - pkg/registry: persists the live service endpoints
//   - pkg/security: admits or denies each start attempt
package orchestrator
