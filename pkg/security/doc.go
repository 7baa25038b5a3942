// Package security is the multi-tenant admission gate for service
// starts: per-user quotas, rate limiting, host-load throttling and
// anomaly logging.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────┐
//	│                      Policy                         │
//	│                                                     │
//	│  CheckCanStart(user, service, port)                 │
//	│      │                                              │
//	│      1. blocked?          ──▶ deny (high)           │
//	│      2. token bucket      ──▶ deny + retry eta      │
//	│      3. concurrent quota  ──▶ deny                  │
//	│      4. hourly window     ──▶ deny                  │
//	│      5. port allowlist    ──▶ deny (high)           │
//	│      6. host load         ──▶ allow + delay (low)   │
//	│      │                                              │
//	│      ▼                                              │
//	│  {allowed, reason, delay_seconds}                   │
//	└──────┬──────────────┬───────────────┬───────────────┘
//	       ▼              ▼               ▼
//	  storage.Store  ResourceMonitor  AnomalyLogger
//	  (profiles)     (gopsutil)       (JSONL + hook)
//
// The first failing check denies and short-circuits. Overload is the
// exception: it never denies, it attaches an advisory delay so the
// caller can pace launches. An admitted call consumes exactly one rate
// limit token; denials consume nothing.
//
// # Core Components
//
//   - Policy: the ordered admission checks over shared counters
//   - tokenBucket: lazily refilled per-user limiter, capacity =
//     max_requests_per_minute refilling fully each minute
//   - ResourceMonitor: cached CPU/memory sampling every 5s
//   - AnomalyLogger: append-only JSON-lines log, bounded in-memory
//     buffer, synchronous hook for dashboards
//
// Profiles are read from the store on every check, so a block or tier
// change applies to the very next start attempt. Ephemeral state
// (buckets, running sets, start windows) lives in memory only.
//
// # Rapid Restart Detection
//
// Five or more starts by one user inside a minute is recorded as a
// rapid_restart anomaly but still admitted. It exists to surface churn
// to operators, not to fight the orchestrator's own restart logic.
//
// # Usage
//
//	policy := security.New(store, monitor, anomalies)
//
//	decision := policy.CheckCanStart("alice", "api", 8003)
//	if !decision.Allowed {
//		return fmt.Errorf("%w: %s", errdefs.ErrPolicyDenied, decision.Reason)
//	}
//	if decision.DelaySeconds > 0 {
//		time.Sleep(time.Duration(decision.DelaySeconds * float64(time.Second)))
//	}
//	policy.RecordStart("alice", "api")
//
// # See Also
//
//   - pkg/storage: persisted user profiles
//   - pkg/orchestrator: invokes the policy before each start
//   - pkg/types: UserProfile, AnomalyEvent, PolicyDecision
package security
