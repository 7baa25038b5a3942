/*
Package types defines the shared domain vocabulary for pactown.

These are the data structures exchanged between the resolver, registry,
sandbox manager, security policy, and orchestrator. The package has no
behavior beyond small accessors and carries no dependencies, so every
other package can import it without cycles.

# Core Types

Service identity and lifecycle:
  - ServiceEndpoint: registered host/port identity, persisted by the registry
  - SandboxState: created → materialized → starting → running → stopping → dead
  - StartResult / StartOutcome: tagged outcome of a start attempt
  - ServiceStatus: point-in-time view for status output and the admin API

Multi-tenant policy:
  - Tier / UserProfile: per-tenant quota set (free, basic, pro, enterprise)
  - PolicyDecision: allow/deny plus advisory delay
  - AnomalyType / Severity / AnomalyEvent: the append-only anomaly record

# Stability

ServiceEndpoint and AnomalyEvent JSON tags define on-disk formats
(.pactown-services.json and the anomaly JSONL log). Changing them breaks
reload of state written by earlier runs.

# See Also

  - pkg/registry: Persists ServiceEndpoint records
  - pkg/security: Produces PolicyDecision and AnomalyEvent values
  - pkg/orchestrator: Aggregates ServiceStatus for status reporting
*/
package types
