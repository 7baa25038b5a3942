package types

import (
	"fmt"
	"strings"
	"time"
)

// ServiceEndpoint is the registered network identity of a service.
// It is what dependents discover through injected environment.
type ServiceEndpoint struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	HealthCheck string `json:"health_check,omitempty"`
}

// URL returns the base URL of the endpoint.
func (e ServiceEndpoint) URL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// HealthURL returns the full health check URL, or the base URL when no
// health check path is configured.
func (e ServiceEndpoint) HealthURL() string {
	return e.URL() + e.HealthCheck
}

// EnvName maps a service name to its environment variable prefix:
// uppercase with "-" and "." replaced by "_".
func EnvName(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.ReplaceAll(upper, "-", "_")
	return strings.ReplaceAll(upper, ".", "_")
}

// SandboxState represents the lifecycle state of a sandbox
type SandboxState string

const (
	SandboxCreated      SandboxState = "created"
	SandboxMaterialized SandboxState = "materialized"
	SandboxStarting     SandboxState = "starting"
	SandboxRunning      SandboxState = "running"
	SandboxStopping     SandboxState = "stopping"
	SandboxDead         SandboxState = "dead"
)

// StartOutcome tags the result of a service start attempt
type StartOutcome string

const (
	StartHealthy StartOutcome = "healthy" // health check passed
	StartExited  StartOutcome = "exited"  // process died before healthy
	StartTimeout StartOutcome = "timeout" // health deadline elapsed
	StartSkipped StartOutcome = "skipped" // health probing disabled
)

// StartResult is the tagged outcome of starting one service.
type StartResult struct {
	Service    string
	Endpoint   ServiceEndpoint
	Outcome    StartOutcome
	PID        int
	ExitStatus int // meaningful only when Outcome == StartExited
}

// ServiceStatus is a point-in-time view of one managed service.
type ServiceStatus struct {
	Name           string        `json:"name"`
	State          SandboxState  `json:"state"`
	Port           int           `json:"port"`
	PID            int           `json:"pid,omitempty"`
	Health         string        `json:"health"` // healthy, unhealthy, stopped, unknown
	Uptime         time.Duration `json:"uptime,omitempty"`
	ResponseTimeMS float64       `json:"response_time_ms,omitempty"`
}

// Tier is a subscription tier controlling resource quotas
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// UserProfile holds the per-tenant quota set enforced by the policy.
// A nil AllowedPorts means any port is permitted.
type UserProfile struct {
	UserID                string    `json:"user_id"`
	Tier                  Tier      `json:"tier"`
	MaxConcurrentServices int       `json:"max_concurrent_services"`
	MaxMemoryMB           int       `json:"max_memory_mb"`
	MaxCPUPercent         int       `json:"max_cpu_percent"`
	MaxRequestsPerMinute  int       `json:"max_requests_per_minute"`
	MaxServicesPerHour    int       `json:"max_services_per_hour"`
	AllowedPorts          []int     `json:"allowed_ports,omitempty"`
	Blocked               bool      `json:"blocked"`
	BlockedReason         string    `json:"blocked_reason,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// PortAllowed reports whether the profile permits binding port.
func (p *UserProfile) PortAllowed(port int) bool {
	if p.AllowedPorts == nil {
		return true
	}
	for _, allowed := range p.AllowedPorts {
		if allowed == port {
			return true
		}
	}
	return false
}

// AnomalyType classifies a policy anomaly
type AnomalyType string

const (
	AnomalyUnauthorizedAccess      AnomalyType = "unauthorized_access"
	AnomalyRateLimitExceeded       AnomalyType = "rate_limit_exceeded"
	AnomalyConcurrentLimitExceeded AnomalyType = "concurrent_limit_exceeded"
	AnomalyHourlyLimitExceeded     AnomalyType = "hourly_limit_exceeded"
	AnomalyServerOverloaded        AnomalyType = "server_overloaded"
	AnomalyRapidRestart            AnomalyType = "rapid_restart"
	AnomalyResourceAbuse           AnomalyType = "resource_abuse"
	AnomalySuspiciousPattern       AnomalyType = "suspicious_pattern"
)

// Severity ranks how serious an anomaly is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyEvent is one recorded policy anomaly. The JSON field set is
// the on-disk log format and must stay stable.
type AnomalyEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AnomalyType       `json:"type"`
	Severity  Severity          `json:"severity"`
	UserID    string            `json:"user_id"`
	ServiceID string            `json:"service_id"`
	Details   string            `json:"details"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PolicyDecision is the outcome of an admission check. DelaySeconds
// is advisory backpressure: for denials it is the earliest retry, for
// allowed-under-load it is the pause before launch.
type PolicyDecision struct {
	Allowed      bool    `json:"allowed"`
	Reason       string  `json:"reason,omitempty"`
	DelaySeconds float64 `json:"delay_seconds,omitempty"`
}
