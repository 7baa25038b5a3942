package security

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/metrics"
	"github.com/pactown/pactown/pkg/storage"
	"github.com/pactown/pactown/pkg/types"
)

const (
	// startWindow is the sliding window for the hourly start quota.
	startWindow = time.Hour

	// rapidRestartWindow and rapidRestartThreshold flag abusive
	// start churn. Detection is log-only.
	rapidRestartWindow    = time.Minute
	rapidRestartThreshold = 5
)

// Policy is the admission gate for service starts. Profiles are read
// from the store on every check, so mutations apply to the next call.
// All methods are safe for concurrent use.
type Policy struct {
	store     storage.Store
	monitor   *ResourceMonitor
	anomalies *AnomalyLogger

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	running map[string]map[string]bool
	starts  map[string][]time.Time

	logger zerolog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a policy over the given profile store, load monitor and
// anomaly logger.
func New(store storage.Store, monitor *ResourceMonitor, anomalies *AnomalyLogger) *Policy {
	return &Policy{
		store:     store,
		monitor:   monitor,
		anomalies: anomalies,
		buckets:   make(map[string]*tokenBucket),
		running:   make(map[string]map[string]bool),
		starts:    make(map[string][]time.Time),
		logger:    log.WithComponent("policy"),
		now:       time.Now,
	}
}

// Anomalies exposes the logger for summary queries.
func (p *Policy) Anomalies() *AnomalyLogger {
	return p.anomalies
}

// CheckCanStart runs the admission checks for one start request, in
// order: block, rate limit, concurrent quota, hourly quota, port
// allowlist, server load. The first failed check denies; overload
// never denies but attaches a delay. An admitted call consumes one
// rate limit token.
func (p *Policy) CheckCanStart(userID, serviceID string, port int) types.PolicyDecision {
	profile := p.ProfileOrDefault(userID)
	now := p.now()

	if profile.Blocked {
		reason := profile.BlockedReason
		if reason == "" {
			reason = "no reason provided"
		}
		return p.deny(types.AnomalyEvent{
			Type:      types.AnomalyUnauthorizedAccess,
			Severity:  types.SeverityHigh,
			UserID:    userID,
			ServiceID: serviceID,
			Details:   fmt.Sprintf("blocked user %s attempted to start a service", userID),
		}, "user blocked: "+reason, 0)
	}

	p.mu.Lock()
	bucket := p.bucketLocked(userID, profile.MaxRequestsPerMinute, now)
	if !bucket.available(now) {
		wait := bucket.waitTime(now).Seconds()
		p.mu.Unlock()
		return p.deny(types.AnomalyEvent{
			Type:      types.AnomalyRateLimitExceeded,
			Severity:  types.SeverityMedium,
			UserID:    userID,
			ServiceID: serviceID,
			Details:   fmt.Sprintf("user %s exceeded the start rate limit", userID),
			Metadata:  map[string]string{"wait_seconds": fmt.Sprintf("%.1f", wait)},
		}, fmt.Sprintf("rate limit exceeded, wait %.1fs", wait), wait)
	}

	runningCount := len(p.running[userID])
	if runningCount >= profile.MaxConcurrentServices {
		p.mu.Unlock()
		return p.deny(types.AnomalyEvent{
			Type:      types.AnomalyConcurrentLimitExceeded,
			Severity:  types.SeverityMedium,
			UserID:    userID,
			ServiceID: serviceID,
			Details: fmt.Sprintf("user %s at max concurrent services (%d/%d)",
				userID, runningCount, profile.MaxConcurrentServices),
			Metadata: map[string]string{
				"current": strconv.Itoa(runningCount),
				"max":     strconv.Itoa(profile.MaxConcurrentServices),
			},
		}, fmt.Sprintf("max concurrent services reached (%d/%d), stop a service first",
			runningCount, profile.MaxConcurrentServices), 0)
	}

	p.pruneStartsLocked(userID, now)
	hourly := len(p.starts[userID])
	if hourly >= profile.MaxServicesPerHour {
		p.mu.Unlock()
		return p.deny(types.AnomalyEvent{
			Type:      types.AnomalyHourlyLimitExceeded,
			Severity:  types.SeverityMedium,
			UserID:    userID,
			ServiceID: serviceID,
			Details: fmt.Sprintf("user %s exceeded the hourly start limit (%d/%d)",
				userID, hourly, profile.MaxServicesPerHour),
		}, fmt.Sprintf("hourly service limit reached (%d/%d), try again later",
			hourly, profile.MaxServicesPerHour), 0)
	}

	recentStarts := 0
	for _, t := range p.starts[userID] {
		if now.Sub(t) < rapidRestartWindow {
			recentStarts++
		}
	}
	p.mu.Unlock()

	if port > 0 && !profile.PortAllowed(port) {
		return p.deny(types.AnomalyEvent{
			Type:      types.AnomalyUnauthorizedAccess,
			Severity:  types.SeverityHigh,
			UserID:    userID,
			ServiceID: serviceID,
			Details:   fmt.Sprintf("user %s attempted to use restricted port %d", userID, port),
			Metadata:  map[string]string{"port": strconv.Itoa(port)},
		}, fmt.Sprintf("port %d not allowed for this account", port), 0)
	}

	decision := types.PolicyDecision{Allowed: true}

	if overloaded, reading := p.monitor.Overloaded(); overloaded {
		delay := p.monitor.ThrottleDelay().Seconds()
		decision.Reason = fmt.Sprintf("server under load, start delayed %.1fs", delay)
		decision.DelaySeconds = delay
		p.anomalies.Log(types.AnomalyEvent{
			Type:      types.AnomalyServerOverloaded,
			Severity:  types.SeverityLow,
			UserID:    userID,
			ServiceID: serviceID,
			Details:   fmt.Sprintf("server overloaded, throttling user %s", userID),
			Metadata: map[string]string{
				"cpu_percent":    fmt.Sprintf("%.1f", reading.CPUPercent),
				"memory_percent": fmt.Sprintf("%.1f", reading.MemoryPercent),
			},
		})
	}

	if recentStarts >= rapidRestartThreshold {
		// Allowed, but recorded for review.
		p.anomalies.Log(types.AnomalyEvent{
			Type:      types.AnomalyRapidRestart,
			Severity:  types.SeverityMedium,
			UserID:    userID,
			ServiceID: serviceID,
			Details: fmt.Sprintf("user %s showing rapid restart pattern (%d in %s)",
				userID, recentStarts, rapidRestartWindow),
			Metadata: map[string]string{"starts_last_minute": strconv.Itoa(recentStarts)},
		})
	}

	p.mu.Lock()
	p.bucketLocked(userID, profile.MaxRequestsPerMinute, now).consume(p.now())
	p.mu.Unlock()

	return decision
}

// RecordStart registers an admitted service as running and counts it
// against the hourly window.
func (p *Policy) RecordStart(userID, serviceID string) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running[userID] == nil {
		p.running[userID] = make(map[string]bool)
	}
	p.running[userID][serviceID] = true
	p.starts[userID] = append(p.starts[userID], now)
	p.pruneStartsLocked(userID, now)
}

// RecordStop removes a service from the user's running set.
func (p *Policy) RecordStop(userID, serviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running[userID], serviceID)
}

// RunningCount returns how many services the user currently runs.
func (p *Policy) RunningCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running[userID])
}

// StartsLastHour returns the size of the user's sliding start window.
func (p *Policy) StartsLastHour(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneStartsLocked(userID, p.now())
	return len(p.starts[userID])
}

// ProfileOrDefault loads the persisted profile for userID, falling
// back to free tier defaults when none exists.
func (p *Policy) ProfileOrDefault(userID string) *types.UserProfile {
	profile, err := p.store.GetProfile(userID)
	if err != nil {
		if !errors.Is(err, storage.ErrProfileNotFound) {
			p.logger.Error().Err(err).Str("user", userID).Msg("Failed to load profile")
		}
		return DefaultProfile(userID, types.TierFree)
	}
	return profile
}

// SetProfile persists a profile as-is.
func (p *Policy) SetProfile(profile *types.UserProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	return p.store.PutProfile(profile)
}

// SetTier rebuilds the user's quotas from tier defaults, preserving
// block state and port restrictions.
func (p *Policy) SetTier(userID string, tier types.Tier) (*types.UserProfile, error) {
	next := DefaultProfile(userID, tier)
	if existing, err := p.store.GetProfile(userID); err == nil {
		next.AllowedPorts = existing.AllowedPorts
		next.Blocked = existing.Blocked
		next.BlockedReason = existing.BlockedReason
		next.CreatedAt = existing.CreatedAt
	}
	next.UpdatedAt = time.Now().UTC()
	if err := p.store.PutProfile(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Block denies all future starts for userID until Unblock.
func (p *Policy) Block(userID, reason string) error {
	profile := p.ProfileOrDefault(userID)
	profile.Blocked = true
	profile.BlockedReason = reason
	return p.SetProfile(profile)
}

// Unblock lifts a block.
func (p *Policy) Unblock(userID string) error {
	profile := p.ProfileOrDefault(userID)
	profile.Blocked = false
	profile.BlockedReason = ""
	return p.SetProfile(profile)
}

// Profiles lists all persisted profiles.
func (p *Policy) Profiles() ([]*types.UserProfile, error) {
	return p.store.ListProfiles()
}

func (p *Policy) deny(event types.AnomalyEvent, reason string, delaySeconds float64) types.PolicyDecision {
	p.anomalies.Log(event)
	metrics.PolicyDenials.WithLabelValues(string(event.Type)).Inc()
	return types.PolicyDecision{Allowed: false, Reason: reason, DelaySeconds: delaySeconds}
}

// bucketLocked returns the user's token bucket, rebuilding it when the
// profile's rate changed (e.g. after a tier upgrade).
func (p *Policy) bucketLocked(userID string, perMinute int, now time.Time) *tokenBucket {
	bucket, ok := p.buckets[userID]
	if !ok || int(bucket.capacity) != perMinute {
		bucket = newTokenBucket(perMinute, now)
		p.buckets[userID] = bucket
	}
	return bucket
}

func (p *Policy) pruneStartsLocked(userID string, now time.Time) {
	starts := p.starts[userID]
	kept := starts[:0]
	for _, t := range starts {
		if now.Sub(t) < startWindow {
			kept = append(kept, t)
		}
	}
	p.starts[userID] = kept
}
