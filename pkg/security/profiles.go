package security

import (
	"time"

	"github.com/pactown/pactown/pkg/types"
)

// tierQuotas maps each tier to its default limits: concurrent
// services, memory MB, CPU percent, requests per minute, service
// starts per hour.
var tierQuotas = map[types.Tier]struct {
	concurrent int
	memoryMB   int
	cpuPercent int
	perMinute  int
	perHour    int
}{
	types.TierFree:       {2, 256, 25, 20, 5},
	types.TierBasic:      {5, 512, 50, 60, 20},
	types.TierPro:        {10, 2048, 80, 120, 50},
	types.TierEnterprise: {50, 8192, 100, 500, 200},
}

// DefaultProfile builds a profile for userID with the quota set of the
// given tier. Unknown tiers fall back to free.
func DefaultProfile(userID string, tier types.Tier) *types.UserProfile {
	quotas, ok := tierQuotas[tier]
	if !ok {
		tier = types.TierFree
		quotas = tierQuotas[types.TierFree]
	}
	now := time.Now().UTC()
	return &types.UserProfile{
		UserID:                userID,
		Tier:                  tier,
		MaxConcurrentServices: quotas.concurrent,
		MaxMemoryMB:           quotas.memoryMB,
		MaxCPUPercent:         quotas.cpuPercent,
		MaxRequestsPerMinute:  quotas.perMinute,
		MaxServicesPerHour:    quotas.perHour,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
