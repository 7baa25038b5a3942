// Package storage persists policy state that must survive process
// restarts, backed by BoltDB.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│             BoltStore                │
//	│                                      │
//	│  <sandbox_root>/pactown.db           │
//	│    └── profiles: user_id → JSON      │
//	└──────────────────────────────────────┘
//
// Profiles record each tenant's tier, quotas and blocked flag. The
// security policy reads them at admission time and the policy CLI
// commands write them, so a block issued today still holds after the
// next restart. Ephemeral policy state (token buckets, start windows)
// deliberately stays in memory.
//
// # Usage
//
//	store, err := storage.NewBoltStore(sandboxRoot)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	profile, err := store.GetProfile("alice")
//	if errors.Is(err, storage.ErrProfileNotFound) {
//		profile = security.DefaultProfile("alice", types.TierFree)
//	}
//
// # See Also
//
//   - pkg/security: consumes profiles during admission checks
//   - pkg/types: the UserProfile record stored here
package storage
