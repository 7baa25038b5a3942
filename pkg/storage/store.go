package storage

import (
	"errors"

	"github.com/pactown/pactown/pkg/types"
)

// ErrProfileNotFound is returned when no profile exists for a user.
// Callers typically react by creating a default profile.
var ErrProfileNotFound = errors.New("profile not found")

// Store defines the interface for persisted policy state
type Store interface {
	// Profiles
	PutProfile(profile *types.UserProfile) error
	GetProfile(userID string) (*types.UserProfile, error)
	ListProfiles() ([]*types.UserProfile, error)
	DeleteProfile(userID string) error

	// Utility
	Close() error
}
