package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/pactown/pactown/pkg/types"
)

var (
	// Bucket names
	bucketProfiles = []byte("profiles")
)

// DBFileName is the policy database file under the sandbox root.
const DBFileName = "pactown.db"

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the policy database under dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketProfiles); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketProfiles, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutProfile stores or replaces a user profile
func (s *BoltStore) PutProfile(profile *types.UserProfile) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		return b.Put([]byte(profile.UserID), data)
	})
}

// GetProfile loads the profile for userID, or ErrProfileNotFound
func (s *BoltStore) GetProfile(userID string) (*types.UserProfile, error) {
	var profile types.UserProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
		}
		return json.Unmarshal(data, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfiles returns all stored profiles sorted by user ID
func (s *BoltStore) ListProfiles() ([]*types.UserProfile, error) {
	var profiles []*types.UserProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		return b.ForEach(func(k, v []byte) error {
			var profile types.UserProfile
			if err := json.Unmarshal(v, &profile); err != nil {
				return err
			}
			profiles = append(profiles, &profile)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].UserID < profiles[j].UserID })
	return profiles, nil
}

// DeleteProfile removes the profile for userID. Deleting a missing
// profile is not an error.
func (s *BoltStore) DeleteProfile(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		return b.Delete([]byte(userID))
	})
}
