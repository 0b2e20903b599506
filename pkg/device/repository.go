package device

import (
	"context"
	"time"

	"github.com/tendant/simple-deviceid/pkg/attributes"
)

const (
	DefaultMaxProfilesAllowed = 5 // Default bound on trusted devices per user
)

// UserKey identifies a user's device collection
type UserKey struct {
	Realm    string `json:"realm"`
	Username string `json:"username"`
}

// Profile is one trusted device fingerprint
type Profile struct {
	ID               string          `json:"id"` // Immutable once assigned
	Name             string          `json:"name"`
	Attributes       *attributes.Map `json:"attributes"`
	SelectionCount   int             `json:"selection_count"`
	LastSelectedDate time.Time       `json:"last_selected_date"` // Drives LRU eviction
	CreatedAt        time.Time       `json:"created_at"`
}

// Clone returns a copy that shares no attribute storage with p
func (p Profile) Clone() Profile {
	p.Attributes = p.Attributes.Clone()
	return p
}

// CloneProfiles deep-copies a collection
func CloneProfiles(profiles []Profile) []Profile {
	out := make([]Profile, len(profiles))
	for i, p := range profiles {
		out[i] = p.Clone()
	}
	return out
}

// UpdateFunc receives the current collection and returns the collection to store.
// Returning an error aborts the update without writing.
type UpdateFunc func(profiles []Profile) ([]Profile, error)

// ProfileRepository defines the interface for device profile storage operations
type ProfileRepository interface {
	// GetProfiles returns the stored collection in insertion order, empty when none exist
	GetProfiles(ctx context.Context, key UserKey) ([]Profile, error)

	// PutProfiles replaces the stored collection. An empty collection removes the key.
	PutProfiles(ctx context.Context, key UserKey, profiles []Profile) error

	// UpdateProfiles performs read-modify-write atomically for key: concurrent updates of
	// the same key never interleave, and either the whole result lands or nothing does.
	UpdateProfiles(ctx context.Context, key UserKey, fn UpdateFunc) ([]Profile, error)
}
