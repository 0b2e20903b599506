package device

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-deviceid/pkg/attributes"
	idmerrors "github.com/tendant/simple-deviceid/pkg/errors"
)

const maxIDAttempts = 3

// ProfileStore maintains the bounded set of trusted device profiles per user.
// Writes for the same UserKey are serialized; different users proceed in parallel.
type ProfileStore struct {
	repo  ProfileRepository
	locks *keyLock
	now   func() time.Time
	newID func() string
}

// ProfileStoreOption configures a ProfileStore
type ProfileStoreOption func(*ProfileStore)

// WithClock overrides the time source used for LastSelectedDate and CreatedAt
func WithClock(now func() time.Time) ProfileStoreOption {
	return func(s *ProfileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides profile id generation
func WithIDGenerator(newID func() string) ProfileStoreOption {
	return func(s *ProfileStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewProfileStore creates a store over repo
func NewProfileStore(repo ProfileRepository, opts ...ProfileStoreOption) *ProfileStore {
	s := &ProfileStore{
		repo:  repo,
		locks: newKeyLock(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadProfiles returns the stored profiles for key in insertion order, empty when none exist
func (s *ProfileStore) LoadProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	profiles, err := s.repo.GetProfiles(ctx, key)
	if err != nil {
		slog.Error("Failed to load device profiles", "realm", key.Realm, "username", key.Username, "error", err)
		return nil, storageError(err, key, "load_profiles")
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// SaveDevicePrint stores attrs under a generated name, evicting the least recently used
// profile first when the collection is full.
func (s *ProfileStore) SaveDevicePrint(ctx context.Context, key UserKey, attrs *attributes.Map, maxAllowed int) (Profile, error) {
	return s.save(ctx, key, "", attrs, maxAllowed)
}

// SaveNamedDevicePrint is SaveDevicePrint with a caller supplied name.
// A blank name falls back to the generated one.
func (s *ProfileStore) SaveNamedDevicePrint(ctx context.Context, key UserKey, name string, attrs *attributes.Map, maxAllowed int) (Profile, error) {
	return s.save(ctx, key, strings.TrimSpace(name), attrs, maxAllowed)
}

func (s *ProfileStore) save(ctx context.Context, key UserKey, name string, attrs *attributes.Map, maxAllowed int) (Profile, error) {
	if err := validateKey(key); err != nil {
		return Profile{}, err
	}
	if maxAllowed < 1 {
		return Profile{}, idmerrors.InvalidInput("max_allowed", "must be at least 1")
	}
	if attrs.IsEmpty() {
		return Profile{}, idmerrors.EmptyProfile()
	}
	if err := attributes.Validate(attrs); err != nil {
		return Profile{}, idmerrors.MalformedAttributes(err)
	}

	digest := attributes.Digest(attrs)
	var (
		saved     Profile
		evicted   []string
		refreshed bool
	)

	_, err := s.update(ctx, key, "save_profile", func(profiles []Profile) ([]Profile, error) {
		now := s.now()

		// An identical fingerprint is the same device coming back
		for i := range profiles {
			if attributes.Digest(profiles[i].Attributes) != digest {
				continue
			}
			profiles[i].Attributes = attrs.Clone()
			profiles[i].LastSelectedDate = now
			profiles[i].SelectionCount++
			if name != "" {
				profiles[i].Name = name
			}
			saved = profiles[i].Clone()
			refreshed = true
			profiles, evicted = evictLeastRecentlyUsed(profiles, maxAllowed, saved.ID)
			return profiles, nil
		}

		profiles, evicted = evictLeastRecentlyUsed(profiles, maxAllowed-1, "")

		id, err := s.uniqueID(profiles)
		if err != nil {
			return nil, err
		}
		profile := Profile{
			ID:               id,
			Name:             name,
			Attributes:       attrs.Clone(),
			LastSelectedDate: now,
			CreatedAt:        now,
		}
		if profile.Name == "" {
			profile.Name = GenerateProfileName(attrs, id)
		}

		saved = profile.Clone()
		return append(profiles, profile), nil
	})
	if err != nil {
		return Profile{}, err
	}

	if refreshed {
		slog.Info("Device profile refreshed", "realm", key.Realm, "username", key.Username, "profile_id", saved.ID)
	} else {
		slog.Info("Device profile saved", "realm", key.Realm, "username", key.Username, "profile_id", saved.ID, "evicted", len(evicted))
	}
	for _, id := range evicted {
		slog.Debug("Device profile evicted", "realm", key.Realm, "username", key.Username, "profile_id", id)
	}
	return saved, nil
}

// TouchProfile marks a profile as just used, moving it to the back of the eviction order
func (s *ProfileStore) TouchProfile(ctx context.Context, key UserKey, id string) (Profile, error) {
	var touched Profile
	_, err := s.update(ctx, key, "touch_profile", func(profiles []Profile) ([]Profile, error) {
		idx := indexOf(profiles, id)
		if idx < 0 {
			return nil, idmerrors.NotFound("device profile", id)
		}
		profiles[idx].LastSelectedDate = s.now()
		profiles[idx].SelectionCount++
		touched = profiles[idx].Clone()
		return profiles, nil
	})
	if err != nil {
		return Profile{}, err
	}

	slog.Debug("Device profile touched", "realm", key.Realm, "username", key.Username, "profile_id", id)
	return touched, nil
}

// RenameProfile replaces a profile's display name
func (s *ProfileStore) RenameProfile(ctx context.Context, key UserKey, id, name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, idmerrors.InvalidInput("name", "must not be blank")
	}

	var renamed Profile
	_, err := s.update(ctx, key, "rename_profile", func(profiles []Profile) ([]Profile, error) {
		idx := indexOf(profiles, id)
		if idx < 0 {
			return nil, idmerrors.NotFound("device profile", id)
		}
		profiles[idx].Name = name
		renamed = profiles[idx].Clone()
		return profiles, nil
	})
	if err != nil {
		return Profile{}, err
	}

	slog.Info("Device profile renamed", "realm", key.Realm, "username", key.Username, "profile_id", id)
	return renamed, nil
}

// DeleteProfile removes a profile. Removing the last profile removes the collection.
func (s *ProfileStore) DeleteProfile(ctx context.Context, key UserKey, id string) error {
	_, err := s.update(ctx, key, "delete_profile", func(profiles []Profile) ([]Profile, error) {
		idx := indexOf(profiles, id)
		if idx < 0 {
			return nil, idmerrors.NotFound("device profile", id)
		}
		return append(profiles[:idx], profiles[idx+1:]...), nil
	})
	if err != nil {
		return err
	}

	slog.Info("Device profile deleted", "realm", key.Realm, "username", key.Username, "profile_id", id)
	return nil
}

// update runs fn as one serialized read-modify-write on key. Errors returned by fn reach
// the caller unchanged; anything else that fails is a storage failure.
func (s *ProfileStore) update(ctx context.Context, key UserKey, operation string, fn UpdateFunc) ([]Profile, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var fnErr error
	profiles, err := s.repo.UpdateProfiles(ctx, key, func(current []Profile) ([]Profile, error) {
		updated, err := fn(current)
		fnErr = err
		return updated, err
	})
	if err != nil {
		if fnErr != nil {
			return nil, fnErr
		}
		slog.Error("Failed to update device profiles", "realm", key.Realm, "username", key.Username, "operation", operation, "error", err)
		return nil, storageError(err, key, operation)
	}
	return profiles, nil
}

func (s *ProfileStore) uniqueID(profiles []Profile) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID()
		if id != "" && indexOf(profiles, id) < 0 {
			return id, nil
		}
	}
	return "", idmerrors.Internal("could not generate a unique device profile id")
}

// evictLeastRecentlyUsed removes profiles until at most keep remain and returns the ids
// it removed. The profile with id keepID is never removed.
func evictLeastRecentlyUsed(profiles []Profile, keep int, keepID string) ([]Profile, []string) {
	var evicted []string
	for len(profiles) > keep {
		idx := leastRecentlyUsed(profiles, keepID)
		if idx < 0 {
			break
		}
		evicted = append(evicted, profiles[idx].ID)
		profiles = append(profiles[:idx], profiles[idx+1:]...)
	}
	return profiles, evicted
}

// leastRecentlyUsed returns the index of the profile with the oldest LastSelectedDate,
// skipping skipID, or -1 when nothing is left to pick. Ties go to the earliest entry.
func leastRecentlyUsed(profiles []Profile, skipID string) int {
	idx := -1
	for i := range profiles {
		if skipID != "" && profiles[i].ID == skipID {
			continue
		}
		if idx < 0 || profiles[i].LastSelectedDate.Before(profiles[idx].LastSelectedDate) {
			idx = i
		}
	}
	return idx
}

func indexOf(profiles []Profile, id string) int {
	for i := range profiles {
		if profiles[i].ID == id {
			return i
		}
	}
	return -1
}

func validateKey(key UserKey) error {
	if strings.TrimSpace(key.Username) == "" {
		return idmerrors.InvalidInput("username", "must not be empty")
	}
	return nil
}

func storageError(err error, key UserKey, operation string) error {
	if idmerrors.Is(err, context.Canceled) || idmerrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return idmerrors.StorageUnavailable(err, operation).WithDetails(map[string]interface{}{
		"realm":    key.Realm,
		"username": key.Username,
	})
}
