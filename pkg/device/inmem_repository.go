package device

import (
	"context"
	"sync"
)

// InMemProfileRepository implements ProfileRepository using in-memory storage
type InMemProfileRepository struct {
	mutex       sync.RWMutex
	collections map[UserKey][]Profile
}

// NewInMemProfileRepository creates a new in-memory profile repository
func NewInMemProfileRepository() *InMemProfileRepository {
	return &InMemProfileRepository{
		collections: make(map[UserKey][]Profile),
	}
}

// GetProfiles returns a copy of the stored collection
func (r *InMemProfileRepository) GetProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return CloneProfiles(r.collections[key]), nil
}

// PutProfiles replaces the stored collection
func (r *InMemProfileRepository) PutProfiles(ctx context.Context, key UserKey, profiles []Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.put(key, profiles)
	return nil
}

// UpdateProfiles runs fn under the repository write lock
func (r *InMemProfileRepository) UpdateProfiles(ctx context.Context, key UserKey, fn UpdateFunc) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	updated, err := fn(CloneProfiles(r.collections[key]))
	if err != nil {
		return nil, err
	}
	r.put(key, updated)
	return CloneProfiles(updated), nil
}

func (r *InMemProfileRepository) put(key UserKey, profiles []Profile) {
	if len(profiles) == 0 {
		delete(r.collections, key)
		return
	}
	r.collections[key] = CloneProfiles(profiles)
}
