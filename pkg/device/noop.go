package device

import (
	"context"
	"fmt"
)

// NoOpProfileRepository is a no-op implementation of ProfileRepository.
// Reads always see an empty collection, so every user matches as having no registered
// device; writes fail because nothing can be stored.
type NoOpProfileRepository struct{}

// NewNoOpProfileRepository creates a new no-op profile repository.
// Use this when device recognition is switched off.
func NewNoOpProfileRepository() ProfileRepository {
	return &NoOpProfileRepository{}
}

func (r *NoOpProfileRepository) GetProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	return []Profile{}, nil
}

func (r *NoOpProfileRepository) PutProfiles(ctx context.Context, key UserKey, profiles []Profile) error {
	return fmt.Errorf("device profile storage not configured")
}

func (r *NoOpProfileRepository) UpdateProfiles(ctx context.Context, key UserKey, fn UpdateFunc) ([]Profile, error) {
	return nil, fmt.Errorf("device profile storage not configured")
}
