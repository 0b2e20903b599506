package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const profilesFileName = "device_profiles.json"

// FileProfileRepository implements ProfileRepository using file-based storage
type FileProfileRepository struct {
	dataDir     string
	collections map[UserKey][]Profile
	mutex       sync.RWMutex
}

// profileData represents the structure of data stored in the JSON file
type profileData struct {
	Collections []collectionRecord `json:"collections"`
}

type collectionRecord struct {
	Realm    string    `json:"realm"`
	Username string    `json:"username"`
	Profiles []Profile `json:"profiles"`
}

// NewFileProfileRepository creates a new file-based profile repository
func NewFileProfileRepository(dataDir string) (*FileProfileRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileProfileRepository{
		dataDir:     dataDir,
		collections: make(map[UserKey][]Profile),
	}

	// Load existing data
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// GetProfiles returns a copy of the stored collection
func (r *FileProfileRepository) GetProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return CloneProfiles(r.collections[key]), nil
}

// PutProfiles replaces the stored collection and persists the file
func (r *FileProfileRepository) PutProfiles(ctx context.Context, key UserKey, profiles []Profile) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.replace(key, profiles)
}

// UpdateProfiles runs fn under the repository write lock and persists the result
func (r *FileProfileRepository) UpdateProfiles(ctx context.Context, key UserKey, fn UpdateFunc) ([]Profile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	updated, err := fn(CloneProfiles(r.collections[key]))
	if err != nil {
		return nil, err
	}
	if err := r.replace(key, updated); err != nil {
		return nil, err
	}
	return CloneProfiles(updated), nil
}

// replace swaps in the new collection and restores the previous one if the write fails
func (r *FileProfileRepository) replace(key UserKey, profiles []Profile) error {
	previous, existed := r.collections[key]

	if len(profiles) == 0 {
		delete(r.collections, key)
	} else {
		r.collections[key] = CloneProfiles(profiles)
	}

	if err := r.save(); err != nil {
		if existed {
			r.collections[key] = previous
		} else {
			delete(r.collections, key)
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads profile data from file
func (r *FileProfileRepository) load() error {
	filePath := filepath.Join(r.dataDir, profilesFileName)

	// If file doesn't exist, start with an empty map
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var pd profileData
	if err := json.Unmarshal(data, &pd); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.collections = make(map[UserKey][]Profile, len(pd.Collections))
	for _, c := range pd.Collections {
		if len(c.Profiles) == 0 {
			continue
		}
		r.collections[UserKey{Realm: c.Realm, Username: c.Username}] = c.Profiles
	}

	return nil
}

// save writes profile data to file atomically
func (r *FileProfileRepository) save() error {
	records := make([]collectionRecord, 0, len(r.collections))
	for key, profiles := range r.collections {
		records = append(records, collectionRecord{
			Realm:    key.Realm,
			Username: key.Username,
			Profiles: profiles,
		})
	}

	jsonData, err := json.MarshalIndent(profileData{Collections: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, profilesFileName+".tmp")
	if err := os.WriteFile(tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(r.dataDir, profilesFileName)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
