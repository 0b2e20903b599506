package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temporary directory and repository for testing
func setupTestRepo(t *testing.T) (*FileProfileRepository, string) {
	tempDir := t.TempDir()

	repo, err := NewFileProfileRepository(tempDir)
	require.NoError(t, err)

	return repo, tempDir
}

func TestFileProfileRepository_NewRepository(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "profiles")

	// Should create directory if it doesn't exist
	repo, err := NewFileProfileRepository(tempDir)
	assert.NoError(t, err)
	assert.NotNil(t, repo)
	assert.DirExists(t, tempDir)
}

func TestFileProfileRepository_Persistence(t *testing.T) {
	repo, tempDir := setupTestRepo(t)
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}
	now := time.Now().Truncate(time.Millisecond)

	a := createTestProfile(t, "1440", now)
	b := createTestProfile(t, "1920", now.Add(time.Minute))
	require.NoError(t, repo.PutProfiles(ctx, key, []Profile{a, b}))
	assert.FileExists(t, filepath.Join(tempDir, profilesFileName))

	// A second repository over the same directory sees the data
	reopened, err := NewFileProfileRepository(tempDir)
	require.NoError(t, err)

	profiles, err := reopened.GetProfiles(ctx, key)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, a.ID, profiles[0].ID)
	assert.Equal(t, b.ID, profiles[1].ID)
	assert.True(t, a.LastSelectedDate.Equal(profiles[0].LastSelectedDate))
	assert.True(t, b.Attributes.Equal(profiles[1].Attributes))
	assert.Equal(t, b.Attributes.Keys(), profiles[1].Attributes.Keys())
}

func TestFileProfileRepository_UpdateProfiles(t *testing.T) {
	repo, tempDir := setupTestRepo(t)
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}
	a := createTestProfile(t, "1440", time.Now())

	_, err := repo.UpdateProfiles(ctx, key, func(profiles []Profile) ([]Profile, error) {
		return append(profiles, a), nil
	})
	require.NoError(t, err)

	_, err = repo.UpdateProfiles(ctx, key, func(profiles []Profile) ([]Profile, error) {
		return profiles[:0], nil
	})
	require.NoError(t, err)

	reopened, err := NewFileProfileRepository(tempDir)
	require.NoError(t, err)
	profiles, err := reopened.GetProfiles(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestFileProfileRepository_WriteFailureKeepsPreviousState(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("Skipping permission test when running as root")
	}

	repo, tempDir := setupTestRepo(t)
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}
	a := createTestProfile(t, "1440", time.Now())
	require.NoError(t, repo.PutProfiles(ctx, key, []Profile{a}))

	require.NoError(t, os.Chmod(tempDir, 0500))
	t.Cleanup(func() { _ = os.Chmod(tempDir, 0755) })

	err := repo.PutProfiles(ctx, key, []Profile{a, createTestProfile(t, "1920", time.Now())})
	assert.Error(t, err)

	profiles, err := repo.GetProfiles(ctx, key)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, a.ID, profiles[0].ID)
}

func TestFileProfileRepository_EmptyFile(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, profilesFileName), nil, 0600))

	repo, err := NewFileProfileRepository(tempDir)
	require.NoError(t, err)

	profiles, err := repo.GetProfiles(context.Background(), UserKey{Realm: "/", Username: "alice"})
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
