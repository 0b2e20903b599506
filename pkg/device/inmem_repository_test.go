package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-deviceid/pkg/attributes"
)

// mustAttrs parses a JSON fingerprint document
func mustAttrs(t *testing.T, doc string) *attributes.Map {
	t.Helper()
	m, err := attributes.ParseString(doc)
	require.NoError(t, err)
	return m
}

// createTestProfile creates a profile with a single distinguishing attribute
func createTestProfile(t *testing.T, screen string, lastSelected time.Time) Profile {
	return Profile{
		ID:               uuid.New().String(),
		Name:             "Test Device",
		Attributes:       mustAttrs(t, `{"userAgent":"Mozilla/5.0 (Macintosh)","screen":{"width":`+screen+`,"height":900}}`),
		LastSelectedDate: lastSelected.UTC(),
		CreatedAt:        lastSelected.UTC(),
	}
}

func TestInMemProfileRepository_GetProfiles_Empty(t *testing.T) {
	repo := NewInMemProfileRepository()

	profiles, err := repo.GetProfiles(context.Background(), UserKey{Realm: "/", Username: "alice"})
	require.NoError(t, err)
	assert.NotNil(t, profiles)
	assert.Empty(t, profiles)
}

func TestInMemProfileRepository_PutAndGet(t *testing.T) {
	repo := NewInMemProfileRepository()
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}
	now := time.Now()

	a := createTestProfile(t, "1440", now)
	b := createTestProfile(t, "1920", now.Add(time.Second))
	require.NoError(t, repo.PutProfiles(ctx, key, []Profile{a, b}))

	profiles, err := repo.GetProfiles(ctx, key)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, a.ID, profiles[0].ID)
	assert.Equal(t, b.ID, profiles[1].ID)
	assert.True(t, a.Attributes.Equal(profiles[0].Attributes))

	// Other users are not affected
	other, err := repo.GetProfiles(ctx, UserKey{Realm: "/", Username: "bob"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestInMemProfileRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemProfileRepository()
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}

	require.NoError(t, repo.PutProfiles(ctx, key, []Profile{createTestProfile(t, "1440", time.Now())}))

	profiles, err := repo.GetProfiles(ctx, key)
	require.NoError(t, err)
	profiles[0].Name = "changed"
	profiles[0].Attributes.Set("injected", attributes.Bool(true))

	again, err := repo.GetProfiles(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Test Device", again[0].Name)
	_, found := again[0].Attributes.Get("injected")
	assert.False(t, found)
}

func TestInMemProfileRepository_PutEmptyRemovesKey(t *testing.T) {
	repo := NewInMemProfileRepository()
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}

	require.NoError(t, repo.PutProfiles(ctx, key, []Profile{createTestProfile(t, "1440", time.Now())}))
	require.NoError(t, repo.PutProfiles(ctx, key, nil))

	assert.NotContains(t, repo.collections, key)
}

func TestInMemProfileRepository_UpdateProfiles(t *testing.T) {
	repo := NewInMemProfileRepository()
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}
	a := createTestProfile(t, "1440", time.Now())

	updated, err := repo.UpdateProfiles(ctx, key, func(profiles []Profile) ([]Profile, error) {
		assert.Empty(t, profiles)
		return append(profiles, a), nil
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	// A failing update leaves the stored collection untouched
	boom := errors.New("boom")
	_, err = repo.UpdateProfiles(ctx, key, func(profiles []Profile) ([]Profile, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	profiles, err := repo.GetProfiles(ctx, key)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, a.ID, profiles[0].ID)
}

func TestInMemProfileRepository_CancelledContext(t *testing.T) {
	repo := NewInMemProfileRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetProfiles(ctx, UserKey{Realm: "/", Username: "alice"})
	assert.ErrorIs(t, err, context.Canceled)
}
