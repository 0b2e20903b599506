package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-deviceid/pkg/attributes"
	idmerrors "github.com/tendant/simple-deviceid/pkg/errors"
)

// countingReader records how often storage is read
type countingReader struct {
	ProfileReader
	calls int
}

func (r *countingReader) LoadProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	r.calls++
	return r.ProfileReader.LoadProfiles(ctx, key)
}

func TestMatcher_NoCandidateSupplied(t *testing.T) {
	store, _ := setupProfileStore(t)
	reader := &countingReader{ProfileReader: store}
	matcher := NewMatcher(reader)
	key := UserKey{Realm: "/", Username: "alice"}

	for _, candidate := range []*attributes.Map{nil, attributes.NewMap()} {
		result, err := matcher.Match(context.Background(), key, candidate)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoCandidateSupplied, result.Outcome)
	}
	assert.Equal(t, 0, reader.calls)
}

func TestMatcher_NoRegisteredDevice(t *testing.T) {
	store, _ := setupProfileStore(t)
	matcher := NewMatcher(store)
	key := UserKey{Realm: "/", Username: "alice"}

	for i := 0; i < 3; i++ {
		result, err := matcher.Match(context.Background(), key, fingerprint(t, i))
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoRegisteredDevice, result.Outcome)
		assert.Empty(t, result.Profiles)
		assert.Nil(t, result.Identical)
	}
}

func TestMatcher_HasRegisteredDevice(t *testing.T) {
	store, _ := setupProfileStore(t)
	matcher := NewMatcher(store)
	ctx := context.Background()
	key := UserKey{Realm: "/", Username: "alice"}

	a, err := store.SaveDevicePrint(ctx, key, fingerprint(t, 1), 5)
	require.NoError(t, err)
	b, err := store.SaveDevicePrint(ctx, key, fingerprint(t, 2), 5)
	require.NoError(t, err)

	result, err := matcher.Match(ctx, key, fingerprint(t, 7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeHasRegisteredDevice, result.Outcome)
	assert.Equal(t, []string{a.ID, b.ID}, profileIDs(result.Profiles))
	assert.Nil(t, result.Identical)

	result, err = matcher.Match(ctx, key, fingerprint(t, 2))
	require.NoError(t, err)
	require.NotNil(t, result.Identical)
	assert.Equal(t, b.ID, result.Identical.ID)

	// Matching is read-only
	profiles, err := store.LoadProfiles(ctx, key)
	require.NoError(t, err)
	assert.True(t, profiles[1].LastSelectedDate.Equal(b.LastSelectedDate))
}

func TestMatcher_StorageUnavailable(t *testing.T) {
	matcher := NewMatcher(NewProfileStore(failingRepository{}))

	_, err := matcher.Match(context.Background(), UserKey{Realm: "/", Username: "alice"}, fingerprint(t, 1))
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeStorageUnavailable))
}
