package authstate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authstate "github.com/raptorhq/go-authstate"
)

func openTestStorage(t *testing.T) *authstate.BunStorage {
	t.Helper()

	storage, err := authstate.OpenSQLiteStorage("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestBunStorageRoundTrip(t *testing.T) {
	storage := openTestStorage(t)

	_, found, err := storage.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, storage.Set("k1", []byte("v1")))

	got, found, err := storage.Get("k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), got)
}

func TestBunStorageUpsert(t *testing.T) {
	storage := openTestStorage(t)

	require.NoError(t, storage.Set("k1", []byte("v1")))
	require.NoError(t, storage.Set("k1", []byte("v2")))

	got, found, err := storage.Get("k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v2"), got)
}

func TestBunStorageDelete(t *testing.T) {
	storage := openTestStorage(t)

	require.NoError(t, storage.Set("k1", []byte("v1")))
	require.NoError(t, storage.Delete("k1"))

	_, found, err := storage.Get("k1")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	require.NoError(t, storage.Delete("k1"))
}

func TestBunStorageBacksSessionStore(t *testing.T) {
	storage := openTestStorage(t)

	store := authstate.NewSessionStore(storage)
	store.Save(authstate.SessionRecord{
		Identity: authstate.Identity{ID: "user-1", Email: "ana@example.com"},
		Token: authstate.TokenInfo{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
			IdentityID:   "user-1",
		},
		LastActiveAt: time.Now(),
	})

	// A second store over the same database sees the persisted record.
	reopened := authstate.NewSessionStore(storage)
	rec, found := reopened.Load()
	require.True(t, found)
	assert.Equal(t, "user-1", rec.Identity.ID)
	assert.Equal(t, "access-1", rec.Token.AccessToken)
}
