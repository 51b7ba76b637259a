package authstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authstate "github.com/raptorhq/go-authstate"
)

func newLocalProvider(t *testing.T, clock *fakeClock) (*authstate.LocalIdentityProvider, string) {
	t.Helper()

	tokens := authstate.NewTokenService([]byte("test-signing-key"), "authstate-test", time.Hour, nil)
	provider := authstate.NewLocalIdentityProvider(tokens, authstate.WithProviderClock(clock.Now))

	id, err := provider.RegisterUser("ana@example.com", "hunter2", "Ana")
	require.NoError(t, err)
	return provider, id
}

func TestLocalProviderSignIn(t *testing.T) {
	clock := newFakeClock()
	provider, id := newLocalProvider(t, clock)

	identity, tok, err := provider.SignIn(context.Background(), "ana@example.com", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, id, identity.ID)
	assert.Equal(t, "ana@example.com", identity.Email)
	assert.Equal(t, "Ana", identity.DisplayName)

	assert.NotEmpty(t, tok.AccessToken)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.Equal(t, id, tok.IdentityID)
	assert.Equal(t, clock.Now().Add(time.Hour), tok.ExpiresAt)
}

func TestLocalProviderRejectsBadCredentials(t *testing.T) {
	clock := newFakeClock()
	provider, _ := newLocalProvider(t, clock)

	_, _, err := provider.SignIn(context.Background(), "ana@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, authstate.IsCredentialError(err))

	_, _, err = provider.SignIn(context.Background(), "nobody@example.com", "hunter2")
	require.Error(t, err)
	assert.True(t, authstate.IsCredentialError(err))
}

func TestLocalProviderRefreshRotatesToken(t *testing.T) {
	clock := newFakeClock()
	provider, id := newLocalProvider(t, clock)

	_, tok, err := provider.SignIn(context.Background(), "ana@example.com", "hunter2")
	require.NoError(t, err)

	clock.set(clock.Now().Add(30 * time.Minute))

	next, err := provider.RefreshSession(context.Background(), tok.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, id, next.IdentityID)
	assert.NotEqual(t, tok.RefreshToken, next.RefreshToken)
	assert.Equal(t, clock.Now().Add(time.Hour), next.ExpiresAt)

	// Refresh tokens are single use.
	_, err = provider.RefreshSession(context.Background(), tok.RefreshToken)
	require.Error(t, err)
	assert.True(t, authstate.IsTokenExpiredError(err))
}

func TestLocalProviderRefreshExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	provider, _ := newLocalProvider(t, clock)

	_, tok, err := provider.SignIn(context.Background(), "ana@example.com", "hunter2")
	require.NoError(t, err)

	clock.set(clock.Now().Add(31 * 24 * time.Hour))

	_, err = provider.RefreshSession(context.Background(), tok.RefreshToken)
	require.Error(t, err)
	assert.True(t, authstate.IsTokenExpiredError(err))
}

func TestLocalProviderCurrentUser(t *testing.T) {
	// JWT validation uses wall-clock time, so this test runs on the real
	// clock rather than the fake one.
	tokens := authstate.NewTokenService([]byte("test-signing-key"), "authstate-test", time.Hour, nil)
	provider := authstate.NewLocalIdentityProvider(tokens)

	id, err := provider.RegisterUser("ana@example.com", "hunter2", "Ana")
	require.NoError(t, err)

	_, tok, err := provider.SignIn(context.Background(), "ana@example.com", "hunter2")
	require.NoError(t, err)

	identity, err := provider.CurrentUser(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, identity.ID)

	_, err = provider.CurrentUser(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestInMemoryProfileStore(t *testing.T) {
	store := authstate.NewInMemoryProfileStore()
	store.SetProfile("user-1", authstate.Profile{
		DisplayName: "Ana",
		Role:        authstate.RolePlayer,
		TeamID:      "team-9",
	})

	profile, err := store.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, authstate.RolePlayer, profile.Role)

	_, err = store.GetProfile(context.Background(), "user-2")
	require.Error(t, err)
	assert.True(t, authstate.IsProfileNotFoundError(err))
}

func TestInMemoryAgreementBackend(t *testing.T) {
	backend := authstate.NewInMemoryAgreementBackend()
	backend.SetRequiredVersion(authstate.RolePlayer, 2)

	required, err := backend.RequiredVersion(context.Background(), authstate.RolePlayer)
	require.NoError(t, err)
	assert.Equal(t, 2, required)

	// Unversioned roles require nothing.
	required, err = backend.RequiredVersion(context.Background(), authstate.RoleCoach)
	require.NoError(t, err)
	assert.Equal(t, 0, required)

	_, found, err := backend.AcceptedVersion(context.Background(), "user-1", authstate.RolePlayer)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, backend.RecordAcceptance(context.Background(), "user-1", authstate.RolePlayer, 2))

	version, found, err := backend.AcceptedVersion(context.Background(), "user-1", authstate.RolePlayer)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, version)
}
