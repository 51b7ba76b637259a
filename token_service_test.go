package authstate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authstate "github.com/raptorhq/go-authstate"
)

func TestTokenServiceGenerateAndValidate(t *testing.T) {
	ts := authstate.NewTokenService([]byte("test-signing-key"), "authstate-test", time.Hour, nil)

	identity := authstate.Identity{ID: "user-1", Role: authstate.RoleCoach}
	now := time.Now()

	signed, expiresAt, err := ts.Generate(identity, now)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := ts.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "coach", claims.UserRole)
	assert.Equal(t, "authstate-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	ts := authstate.NewTokenService([]byte("test-signing-key"), "authstate-test", time.Hour, nil)

	signed, _, err := ts.Generate(authstate.Identity{ID: "user-1"}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = ts.Validate(signed)
	require.Error(t, err)
	assert.True(t, authstate.IsTokenExpiredError(err))
}

func TestTokenServiceRejectsWrongKey(t *testing.T) {
	mint := authstate.NewTokenService([]byte("key-one"), "authstate-test", time.Hour, nil)
	check := authstate.NewTokenService([]byte("key-two"), "authstate-test", time.Hour, nil)

	signed, _, err := mint.Generate(authstate.Identity{ID: "user-1"}, time.Now())
	require.NoError(t, err)

	_, err = check.Validate(signed)
	require.Error(t, err)
}

func TestTokenServiceRejectsWrongIssuer(t *testing.T) {
	mint := authstate.NewTokenService([]byte("test-signing-key"), "issuer-a", time.Hour, nil)
	check := authstate.NewTokenService([]byte("test-signing-key"), "issuer-b", time.Hour, nil)

	signed, _, err := mint.Generate(authstate.Identity{ID: "user-1"}, time.Now())
	require.NoError(t, err)

	_, err = check.Validate(signed)
	require.Error(t, err)
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	ts := authstate.NewTokenService([]byte("test-signing-key"), "authstate-test", time.Hour, nil)

	_, err := ts.Validate("not-a-token")
	require.Error(t, err)
}

func TestHashAndComparePassword(t *testing.T) {
	hash, err := authstate.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	require.NoError(t, authstate.ComparePasswordAndHash("hunter2", hash))
	require.Error(t, authstate.ComparePasswordAndHash("wrong", hash))

	_, err = authstate.HashPassword("")
	require.Error(t, err)
}
