package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", "heirloom-test", time.Hour)

	token, err := m.Issue("ana", "space-1")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Username)
	assert.Equal(t, "space-1", claims.SpaceID)
	assert.Equal(t, "heirloom-test", claims.Issuer)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("secret-a", "heirloom-test", time.Hour)
	verifier := NewTokenManager("secret-b", "heirloom-test", time.Hour)

	token, err := issuer.Issue("ana", "space-1")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issuer := NewTokenManager("secret", "someone-else", time.Hour)
	verifier := NewTokenManager("secret", "heirloom-test", time.Hour)

	token, err := issuer.Issue("ana", "space-1")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateReportsExpiry(t *testing.T) {
	m := NewTokenManager("secret", "heirloom-test", time.Millisecond)

	token, err := m.Issue("ana", "space-1")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewTokenManager("secret", "heirloom-test", time.Hour)

	_, err := m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, err := GetUserFromContext(ctx)
	require.Error(t, err)

	ctx = SetUserInContext(ctx, &UserContext{Username: "ana", SpaceID: "space-1"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "space-1", user.SpaceID)
}
