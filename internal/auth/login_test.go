package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tulen-chik/beltelekom-sub000/internal/config"
)

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func knownRole(r string) bool { return r == "admin" || r == "operator" || r == "subscriber" }

func newAuthenticator(t *testing.T, store AttemptStore) *Authenticator {
	t.Helper()
	creds, err := NewCredentials([]config.AuthUser{
		{Username: "ops", Role: "operator", PasswordHash: hash(t, "s3cret")},
		{Username: "ivan", Role: "subscriber", PasswordHash: hash(t, "pw"), SubscriberID: "SUB-7"},
	}, knownRole, "subscriber")
	require.NoError(t, err)

	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)
	return NewAuthenticator(creds, NewThrottle(store, 3, time.Minute), m, nil)
}

func TestNewCredentials_Validation(t *testing.T) {
	_, err := NewCredentials([]config.AuthUser{{Username: "x", Role: "root", PasswordHash: hash(t, "p")}}, knownRole, "subscriber")
	assert.Error(t, err)

	_, err = NewCredentials([]config.AuthUser{{Username: "x", Role: "subscriber", PasswordHash: hash(t, "p")}}, knownRole, "subscriber")
	assert.Error(t, err)

	_, err = NewCredentials([]config.AuthUser{{Username: "x", Role: "admin", PasswordHash: "plain"}}, knownRole, "subscriber")
	assert.Error(t, err)
}

func TestLogin_IssuesTokenWithSubscriber(t *testing.T) {
	a := newAuthenticator(t, NewMemoryAttemptStore())

	pair, acct, err := a.Login(context.Background(), "IVAN", "pw")
	require.NoError(t, err)
	assert.Equal(t, "SUB-7", acct.SubscriberID)

	claims, err := a.tokens.Verify(pair.AccessToken, TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "subscriber", claims.Role)
	assert.Equal(t, "SUB-7", claims.SubscriberID)
}

func TestLogin_LocksOutAfterRepeatedFailures(t *testing.T) {
	store := NewMemoryAttemptStore()
	a := newAuthenticator(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := a.Login(ctx, "ops", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, _, err := a.Login(ctx, "ops", "s3cret")
	assert.ErrorIs(t, err, ErrLoginLocked)

	// Window expires.
	store.clock = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = a.Login(ctx, "ops", "s3cret")
	assert.NoError(t, err)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	store := NewMemoryAttemptStore()
	a := newAuthenticator(t, store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, _ = a.Login(ctx, "ops", "wrong")
	}
	_, _, err := a.Login(ctx, "ops", "s3cret")
	require.NoError(t, err)

	n, err := store.Failures(ctx, attemptKey("ops"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLogin_UnknownUserCountsAsFailure(t *testing.T) {
	store := NewMemoryAttemptStore()
	a := newAuthenticator(t, store)

	_, _, err := a.Login(context.Background(), "nobody", "x")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	n, _ := store.Failures(context.Background(), attemptKey("nobody"))
	assert.Equal(t, int64(1), n)
}

func TestRefresh_IssuesNewPairFromCurrentAccount(t *testing.T) {
	a := newAuthenticator(t, NewMemoryAttemptStore())
	ctx := context.Background()

	pair, _, err := a.Login(ctx, "ivan", "pw")
	require.NoError(t, err)

	next, acct, err := a.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "subscriber", acct.Role)
	claims, err := a.tokens.Verify(next.AccessToken, TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "SUB-7", claims.SubscriberID)

	_, _, err = a.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenType)
}

func TestRefresh_RejectsRemovedAccount(t *testing.T) {
	a := newAuthenticator(t, NewMemoryAttemptStore())
	pair, err := a.tokens.IssuePair(time.Now(), "ghost", "", "")
	require.NoError(t, err)

	_, _, err = a.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
