package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/frectonz/better-auth/internal/bans"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/platform/httpx"
)

func newTestService(t *testing.T) (*Service, *identity.MemoryStore) {
	t.Helper()
	store := identity.NewMemoryStore()
	gate := bans.NewGate(store, "you are banned", "", nil)
	return NewService(store, bans.NewCreator(store, gate, time.Hour)), store
}

func seedCredentialUser(t *testing.T, store *identity.MemoryStore, email, password string, user identity.User) *identity.User {
	t.Helper()
	user.Email = email
	created, err := store.CreateUser(context.Background(), user)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.LinkAccount(context.Background(), identity.Account{
		UserID:       created.ID,
		ProviderID:   identity.ProviderCredential,
		PasswordHash: string(hash),
	}))
	return created
}

func TestSignIn(t *testing.T) {
	svc, store := newTestService(t)
	user := seedCredentialUser(t, store, "a@test.local", "correct-horse", identity.User{})

	session, got, err := svc.SignIn(context.Background(), "a@test.local", "correct-horse", "/auth/sign-in", bans.Overrides{
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "203.0.113.7", session.IPAddress)

	persisted, err := store.FindSession(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, persisted.UserID)
}

func TestSignInInvalidCredentials(t *testing.T) {
	svc, store := newTestService(t)
	seedCredentialUser(t, store, "a@test.local", "correct-horse", identity.User{})

	// Unknown email and wrong password are indistinguishable.
	_, _, err := svc.SignIn(context.Background(), "nobody@test.local", "correct-horse", "/auth/sign-in", bans.Overrides{})
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)

	_, _, err = svc.SignIn(context.Background(), "a@test.local", "wrong-password", "/auth/sign-in", bans.Overrides{})
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
}

func TestSignInBannedUser(t *testing.T) {
	svc, store := newTestService(t)
	seedCredentialUser(t, store, "a@test.local", "correct-horse", identity.User{Banned: true})

	_, _, err := svc.SignIn(context.Background(), "a@test.local", "correct-horse", "/auth/sign-in", bans.Overrides{})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	var coded *httpx.APIError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, bans.CodeBannedUser, coded.Code)
}

func TestSignInExpiredBanSelfHeals(t *testing.T) {
	svc, store := newTestService(t)
	expires := time.Now().Add(-time.Minute)
	user := seedCredentialUser(t, store, "a@test.local", "correct-horse", identity.User{
		Banned:     true,
		BanReason:  "abuse",
		BanExpires: &expires,
	})

	session, _, err := svc.SignIn(context.Background(), "a@test.local", "correct-horse", "/auth/sign-in", bans.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)

	healed, err := store.FindUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, healed.Banned)
}

func TestSignOut(t *testing.T) {
	svc, store := newTestService(t)
	session, err := store.CreateSession(context.Background(), identity.Session{
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background(), session.Token))
	_, err = store.FindSession(context.Background(), session.Token)
	assert.ErrorIs(t, err, identity.ErrNotFound)

	// Signing out an already-dead session is a no-op.
	require.NoError(t, svc.SignOut(context.Background(), session.Token))
}
