package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/frectonz/better-auth/internal/authz"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/platform/httpx"
)

func newTestService(store identity.Store) *Service {
	engine := authz.NewEngine([]string{"admin"}, authz.Policy{
		"support": {"user": {"list"}},
	})
	return NewService(store, engine, Config{}, nil)
}

func mustCreate(t *testing.T, store identity.Store, user identity.User) *identity.User {
	t.Helper()
	created, err := store.CreateUser(context.Background(), user)
	require.NoError(t, err)
	return created
}

func assertCode(t *testing.T, err error, sentinel error, code string) {
	t.Helper()
	require.ErrorIs(t, err, sentinel)
	var coded *httpx.APIError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, code, coded.Code)
}

func TestSetRole(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local", Role: "user"})

	updated, err := svc.SetRole(context.Background(), admin, SetRoleRequest{UserID: target.ID, Role: "Support"})
	require.NoError(t, err)
	assert.Equal(t, "support", updated.Role)

	_, err = svc.SetRole(context.Background(), admin, SetRoleRequest{UserID: "missing", Role: "support"})
	assertCode(t, err, httpx.ErrNotFound, CodeUserNotFound)
}

func TestSetRoleDenied(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	plain := mustCreate(t, store, identity.User{Email: "u@test.local", Role: "user"})

	_, err := svc.SetRole(context.Background(), plain, SetRoleRequest{UserID: plain.ID, Role: "admin"})
	assertCode(t, err, httpx.ErrForbidden, CodeNotAllowedToSetRole)

	_, err = svc.SetRole(context.Background(), nil, SetRoleRequest{UserID: plain.ID, Role: "admin"})
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
}

func TestCreateUser(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})

	user, err := svc.CreateUser(context.Background(), admin, CreateUserRequest{
		Email:    "new@test.local",
		Password: "s3cret-enough",
		Name:     "New User",
	})
	require.NoError(t, err)
	assert.Equal(t, "user", user.Role)

	account, err := store.FindCredentialAccount(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("s3cret-enough")))
}

func TestCreateUserBootstrap(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)

	// A nil actor is the unauthenticated bootstrap path.
	user, err := svc.CreateUser(context.Background(), nil, CreateUserRequest{
		Email:    "first@test.local",
		Password: "s3cret-enough",
		Name:     "First",
		Role:     "Admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	mustCreate(t, store, identity.User{Email: "taken@test.local"})

	_, err := svc.CreateUser(context.Background(), nil, CreateUserRequest{
		Email:    "taken@test.local",
		Password: "s3cret-enough",
		Name:     "Dup",
	})
	assertCode(t, err, httpx.ErrBadRequest, CodeUserAlreadyExists)
}

func TestUpdateUserEmptyPatch(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local"})

	_, err := svc.UpdateUser(context.Background(), admin, UpdateUserRequest{UserID: target.ID})
	assertCode(t, err, httpx.ErrBadRequest, CodeEmptyUpdatePatch)

	name := "Renamed"
	updated, err := svc.UpdateUser(context.Background(), admin, UpdateUserRequest{UserID: target.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, target.Email, updated.Email)
}

func TestBanUserCascadesSessions(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local"})

	for i := 0; i < 3; i++ {
		_, err := store.CreateSession(context.Background(), identity.Session{
			UserID:    target.ID,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	banned, err := svc.BanUser(context.Background(), admin, BanUserRequest{UserID: target.ID, BanExpiresIn: 3600})
	require.NoError(t, err)
	assert.True(t, banned.Banned)
	require.NotNil(t, banned.BanExpires)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *banned.BanExpires, time.Minute)

	sessions, err := store.ListSessions(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestBanUserDefaults(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local"})

	// No reason and no expiry: permanent ban with the configured reason.
	banned, err := svc.BanUser(context.Background(), admin, BanUserRequest{UserID: target.ID})
	require.NoError(t, err)
	assert.Equal(t, "No reason", banned.BanReason)
	assert.Nil(t, banned.BanExpires)
}

func TestBanUserSelfRejected(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})

	_, err := svc.BanUser(context.Background(), admin, BanUserRequest{UserID: admin.ID})
	assertCode(t, err, httpx.ErrBadRequest, CodeCannotBanYourself)

	self, err := store.FindUserByID(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.False(t, self.Banned)
}

func TestUnbanUserIdempotent(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	expires := time.Now().Add(time.Hour)
	target := mustCreate(t, store, identity.User{Email: "u@test.local", Banned: true, BanReason: "abuse", BanExpires: &expires})

	unbanned, err := svc.UnbanUser(context.Background(), admin, target.ID)
	require.NoError(t, err)
	assert.False(t, unbanned.Banned)
	assert.Empty(t, unbanned.BanReason)
	assert.Nil(t, unbanned.BanExpires)

	// Unbanning again is a no-op, not an error.
	again, err := svc.UnbanUser(context.Background(), admin, target.ID)
	require.NoError(t, err)
	assert.False(t, again.Banned)
}

func TestRevokeSessionIdempotent(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local"})
	session, err := store.CreateSession(context.Background(), identity.Session{
		UserID:    target.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(context.Background(), admin, session.Token))
	require.NoError(t, svc.RevokeSession(context.Background(), admin, session.Token))
	require.NoError(t, svc.RevokeSession(context.Background(), admin, "never-existed"))
}

func TestRevokeUserSessions(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local"})
	other := mustCreate(t, store, identity.User{Email: "other@test.local"})

	for _, userID := range []string{target.ID, target.ID, other.ID} {
		_, err := store.CreateSession(context.Background(), identity.Session{
			UserID:    userID,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.RevokeUserSessions(context.Background(), admin, target.ID))

	sessions, err := store.ListSessions(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	sessions, err = store.ListSessions(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRemoveUser(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target := mustCreate(t, store, identity.User{Email: "u@test.local"})
	_, err := store.CreateSession(context.Background(), identity.Session{
		UserID:    target.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	removed, err := svc.RemoveUser(context.Background(), admin, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, removed.ID)

	_, err = store.FindUserByID(context.Background(), target.ID)
	assert.ErrorIs(t, err, identity.ErrNotFound)
	sessions, err := store.ListSessions(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = svc.RemoveUser(context.Background(), admin, target.ID)
	assertCode(t, err, httpx.ErrNotFound, CodeUserNotFound)
}

func TestSetUserPassword(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	target, err := svc.CreateUser(context.Background(), nil, CreateUserRequest{
		Email:    "u@test.local",
		Password: "old-password",
		Name:     "U",
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetUserPassword(context.Background(), admin, target.ID, "new-password"))

	account, err := store.FindCredentialAccount(context.Background(), target.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("new-password")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("old-password")))
}

func TestHasPermissionResolutionPriority(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	supportUser := mustCreate(t, store, identity.User{Email: "s@test.local", Role: "support"})
	plain := mustCreate(t, store, identity.User{Email: "p@test.local", Role: "user"})

	listUsers := map[string][]string{"user": {"list"}}

	// Session wins over the userId and role hints in the body.
	sess := &identity.Session{UserID: plain.ID}
	ok, err := svc.HasPermission(context.Background(), sess, HasPermissionRequest{
		UserID:      supportUser.ID,
		Role:        "admin",
		Permissions: listUsers,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// Without a session the explicit userId resolves.
	ok, err = svc.HasPermission(context.Background(), nil, HasPermissionRequest{
		UserID:      supportUser.ID,
		Role:        "user",
		Permissions: listUsers,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// A bare role is evaluated as-is.
	ok, err = svc.HasPermission(context.Background(), nil, HasPermissionRequest{
		Role:        "support",
		Permissions: listUsers,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasPermissionValidation(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)

	_, err := svc.HasPermission(context.Background(), nil, HasPermissionRequest{Role: "admin"})
	assertCode(t, err, httpx.ErrBadRequest, CodeNoPermissionSupplied)

	_, err = svc.HasPermission(context.Background(), nil, HasPermissionRequest{
		Permissions: map[string][]string{"user": {"list"}},
	})
	assert.ErrorIs(t, err, httpx.ErrBadRequest)

	_, err = svc.HasPermission(context.Background(), nil, HasPermissionRequest{
		UserID:      "missing",
		Permissions: map[string][]string{"user": {"list"}},
	})
	assertCode(t, err, httpx.ErrNotFound, CodeUserNotFound)
}

func TestListUsers(t *testing.T) {
	store := identity.NewMemoryStore()
	svc := newTestService(store)
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	mustCreate(t, store, identity.User{Email: "alpha@test.local", Name: "Alpha"})
	mustCreate(t, store, identity.User{Email: "beta@test.local", Name: "Beta"})

	page, err := svc.ListUsers(context.Background(), admin, ListUsersRequest{
		Limit:  2,
		SortBy: "email",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "admin@test.local", page.Users[0].Email)

	filtered, err := svc.ListUsers(context.Background(), admin, ListUsersRequest{
		SearchField:    "name",
		SearchOperator: "starts_with",
		SearchValue:    "al",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)
}

// brokenListStore fails listing while leaving the rest of the store
// intact.
type brokenListStore struct {
	identity.Store
}

func (b *brokenListStore) ListUsers(ctx context.Context, query identity.ListQuery) ([]identity.User, error) {
	return nil, errors.New("storage offline")
}

func TestListUsersDegradesOnStoreError(t *testing.T) {
	store := identity.NewMemoryStore()
	admin := mustCreate(t, store, identity.User{Email: "admin@test.local", Role: "admin"})
	svc := newTestService(&brokenListStore{Store: store})

	page, err := svc.ListUsers(context.Background(), admin, ListUsersRequest{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Users)
	assert.Zero(t, page.Total)
	assert.Equal(t, 10, page.Limit)
}
