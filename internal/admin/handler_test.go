package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frectonz/better-auth/internal/authz"
	"github.com/frectonz/better-auth/internal/bans"
	"github.com/frectonz/better-auth/internal/cookies"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/impersonation"
	"github.com/frectonz/better-auth/internal/observability"
	"github.com/frectonz/better-auth/internal/platform/httpx"
	"github.com/frectonz/better-auth/internal/shared"
)

type handlerFixture struct {
	store  *identity.MemoryStore
	router chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := identity.NewMemoryStore()
	engine := authz.NewEngine([]string{"admin"}, authz.Policy{})
	gate := bans.NewGate(store, "banned", "", nil)
	creator := bans.NewCreator(store, gate, time.Hour)
	ctrl := cookies.NewController("test-secret", "better-auth", false)
	imp := impersonation.NewService(store, engine, creator, ctrl, time.Hour, nil)
	svc := NewService(store, engine, Config{}, nil)
	handler := NewHandler(nil, svc, imp, store, observability.NewMetrics())

	router := chi.NewRouter()
	router.Route("/admin", handler.MountRoutes)
	return &handlerFixture{store: store, router: router}
}

func (f *handlerFixture) signedInAs(t *testing.T, role string) *identity.Session {
	t.Helper()
	user, err := f.store.CreateUser(context.Background(), identity.User{
		Email: role + "@test.local",
		Role:  role,
	})
	require.NoError(t, err)
	session, err := f.store.CreateSession(context.Background(), identity.Session{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return session
}

func (f *handlerFixture) do(t *testing.T, sess *identity.Session, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func decodeProblem(t *testing.T, res *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(res.Body).Decode(&problem))
	return problem
}

func TestHandlerRequiresSession(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, nil, http.MethodPost, "/admin/set-role", map[string]string{
		"userId": "u-1", "role": "admin",
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, CodeNoSession, decodeProblem(t, res).Code)
}

func TestHandlerForbiddenForPlainUser(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.signedInAs(t, "user")

	res := f.do(t, sess, http.MethodPost, "/admin/ban-user", map[string]string{"userId": "u-2"})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, CodeNotAllowedToBanUsers, decodeProblem(t, res).Code)
}

func TestHandlerBanUser(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.signedInAs(t, "admin")
	target, err := f.store.CreateUser(context.Background(), identity.User{Email: "t@test.local"})
	require.NoError(t, err)

	res := f.do(t, sess, http.MethodPost, "/admin/ban-user", map[string]any{
		"userId":    target.ID,
		"banReason": "abuse",
	})
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		User UserView `json:"user"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body.User.Banned)
	assert.Equal(t, "abuse", body.User.BanReason)
}

func TestHandlerMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.signedInAs(t, "admin")

	req := httptest.NewRequest(http.MethodPost, "/admin/ban-user", bytes.NewBufferString("{not json"))
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid_body", decodeProblem(t, res).Code)
}

func TestHandlerCreateUserBootstrap(t *testing.T) {
	f := newHandlerFixture(t)

	// No session at all: the first-user bootstrap path.
	res := f.do(t, nil, http.MethodPost, "/admin/create-user", map[string]string{
		"email":    "first@test.local",
		"password": "s3cret-enough",
		"name":     "First",
		"role":     "admin",
	})
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		User UserView `json:"user"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "admin", body.User.Role)
}

func TestHandlerHasPermissionByRole(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, nil, http.MethodPost, "/admin/has-permission", map[string]any{
		"role":        "admin",
		"permissions": map[string][]string{"user": {"ban"}},
	})
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body["success"])
}

func TestHandlerListUsers(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.signedInAs(t, "admin")

	res := f.do(t, sess, http.MethodGet, "/admin/list-users?limit=10&sortBy=email", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var body ListUsersResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Users, 1)
	assert.Equal(t, "admin@test.local", body.Users[0].Email)
}

func TestHandlerImpersonateUser(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.signedInAs(t, "admin")
	target, err := f.store.CreateUser(context.Background(), identity.User{Email: "t@test.local"})
	require.NoError(t, err)

	res := f.do(t, sess, http.MethodPost, "/admin/impersonate-user", map[string]string{"userId": target.ID})
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Session SessionView `json:"session"`
		User    UserView    `json:"user"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, target.ID, body.Session.UserID)
	assert.Equal(t, sess.UserID, body.Session.ImpersonatedBy)
	assert.NotEmpty(t, res.Result().Cookies())
}

func TestHandlerStopImpersonatingWithoutState(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.signedInAs(t, "admin")

	res := f.do(t, sess, http.MethodPost, "/admin/stop-impersonating", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, impersonation.CodeNotImpersonating, decodeProblem(t, res).Code)
}
