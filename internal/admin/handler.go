package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/impersonation"
	"github.com/frectonz/better-auth/internal/observability"
	"github.com/frectonz/better-auth/internal/platform/httpx"
	"github.com/frectonz/better-auth/internal/shared"
)

// Handler wires the privileged admin endpoints.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	impersonation *impersonation.Service
	store         identity.Store
	validator     *validator.Validate
	metrics       *observability.Metrics
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, imp *impersonation.Service, store identity.Store, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:        logger,
		service:       service,
		impersonation: imp,
		store:         store,
		validator:     validator.New(),
		metrics:       metrics,
	}
}

// MountRoutes registers admin routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/set-role", h.setRole)
	r.Post("/create-user", h.createUser)
	r.Post("/update-user", h.updateUser)
	r.Post("/ban-user", h.banUser)
	r.Post("/unban-user", h.unbanUser)
	r.Get("/list-users", h.listUsers)
	r.Get("/list-user-sessions", h.listUserSessions)
	r.Post("/revoke-user-session", h.revokeSession)
	r.Post("/revoke-user-sessions", h.revokeUserSessions)
	r.Post("/remove-user", h.removeUser)
	r.Post("/set-user-password", h.setUserPassword)
	r.Post("/has-permission", h.hasPermission)
	r.Post("/impersonate-user", h.impersonateUser)
	r.Post("/stop-impersonating", h.stopImpersonating)
}

// actor resolves the calling session and its user record. A nil
// session yields Unauthorized.
func (h *Handler) actor(r *http.Request) (*identity.Session, *identity.User, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, nil, httpx.Unauthorized(CodeNoSession, "a valid session is required")
	}
	user, err := h.store.FindUserByID(r.Context(), sess.UserID)
	if err != nil {
		return nil, nil, httpx.Unauthorized(CodeNoSession, "session user no longer exists")
	}
	return sess, user, nil
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return httpx.BadRequest("invalid_body", "malformed JSON body")
	}
	if err := h.validator.Struct(target); err != nil {
		return httpx.BadRequest("invalid_body", err.Error())
	}
	return nil
}

// respond writes err when set, recording denial metrics, and logs
// internal faults.
func (h *Handler) respond(w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, httpx.ErrForbidden) {
		h.metrics.AuthzDenied(operation)
	}
	clientFault := errors.Is(err, httpx.ErrUnauthorized) || errors.Is(err, httpx.ErrForbidden) ||
		errors.Is(err, httpx.ErrBadRequest) || errors.Is(err, httpx.ErrNotFound)
	if h.logger != nil && !clientFault {
		h.logger.Error(operation, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "set-role", err)
		return
	}
	var req SetRoleRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "set-role", err)
		return
	}
	user, err := h.service.SetRole(r.Context(), actor, req)
	if err != nil {
		h.respond(w, "set-role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": NewUserView(user)})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	// Unauthenticated bootstrap is allowed: with no session present the
	// capability check is skipped.
	var actor *identity.User
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		var err error
		_, actor, err = h.actor(r)
		if err != nil {
			h.respond(w, "create-user", err)
			return
		}
	}
	var req CreateUserRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "create-user", err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), actor, req)
	if err != nil {
		h.respond(w, "create-user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": NewUserView(user)})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "update-user", err)
		return
	}
	var req UpdateUserRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "update-user", err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), actor, req)
	if err != nil {
		h.respond(w, "update-user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": NewUserView(user)})
}

func (h *Handler) banUser(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "ban-user", err)
		return
	}
	var req BanUserRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "ban-user", err)
		return
	}
	user, err := h.service.BanUser(r.Context(), actor, req)
	if err != nil {
		h.respond(w, "ban-user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": NewUserView(user)})
}

type userIDRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (h *Handler) unbanUser(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "unban-user", err)
		return
	}
	var req userIDRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "unban-user", err)
		return
	}
	user, err := h.service.UnbanUser(r.Context(), actor, req.UserID)
	if err != nil {
		h.respond(w, "unban-user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": NewUserView(user)})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "list-users", err)
		return
	}
	q := r.URL.Query()
	req := ListUsersRequest{
		SortBy:         q.Get("sortBy"),
		SortDir:        q.Get("sortDirection"),
		SearchField:    q.Get("searchField"),
		SearchOperator: q.Get("searchOperator"),
		SearchValue:    q.Get("searchValue"),
	}
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))
	resp, err := h.service.ListUsers(r.Context(), actor, req)
	if err != nil {
		h.respond(w, "list-users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listUserSessions(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "list-user-sessions", err)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.respond(w, "list-user-sessions", httpx.BadRequest("invalid_body", "userId is required"))
		return
	}
	sessions, err := h.service.ListUserSessions(r.Context(), actor, userID)
	if err != nil {
		h.respond(w, "list-user-sessions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type sessionTokenRequest struct {
	SessionToken string `json:"sessionToken" validate:"required"`
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "revoke-user-session", err)
		return
	}
	var req sessionTokenRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "revoke-user-session", err)
		return
	}
	if err := h.service.RevokeSession(r.Context(), actor, req.SessionToken); err != nil {
		h.respond(w, "revoke-user-session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) revokeUserSessions(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "revoke-user-sessions", err)
		return
	}
	var req userIDRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "revoke-user-sessions", err)
		return
	}
	if err := h.service.RevokeUserSessions(r.Context(), actor, req.UserID); err != nil {
		h.respond(w, "revoke-user-sessions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) removeUser(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "remove-user", err)
		return
	}
	var req userIDRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "remove-user", err)
		return
	}
	user, err := h.service.RemoveUser(r.Context(), actor, req.UserID)
	if err != nil {
		h.respond(w, "remove-user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": NewUserView(user)})
}

type setPasswordRequest struct {
	UserID      string `json:"userId" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *Handler) setUserPassword(w http.ResponseWriter, r *http.Request) {
	_, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "set-user-password", err)
		return
	}
	var req setPasswordRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "set-user-password", err)
		return
	}
	if err := h.service.SetUserPassword(r.Context(), actor, req.UserID, req.NewPassword); err != nil {
		h.respond(w, "set-user-password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"status": true})
}

func (h *Handler) hasPermission(w http.ResponseWriter, r *http.Request) {
	var req HasPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respond(w, "has-permission", httpx.BadRequest("invalid_body", "malformed JSON body"))
		return
	}
	sess := shared.SessionFromContext(r.Context())
	granted, err := h.service.HasPermission(r.Context(), sess, req)
	if err != nil {
		h.respond(w, "has-permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": granted})
}

func (h *Handler) impersonateUser(w http.ResponseWriter, r *http.Request) {
	sess, actor, err := h.actor(r)
	if err != nil {
		h.respond(w, "impersonate-user", err)
		return
	}
	var req userIDRequest
	if err := h.decode(r, &req); err != nil {
		h.respond(w, "impersonate-user", err)
		return
	}
	session, target, err := h.impersonation.Start(r.Context(), w, r, sess, actor, req.UserID)
	if err != nil {
		h.respond(w, "impersonate-user", err)
		return
	}
	h.metrics.ImpersonationStarted()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"session": NewSessionView(session),
		"user":    NewUserView(target),
	})
}

func (h *Handler) stopImpersonating(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.respond(w, "stop-impersonating", httpx.Unauthorized(CodeNoSession, "a valid session is required"))
		return
	}
	restored, err := h.impersonation.Stop(r.Context(), w, r, sess)
	if err != nil {
		h.respond(w, "stop-impersonating", err)
		return
	}
	h.metrics.ImpersonationStopped()
	httpx.JSON(w, http.StatusOK, map[string]any{"session": NewSessionView(restored)})
}
