package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/frectonz/better-auth/internal/authz"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/platform/httpx"
)

// Config carries the admin-plugin knobs, threaded in at construction.
type Config struct {
	// DefaultRole is assigned to created users without an explicit role.
	DefaultRole string
	// DefaultBanReason is stored when a ban request carries no reason.
	DefaultBanReason string
}

// Service implements the privileged mutation operations. Every
// operation authorizes via the permission engine first, then performs
// exactly one identity-store mutation (the ban cascade being the one
// policy-mandated exception).
type Service struct {
	store  identity.Store
	engine *authz.Engine
	cfg    Config
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store identity.Store, engine *authz.Engine, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "user"
	}
	if cfg.DefaultBanReason == "" {
		cfg.DefaultBanReason = "No reason"
	}
	return &Service{store: store, engine: engine, cfg: cfg, logger: logger}
}

// authorize gates an operation on a single resource/action pair.
func (s *Service) authorize(actor *identity.User, resource, action, deniedCode string) error {
	if actor == nil {
		return httpx.Unauthorized(CodeNoSession, "a valid session is required")
	}
	if !s.engine.Authorize(actor.Role, authz.AccessRequest{resource: {action}}) {
		return httpx.Forbidden(deniedCode, fmt.Sprintf("missing the %s:%s capability", resource, action))
	}
	return nil
}

// SetRole replaces the target user's role list.
func (s *Service) SetRole(ctx context.Context, actor *identity.User, req SetRoleRequest) (*identity.User, error) {
	if err := s.authorize(actor, "user", "set-role", CodeNotAllowedToSetRole); err != nil {
		return nil, err
	}
	role := authz.JoinRoles([]string{req.Role})
	user, err := s.store.UpdateUser(ctx, req.UserID, identity.UserPatch{Role: &role})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return user, nil
}

// CreateUser creates a user and links its credential account. A
// missing actor is the unauthenticated bootstrap path and skips the
// capability check.
func (s *Service) CreateUser(ctx context.Context, actor *identity.User, req CreateUserRequest) (*identity.User, error) {
	if actor != nil {
		if err := s.authorize(actor, "user", "create", CodeNotAllowedToCreateUsers); err != nil {
			return nil, err
		}
	}
	role := req.Role
	if role == "" {
		role = s.cfg.DefaultRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("admin: hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, identity.User{
		ID:    uuid.NewString(),
		Email: req.Email,
		Name:  req.Name,
		Role:  authz.JoinRoles([]string{role}),
	})
	if err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return nil, httpx.BadRequest(CodeUserAlreadyExists, "a user with this email already exists")
		}
		return nil, fmt.Errorf("admin: create user: %w", err)
	}
	if err := s.store.LinkAccount(ctx, identity.Account{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		ProviderID:   identity.ProviderCredential,
		PasswordHash: string(hash),
	}); err != nil {
		return nil, fmt.Errorf("admin: link account: %w", err)
	}
	return user, nil
}

// UpdateUser applies a partial update; an empty patch is rejected.
func (s *Service) UpdateUser(ctx context.Context, actor *identity.User, req UpdateUserRequest) (*identity.User, error) {
	if err := s.authorize(actor, "user", "update", CodeNotAllowedToUpdateUsers); err != nil {
		return nil, err
	}
	patch := identity.UserPatch{Email: req.Email, Name: req.Name}
	if patch.IsEmpty() {
		return nil, httpx.BadRequest(CodeEmptyUpdatePatch, "no fields to update")
	}
	user, err := s.store.UpdateUser(ctx, req.UserID, patch)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return user, nil
}

// BanUser bans the target and revokes all of their sessions in the
// same logical operation, so live sessions do not remain valid until
// natural expiry. Self-targeting is rejected.
func (s *Service) BanUser(ctx context.Context, actor *identity.User, req BanUserRequest) (*identity.User, error) {
	if err := s.authorize(actor, "user", "ban", CodeNotAllowedToBanUsers); err != nil {
		return nil, err
	}
	if req.UserID == actor.ID {
		return nil, httpx.BadRequest(CodeCannotBanYourself, "you cannot ban yourself")
	}
	reason := req.BanReason
	if reason == "" {
		reason = s.cfg.DefaultBanReason
	}
	banned := true
	var expires *time.Time
	if req.BanExpiresIn > 0 {
		at := time.Now().Add(time.Duration(req.BanExpiresIn) * time.Second)
		expires = &at
	}
	user, err := s.store.UpdateUser(ctx, req.UserID, identity.UserPatch{
		Banned:     &banned,
		BanReason:  &reason,
		BanExpires: &expires,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := s.store.DeleteUserSessions(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("admin: revoke banned user sessions: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("user banned",
			slog.String("actor_id", actor.ID),
			slog.String("user_id", req.UserID),
			slog.String("reason", reason))
	}
	return user, nil
}

// UnbanUser clears all three ban fields. Unbanning an already-unbanned
// user is a no-op, not an error.
func (s *Service) UnbanUser(ctx context.Context, actor *identity.User, userID string) (*identity.User, error) {
	if err := s.authorize(actor, "user", "ban", CodeNotAllowedToBanUsers); err != nil {
		return nil, err
	}
	banned := false
	reason := ""
	var noExpiry *time.Time
	user, err := s.store.UpdateUser(ctx, userID, identity.UserPatch{
		Banned:     &banned,
		BanReason:  &reason,
		BanExpires: &noExpiry,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return user, nil
}

// ListUsers returns a page of users. Listing is best-effort: a store
// failure degrades to an empty page with zero total instead of
// propagating.
func (s *Service) ListUsers(ctx context.Context, actor *identity.User, req ListUsersRequest) (ListUsersResponse, error) {
	if err := s.authorize(actor, "user", "list", CodeNotAllowedToListUsers); err != nil {
		return ListUsersResponse{}, err
	}
	query := identity.ListQuery{
		Limit:   req.Limit,
		Offset:  req.Offset,
		SortBy:  req.SortBy,
		SortDir: req.SortDir,
	}
	if req.SearchValue != "" {
		query.Search = &identity.SearchFilter{
			Field:    req.SearchField,
			Operator: req.SearchOperator,
			Value:    req.SearchValue,
		}
	}
	users, err := s.store.ListUsers(ctx, query)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("list users", slog.Any("error", err))
		}
		return ListUsersResponse{Users: []UserView{}, Limit: req.Limit, Offset: req.Offset}, nil
	}
	total, err := s.store.CountUsers(ctx, query)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("count users", slog.Any("error", err))
		}
		return ListUsersResponse{Users: []UserView{}, Limit: req.Limit, Offset: req.Offset}, nil
	}
	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, NewUserView(&users[i]))
	}
	return ListUsersResponse{Users: views, Total: total, Limit: req.Limit, Offset: req.Offset}, nil
}

// ListUserSessions returns the target user's live sessions.
func (s *Service) ListUserSessions(ctx context.Context, actor *identity.User, userID string) ([]SessionView, error) {
	if err := s.authorize(actor, "session", "list", CodeNotAllowedToListSessions); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("admin: list sessions: %w", err)
	}
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, NewSessionView(&sessions[i]))
	}
	return views, nil
}

// RevokeSession deletes a single session. Revoking an already-revoked
// session is a no-op.
func (s *Service) RevokeSession(ctx context.Context, actor *identity.User, token string) error {
	if err := s.authorize(actor, "session", "revoke", CodeNotAllowedToRevokeSessions); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("admin: revoke session: %w", err)
	}
	return nil
}

// RevokeUserSessions deletes every session of the target user.
func (s *Service) RevokeUserSessions(ctx context.Context, actor *identity.User, userID string) error {
	if err := s.authorize(actor, "session", "revoke", CodeNotAllowedToRevokeSessions); err != nil {
		return err
	}
	if err := s.store.DeleteUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("admin: revoke user sessions: %w", err)
	}
	return nil
}

// RemoveUser deletes the user record along with their sessions.
func (s *Service) RemoveUser(ctx context.Context, actor *identity.User, userID string) (*identity.User, error) {
	if err := s.authorize(actor, "user", "delete", CodeNotAllowedToDeleteUsers); err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := s.store.DeleteUserSessions(ctx, userID); err != nil {
		return nil, fmt.Errorf("admin: delete user sessions: %w", err)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return nil, mapStoreErr(err)
	}
	return user, nil
}

// SetUserPassword replaces the target's credential password.
func (s *Service) SetUserPassword(ctx context.Context, actor *identity.User, userID, newPassword string) error {
	if err := s.authorize(actor, "user", "set-password", CodeNotAllowedToSetPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("admin: hash password: %w", err)
	}
	if err := s.store.UpdateCredentialPassword(ctx, userID, string(hash)); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// HasPermission is self-service introspection: it requires no
// capability and never mutates. The actor resolves by session, then
// explicit userId, then explicit role, in that priority order.
func (s *Service) HasPermission(ctx context.Context, sess *identity.Session, req HasPermissionRequest) (bool, error) {
	if len(req.Permissions) == 0 {
		return false, httpx.BadRequest(CodeNoPermissionSupplied, "no permission keys supplied")
	}
	var role string
	switch {
	case sess != nil:
		user, err := s.store.FindUserByID(ctx, sess.UserID)
		if err != nil {
			return false, mapStoreErr(err)
		}
		role = user.Role
	case req.UserID != "":
		user, err := s.store.FindUserByID(ctx, req.UserID)
		if err != nil {
			return false, mapStoreErr(err)
		}
		role = user.Role
	case req.Role != "":
		role = req.Role
	default:
		return false, httpx.BadRequest(CodeNoPermissionSupplied, "no actor to evaluate")
	}
	return s.engine.Authorize(role, authz.AccessRequest(req.Permissions)), nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return httpx.NotFound(CodeUserNotFound, "user not found")
	}
	return err
}
