// Package admin exposes the privileged user and session management
// operations, each gated by the permission engine.
package admin

import (
	"time"

	"github.com/frectonz/better-auth/internal/identity"
)

// Stable Forbidden error codes, one per denied operation.
const (
	CodeNotAllowedToSetRole        = "you_are_not_allowed_to_set_users_role"
	CodeNotAllowedToCreateUsers    = "you_are_not_allowed_to_create_users"
	CodeNotAllowedToUpdateUsers    = "you_are_not_allowed_to_update_users"
	CodeNotAllowedToBanUsers       = "you_are_not_allowed_to_ban_users"
	CodeNotAllowedToListUsers      = "you_are_not_allowed_to_list_users"
	CodeNotAllowedToListSessions   = "you_are_not_allowed_to_list_users_sessions"
	CodeNotAllowedToRevokeSessions = "you_are_not_allowed_to_revoke_users_sessions"
	CodeNotAllowedToDeleteUsers    = "you_are_not_allowed_to_delete_users"
	CodeNotAllowedToSetPassword    = "you_are_not_allowed_to_set_users_password"
)

// Stable BadRequest/NotFound error codes.
const (
	CodeUserNotFound         = "user_not_found"
	CodeUserAlreadyExists    = "user_already_exists"
	CodeCannotBanYourself    = "cannot_ban_yourself"
	CodeEmptyUpdatePatch     = "empty_update_patch"
	CodeNoPermissionSupplied = "no_permission_supplied"
	CodeNoSession            = "no_session"
)

// SetRoleRequest changes a user's role list.
type SetRoleRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

// CreateUserRequest creates a user plus its linked credential account.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role"`
}

// UpdateUserRequest patches mutable user fields. An all-nil patch is
// rejected.
type UpdateUserRequest struct {
	UserID string  `json:"userId" validate:"required"`
	Email  *string `json:"email" validate:"omitempty,email"`
	Name   *string `json:"name"`
}

// BanUserRequest bans a user, optionally for a bounded duration.
type BanUserRequest struct {
	UserID string `json:"userId" validate:"required"`
	// BanReason defaults to the configured reason when empty.
	BanReason string `json:"banReason"`
	// BanExpiresIn is in seconds; zero or negative means permanent.
	BanExpiresIn int64 `json:"banExpiresIn"`
}

// ListUsersRequest pages, sorts and filters the user listing.
type ListUsersRequest struct {
	Limit          int
	Offset         int
	SortBy         string
	SortDir        string
	SearchField    string
	SearchOperator string
	SearchValue    string
}

// ListUsersResponse is a page of users with the filter-wide total.
type ListUsersResponse struct {
	Users  []UserView `json:"users"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// HasPermissionRequest asks whether an actor holds a capability set.
// The actor resolves by session first, then explicit UserID, then
// explicit Role, in that priority order.
type HasPermissionRequest struct {
	UserID      string              `json:"userId"`
	Role        string              `json:"role"`
	Permissions map[string][]string `json:"permissions"`
}

// UserView is the wire representation of a user record. Responses are
// always structured records, never raw store rows.
type UserView struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	Banned     bool       `json:"banned"`
	BanReason  string     `json:"banReason,omitempty"`
	BanExpires *time.Time `json:"banExpires,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewUserView converts a store record to its wire form.
func NewUserView(u *identity.User) UserView {
	return UserView{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Banned:     u.Banned,
		BanReason:  u.BanReason,
		BanExpires: u.BanExpires,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// SessionView is the wire representation of a session record.
type SessionView struct {
	Token          string    `json:"token"`
	UserID         string    `json:"userId"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ImpersonatedBy string    `json:"impersonatedBy,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	UserAgent      string    `json:"userAgent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewSessionView converts a session record to its wire form.
func NewSessionView(s *identity.Session) SessionView {
	return SessionView{
		Token:          s.Token,
		UserID:         s.UserID,
		ExpiresAt:      s.ExpiresAt,
		ImpersonatedBy: s.ImpersonatedBy,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
	}
}
