// Package identity holds the user/session data model and the narrow
// store interface the authorization layer consumes.
package identity

import "time"

// User represents an identity record. Role is a delimiter-joined role
// list; the authz package owns its normalization.
type User struct {
	ID         string
	Email      string
	Name       string
	Role       string
	Banned     bool
	BanReason  string
	BanExpires *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session represents an authenticated session. ImpersonatedBy holds
// the administrator's user id when the session was created via
// impersonation, and is empty otherwise.
type Session struct {
	Token          string
	UserID         string
	ExpiresAt      time.Time
	ImpersonatedBy string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
}

// Account links a credential (or provider) record to a user.
type Account struct {
	ID           string
	UserID       string
	ProviderID   string
	PasswordHash string
	CreatedAt    time.Time
}

// ProviderCredential is the provider id used for password accounts.
const ProviderCredential = "credential"

// UserPatch lists the user fields to change. Nil pointers leave the
// field untouched; a pointer to the zero value clears it.
type UserPatch struct {
	Email      *string
	Name       *string
	Role       *string
	Banned     *bool
	BanReason  *string
	BanExpires **time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil && p.Name == nil && p.Role == nil &&
		p.Banned == nil && p.BanReason == nil && p.BanExpires == nil
}

// SearchFilter narrows a user listing by a single field.
type SearchFilter struct {
	Field    string // "email" or "name"
	Operator string // "contains", "starts_with", "ends_with"
	Value    string
}

// ListQuery describes a paged, sorted, filtered user listing.
type ListQuery struct {
	Limit   int
	Offset  int
	SortBy  string
	SortDir string // "asc" or "desc"
	Search  *SearchFilter
}
