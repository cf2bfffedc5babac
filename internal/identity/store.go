package identity

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("identity: not found")
	// ErrDuplicate indicates a uniqueness violation (email already taken).
	ErrDuplicate = errors.New("identity: duplicate")
)

// Store is the narrow persistence interface consumed by the
// authorization and session-lifecycle layer. Implementations must
// provide read-after-write consistency per record; no cross-record
// transactions are assumed.
type Store interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user User) (*User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error)
	DeleteUser(ctx context.Context, id string) error
	LinkAccount(ctx context.Context, account Account) error
	FindCredentialAccount(ctx context.Context, userID string) (*Account, error)
	UpdateCredentialPassword(ctx context.Context, userID, passwordHash string) error

	FindSession(ctx context.Context, token string) (*Session, error)
	CreateSession(ctx context.Context, session Session) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	ListSessions(ctx context.Context, userID string) ([]Session, error)

	ListUsers(ctx context.Context, query ListQuery) ([]User, error)
	CountUsers(ctx context.Context, query ListQuery) (int, error)
}
