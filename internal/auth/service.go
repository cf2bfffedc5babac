// Package auth implements the sign-in/sign-out flow. Session creation
// goes through the ban gate; a banned user cannot obtain a session
// here or anywhere else.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/frectonz/better-auth/internal/bans"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/platform/httpx"
)

// ErrInvalidCredentials indicates login failure. It deliberately does
// not distinguish unknown email from wrong password.
var ErrInvalidCredentials = httpx.Unauthorized("invalid_email_or_password", "invalid email or password")

// Service wraps authentication business rules.
type Service struct {
	store    identity.Store
	sessions *bans.Creator
}

// NewService constructs a new Service.
func NewService(store identity.Store, sessions *bans.Creator) *Service {
	return &Service{store: store, sessions: sessions}
}

// SignIn validates email/password credentials and creates a session.
// requestPath is forwarded to the ban gate so callback flows get a
// redirect instead of a structured error.
func (s *Service) SignIn(ctx context.Context, email, password, requestPath string, overrides bans.Overrides) (*identity.Session, *identity.User, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("auth: find user: %w", err)
	}
	account, err := s.store.FindCredentialAccount(ctx, user.ID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("auth: find account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}
	session, err := s.sessions.Create(ctx, user.ID, requestPath, overrides)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// SignOut deletes the session record.
func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}
