package bans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frectonz/better-auth/internal/identity"
)

// Overrides customizes a session created through the Creator.
type Overrides struct {
	// TTL replaces the default session lifetime when positive.
	TTL time.Duration
	// ImpersonatedBy marks the session as created via impersonation.
	ImpersonatedBy string
	IPAddress      string
	UserAgent      string
}

// Creator funnels every session-creation path through the ban gate.
// Code that needs a session for a user asks the Creator, never the
// store directly, so a ban can never be bypassed by a "privileged"
// creation path such as impersonation-start.
type Creator struct {
	store identity.Store
	gate  *Gate
	ttl   time.Duration
}

// NewCreator constructs a Creator with the default session TTL.
func NewCreator(store identity.Store, gate *Gate, ttl time.Duration) *Creator {
	return &Creator{store: store, gate: gate, ttl: ttl}
}

// Create checks the ban gate and persists a new session for the user.
// requestPath is forwarded to the gate to detect OAuth callback flows.
func (c *Creator) Create(ctx context.Context, userID, requestPath string, overrides Overrides) (*identity.Session, error) {
	if err := c.gate.Check(ctx, userID, requestPath); err != nil {
		return nil, err
	}
	ttl := c.ttl
	if overrides.TTL > 0 {
		ttl = overrides.TTL
	}
	session, err := c.store.CreateSession(ctx, identity.Session{
		Token:          uuid.NewString(),
		UserID:         userID,
		ExpiresAt:      time.Now().Add(ttl),
		ImpersonatedBy: overrides.ImpersonatedBy,
		IPAddress:      overrides.IPAddress,
		UserAgent:      overrides.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("bans: create session: %w", err)
	}
	return session, nil
}
