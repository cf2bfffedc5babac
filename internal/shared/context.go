package shared

import (
	"context"

	"github.com/frectonz/better-auth/internal/identity"
)

type sessionContextKey struct{}

// ContextWithSession stores the resolved session in context.
func ContextWithSession(ctx context.Context, sess *identity.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context; nil when the
// request is unauthenticated.
func SessionFromContext(ctx context.Context) *identity.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*identity.Session)
	return sess
}
