// Package bans enforces account bans at session-creation time. Every
// path that persists a session, including impersonation-start, must go
// through the Creator in this package.
package bans

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/platform/httpx"
)

// CodeBannedUser is the stable error code carried by ban rejections.
const CodeBannedUser = "banned_user"

// MetricsRecorder counts ban gate rejections. Satisfied by
// observability.Metrics; a nil recorder disables counting.
type MetricsRecorder interface {
	BanEnforced()
}

// RedirectError tells the HTTP layer to redirect instead of rendering
// a structured error. OAuth callback flows cannot render JSON.
type RedirectError struct {
	URL string
}

func (e *RedirectError) Error() string {
	return "redirect to " + e.URL
}

// Gate decides whether a session may be created for a user. An expired
// ban self-heals here: the ban fields are cleared on the next login
// attempt rather than by an explicit admin action.
type Gate struct {
	store       identity.Store
	message     string
	redirectURL string
	logger      *slog.Logger
	metrics     MetricsRecorder
	now         func() time.Time
}

// NewGate constructs a Gate. message is the configured user-facing ban
// message; redirectURL is the error page used for OAuth callback
// flows.
func NewGate(store identity.Store, message, redirectURL string, logger *slog.Logger) *Gate {
	return &Gate{
		store:       store,
		message:     message,
		redirectURL: redirectURL,
		logger:      logger,
		now:         time.Now,
	}
}

// WithMetrics attaches a rejection counter and returns the Gate.
func (g *Gate) WithMetrics(m MetricsRecorder) *Gate {
	g.metrics = m
	return g
}

// Check runs synchronously before a session is persisted for userID.
// requestPath distinguishes OAuth callback flows from API flows. A nil
// return allows creation.
func (g *Gate) Check(ctx context.Context, userID, requestPath string) error {
	user, err := g.store.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("bans: fetch user: %w", err)
	}
	if !user.Banned {
		return nil
	}
	if user.BanExpires != nil && g.now().After(*user.BanExpires) {
		// Expired ban: clear all three ban fields and allow.
		unbanned := false
		var noExpiry *time.Time
		_, err := g.store.UpdateUser(ctx, userID, identity.UserPatch{
			Banned:     &unbanned,
			BanReason:  ptr(""),
			BanExpires: &noExpiry,
		})
		if err != nil {
			return fmt.Errorf("bans: clear expired ban: %w", err)
		}
		if g.logger != nil {
			g.logger.Info("expired ban cleared on login", slog.String("user_id", userID))
		}
		return nil
	}
	if g.metrics != nil {
		g.metrics.BanEnforced()
	}
	if isOAuthCallback(requestPath) {
		return &RedirectError{URL: g.banRedirectURL()}
	}
	return httpx.Forbidden(CodeBannedUser, g.message)
}

func (g *Gate) banRedirectURL() string {
	if g.redirectURL == "" {
		return "/error?" + url.Values{"error": {CodeBannedUser}}.Encode()
	}
	sep := "?"
	if strings.Contains(g.redirectURL, "?") {
		sep = "&"
	}
	return g.redirectURL + sep + url.Values{"error": {CodeBannedUser}, "message": {g.message}}.Encode()
}

func isOAuthCallback(path string) bool {
	return strings.Contains(path, "/callback/") || strings.HasSuffix(path, "/callback")
}

func ptr[T any](v T) *T { return &v }
