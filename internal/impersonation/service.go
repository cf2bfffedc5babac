// Package impersonation implements the state machine by which an
// administrator temporarily assumes another user's identity and later
// restores their own.
package impersonation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/frectonz/better-auth/internal/authz"
	"github.com/frectonz/better-auth/internal/bans"
	"github.com/frectonz/better-auth/internal/cookies"
	"github.com/frectonz/better-auth/internal/identity"
	"github.com/frectonz/better-auth/internal/platform/httpx"
)

// Stable error codes for impersonation failures.
const (
	CodeNotAllowedToImpersonate = "you_are_not_allowed_to_impersonate_users"
	CodeAlreadyImpersonating    = "already_impersonating"
	CodeNotImpersonating        = "not_impersonating"
	CodeUserNotFound            = "user_not_found"
	CodeFailedToCreateSession   = "failed_to_create_session"
	CodeFailedToRestoreSession  = "failed_to_restore_session"
)

// DefaultDuration is the impersonation session lifetime when none is
// configured.
const DefaultDuration = time.Hour

// Service orchestrates starting and stopping impersonation. The
// authorization gate is the permission engine; session reads and
// writes go through the identity store, with creation funneled through
// the ban gate so a banned target cannot be impersonated into a live
// session.
type Service struct {
	store    identity.Store
	engine   *authz.Engine
	sessions *bans.Creator
	cookies  *cookies.Controller
	duration time.Duration
	logger   *slog.Logger
}

// NewService constructs a Service. duration <= 0 falls back to
// DefaultDuration.
func NewService(store identity.Store, engine *authz.Engine, sessions *bans.Creator, cookieCtrl *cookies.Controller, duration time.Duration, logger *slog.Logger) *Service {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Service{
		store:    store,
		engine:   engine,
		sessions: sessions,
		cookies:  cookieCtrl,
		duration: duration,
		logger:   logger,
	}
}

// Start begins impersonating targetID on behalf of the calling admin.
// Either every effect completes or none do: no cookies are written if
// the impersonated session cannot be created.
func (s *Service) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, caller *identity.Session, actor *identity.User, targetID string) (*identity.Session, *identity.User, error) {
	// Nested impersonation is forbidden: a second start would overwrite
	// the side cookie and orphan the first return path.
	if caller.ImpersonatedBy != "" {
		return nil, nil, httpx.BadRequest(CodeAlreadyImpersonating, "stop the current impersonation first")
	}
	if !s.engine.Authorize(actor.Role, authz.AccessRequest{"user": {"impersonate"}}) {
		return nil, nil, httpx.Forbidden(CodeNotAllowedToImpersonate, "you are not allowed to impersonate users")
	}
	target, err := s.store.FindUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil, httpx.NotFound(CodeUserNotFound, "user not found")
		}
		return nil, nil, fmt.Errorf("impersonation: find target: %w", err)
	}

	session, err := s.sessions.Create(ctx, target.ID, r.URL.Path, bans.Overrides{
		TTL:            s.duration,
		ImpersonatedBy: actor.ID,
		IPAddress:      caller.IPAddress,
		UserAgent:      caller.UserAgent,
	})
	if err != nil {
		// Ban rejections pass through unchanged; the target being banned
		// is not an internal fault.
		var redirect *bans.RedirectError
		if errors.Is(err, httpx.ErrForbidden) || errors.As(err, &redirect) {
			return nil, nil, err
		}
		return nil, nil, httpx.Internal(CodeFailedToCreateSession, "failed to create impersonation session")
	}

	dontRemember, err := s.cookies.GetSigned(r, cookies.DontRememberCookie)
	if err != nil {
		dontRemember = ""
	}

	s.cookies.DeleteSessionCookie(w)
	record := SavedSession{Token: caller.Token, DontRememberMe: dontRemember}
	s.cookies.SetSigned(w, cookies.AdminSessionCookie, record.Encode(), cookies.Options{MaxAge: s.duration})
	s.cookies.SetSessionCookie(w, session, false)

	if s.logger != nil {
		s.logger.Info("impersonation started",
			slog.String("admin_id", actor.ID),
			slog.String("target_id", target.ID))
	}
	return session, target, nil
}

// Stop ends the impersonation carried by current and restores the
// admin's own session from the side cookie. Loss of the side cookie is
// unrecoverable by design: the admin must sign in again.
func (s *Service) Stop(ctx context.Context, w http.ResponseWriter, r *http.Request, current *identity.Session) (*identity.Session, error) {
	if current.ImpersonatedBy == "" {
		return nil, httpx.BadRequest(CodeNotImpersonating, "you are not impersonating anyone")
	}
	admin, err := s.store.FindUserByID(ctx, current.ImpersonatedBy)
	if err != nil {
		return nil, httpx.Internal(CodeFailedToRestoreSession, "impersonating admin no longer exists")
	}
	raw, err := s.cookies.GetSigned(r, cookies.AdminSessionCookie)
	if err != nil {
		return nil, httpx.Internal(CodeFailedToRestoreSession, "missing impersonation back-reference")
	}
	record, err := DecodeSavedSession(raw)
	if err != nil {
		return nil, httpx.Internal(CodeFailedToRestoreSession, "corrupted impersonation back-reference")
	}
	saved, err := s.store.FindSession(ctx, record.Token)
	if err != nil {
		return nil, httpx.Internal(CodeFailedToRestoreSession, "saved admin session no longer exists")
	}
	// Ownership mismatch is a tampering or corruption signal; never
	// silently restore somebody else's session.
	if saved.UserID != admin.ID {
		return nil, httpx.Internal(CodeFailedToRestoreSession, "saved session does not belong to the impersonating admin")
	}
	if err := s.store.DeleteSession(ctx, current.Token); err != nil {
		return nil, fmt.Errorf("impersonation: delete session: %w", err)
	}

	s.cookies.Clear(w, cookies.AdminSessionCookie)
	s.cookies.SetSessionCookie(w, saved, record.DontRememberMe != "")

	if s.logger != nil {
		s.logger.Info("impersonation stopped",
			slog.String("admin_id", admin.ID),
			slog.String("target_id", current.UserID))
	}
	return saved, nil
}
