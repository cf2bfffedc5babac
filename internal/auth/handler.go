package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/frectonz/better-auth/internal/bans"
	"github.com/frectonz/better-auth/internal/cookies"
	"github.com/frectonz/better-auth/internal/platform/httpx"
	"github.com/frectonz/better-auth/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cookies   *cookies.Controller
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cookieCtrl *cookies.Controller) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		cookies:   cookieCtrl,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sign-in", h.signIn)
	r.Post("/sign-out", h.signOut)
}

type signInRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	RememberMe *bool  `json:"rememberMe"`
}

type signInResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.BadRequest("invalid_body", "malformed JSON body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.BadRequest("invalid_body", err.Error()))
		return
	}

	session, _, err := h.service.SignIn(r.Context(), req.Email, req.Password, r.URL.Path, bans.Overrides{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		var redirect *bans.RedirectError
		if errors.As(err, &redirect) {
			http.Redirect(w, r, redirect.URL, http.StatusFound)
			return
		}
		if h.logger != nil && !errors.Is(err, httpx.ErrUnauthorized) && !errors.Is(err, httpx.ErrForbidden) {
			h.logger.Error("sign in", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	dontRemember := req.RememberMe != nil && !*req.RememberMe
	h.cookies.SetSessionCookie(w, session, dontRemember)
	if dontRemember {
		h.cookies.SetSigned(w, cookies.DontRememberCookie, "true", cookies.Options{})
	} else {
		h.cookies.Clear(w, cookies.DontRememberCookie)
	}

	httpx.JSON(w, http.StatusOK, signInResponse{
		Token:     session.Token,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.Unauthorized("no_session", "not signed in"))
		return
	}
	if err := h.service.SignOut(r.Context(), sess.Token); err != nil {
		h.logger.Warn("sign out", slog.Any("error", err))
	}
	h.cookies.DeleteSessionCookie(w)
	h.cookies.Clear(w, cookies.DontRememberCookie)
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
