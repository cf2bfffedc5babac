// Package cookies implements the transport-level session cookie
// controller: HMAC-signed cookies for the primary session, the
// remember-me preference and the impersonation side channel.
package cookies

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/frectonz/better-auth/internal/identity"
)

// Cookie names, composed with the configured prefix via AuthCookieName.
const (
	SessionCookie      = "session_token"
	DontRememberCookie = "dont_remember"
	AdminSessionCookie = "admin_session"
)

// ErrCookieMissing indicates the named cookie was absent.
var ErrCookieMissing = errors.New("cookies: missing")

// ErrBadSignature indicates the cookie value failed signature
// verification.
var ErrBadSignature = errors.New("cookies: bad signature")

// Options controls attributes of a written cookie.
type Options struct {
	MaxAge  time.Duration
	Expires time.Time
}

// Controller signs, reads and writes the auth cookies.
type Controller struct {
	secret []byte
	prefix string
	secure bool
}

// NewController constructs a Controller. prefix namespaces every
// cookie name; secure toggles the Secure attribute and the
// __Secure- name prefix.
func NewController(secret, prefix string, secure bool) *Controller {
	return &Controller{secret: []byte(secret), prefix: prefix, secure: secure}
}

// AuthCookieName composes the full cookie name for the given suffix.
func (c *Controller) AuthCookieName(name string) string {
	full := c.prefix + "." + name
	if c.secure {
		return "__Secure-" + full
	}
	return full
}

// SetSessionCookie writes the primary session cookie. When
// dontRememberMe is set the cookie becomes a browser-session cookie;
// impersonation sessions always honor their own expiry instead of the
// admin's remember-me preference.
func (c *Controller) SetSessionCookie(w http.ResponseWriter, session *identity.Session, dontRememberMe bool) {
	opts := Options{Expires: session.ExpiresAt}
	if dontRememberMe && session.ImpersonatedBy == "" {
		opts = Options{}
	}
	c.SetSigned(w, SessionCookie, session.Token, opts)
}

// DeleteSessionCookie expires the primary session cookie without
// touching the underlying session record.
func (c *Controller) DeleteSessionCookie(w http.ResponseWriter) {
	c.Clear(w, SessionCookie)
}

// ReadSessionToken returns the verified session token from the
// request, or an error when absent or tampered with.
func (c *Controller) ReadSessionToken(r *http.Request) (string, error) {
	return c.GetSigned(r, SessionCookie)
}

// SetSigned writes a cookie whose value carries an HMAC signature.
func (c *Controller) SetSigned(w http.ResponseWriter, name, value string, opts Options) {
	cookie := &http.Cookie{
		Name:     c.AuthCookieName(name),
		Value:    c.sign(value),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !opts.Expires.IsZero() {
		cookie.Expires = opts.Expires
	}
	if opts.MaxAge > 0 {
		cookie.MaxAge = int(opts.MaxAge.Seconds())
	}
	http.SetCookie(w, cookie)
}

// GetSigned reads and verifies a signed cookie value.
func (c *Controller) GetSigned(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(c.AuthCookieName(name))
	if err != nil {
		return "", ErrCookieMissing
	}
	return c.verify(cookie.Value)
}

// Clear expires the named cookie.
func (c *Controller) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.AuthCookieName(name),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sign encodes value.signature, both base64url, so values may contain
// any delimiter.
func (c *Controller) sign(value string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString([]byte(value)) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Controller) verify(raw string) (string, error) {
	encoded, sig, ok := strings.Cut(raw, ".")
	if !ok {
		return "", ErrBadSignature
	}
	value, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrBadSignature
	}
	wantSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrBadSignature
	}
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write(value)
	if !hmac.Equal(mac.Sum(nil), wantSig) {
		return "", ErrBadSignature
	}
	return string(value), nil
}
