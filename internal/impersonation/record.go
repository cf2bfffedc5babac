package impersonation

import (
	"errors"
	"strings"
)

// recordDelimiter separates the saved token from the remember-me flag
// on the wire.
const recordDelimiter = ":"

// ErrMalformedRecord indicates the side cookie did not decode into a
// saved session.
var ErrMalformedRecord = errors.New("impersonation: malformed saved session record")

// SavedSession is the side-channel record written while impersonation
// is active: the administrator's own session token plus the
// remember-me flag captured when impersonation started. It is the only
// durable link back to the admin session.
type SavedSession struct {
	Token          string
	DontRememberMe string
}

// Encode serializes the record into its cookie wire form.
func (s SavedSession) Encode() string {
	return s.Token + recordDelimiter + s.DontRememberMe
}

// DecodeSavedSession parses the cookie wire form.
func DecodeSavedSession(raw string) (SavedSession, error) {
	token, flag, ok := strings.Cut(raw, recordDelimiter)
	if !ok || token == "" {
		return SavedSession{}, ErrMalformedRecord
	}
	return SavedSession{Token: token, DontRememberMe: flag}, nil
}
