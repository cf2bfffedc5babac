package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the domain layer. Services wrap these with
// fmt.Errorf("...: %w", ...) or attach a stable code via APIError.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("resource not found")
	ErrInternal     = errors.New("internal error")
)

// APIError carries a stable machine-readable code alongside the
// taxonomy sentinel it belongs to.
type APIError struct {
	kind    error
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap ties the error into the taxonomy so errors.Is keeps working.
func (e *APIError) Unwrap() error { return e.kind }

// Unauthorized builds a coded Unauthorized error.
func Unauthorized(code, message string) *APIError {
	return &APIError{kind: ErrUnauthorized, Code: code, Message: message}
}

// Forbidden builds a coded Forbidden error.
func Forbidden(code, message string) *APIError {
	return &APIError{kind: ErrForbidden, Code: code, Message: message}
}

// BadRequest builds a coded BadRequest error.
func BadRequest(code, message string) *APIError {
	return &APIError{kind: ErrBadRequest, Code: code, Message: message}
}

// NotFound builds a coded NotFound error.
func NotFound(code, message string) *APIError {
	return &APIError{kind: ErrNotFound, Code: code, Message: message}
}

// Internal builds a coded Internal error.
func Internal(code, message string) *APIError {
	return &APIError{kind: ErrInternal, Code: code, Message: message}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var coded *APIError
	code := ""
	detail := ""
	if errors.As(err, &coded) {
		code = coded.Code
		detail = coded.Message
	} else if err != nil {
		detail = err.Error()
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", code, detail)
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", code, detail)
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", code, detail)
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", code, detail)
	default:
		// Internal details never leak to the caller.
		Problem(w, http.StatusInternalServerError, "Internal Error", code, "")
	}
}
