package middleware

import (
	"errors"
	"net/http"

	dErrors "boxoffice/pkg/domain-errors"
	"boxoffice/pkg/platform/httputil"
)

// Error types rendered in the JSON "type" field.
const (
	TypeRateLimitExceeded  = "RateLimitExceeded"
	TypeAccessDenied       = "AccessDenied"
	TypeServiceUnavailable = "ServiceUnavailable"
)

// Error is the typed denial returned by Enforce. The surrounding error layer
// renders it with WriteError; its message is always safe to show clients.
// It unwraps to a domain error carrying Code, so dErrors.HasCode and
// dErrors.CodeOf see through it.
type Error struct {
	Code    dErrors.Code
	Type    string
	Status  int
	Message string
	// RetryAfter is the wait in whole seconds; zero means no retry guidance.
	RetryAfter int64
	Details    map[string]any
}

func (e *Error) Error() string {
	return e.Type + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return &dErrors.Error{Code: e.Code, Message: e.Message}
}

// StatusCode returns the HTTP status the error maps to.
func (e *Error) StatusCode() int {
	return e.Status
}

// WriteError renders err as a JSON error body. Errors that are not *Error fall
// back to domain error translation, so internal text never leaks.
func WriteError(w http.ResponseWriter, err error) {
	var mwErr *Error
	if !errors.As(err, &mwErr) {
		httputil.WriteError(w, err)
		return
	}
	resp := httputil.ErrorResponse{
		Type:    mwErr.Type,
		Message: mwErr.Message,
		Details: mwErr.Details,
	}
	if mwErr.RetryAfter > 0 {
		retry := mwErr.RetryAfter
		resp.RetryAfter = &retry
	}
	httputil.WriteJSON(w, mwErr.Status, resp)
}

// newError derives the rendered type and status from the domain code.
func newError(code dErrors.Code, message string) *Error {
	return &Error{
		Code:    code,
		Type:    httputil.DomainCodeToHTTPCode(code),
		Status:  httputil.DomainCodeToHTTPStatus(code),
		Message: message,
	}
}

func rateLimitExceeded(message string, retryAfter int64, details map[string]any) *Error {
	e := newError(dErrors.CodeRateLimited, message)
	e.RetryAfter = retryAfter
	e.Details = details
	return e
}

func accessDenied() *Error {
	return newError(dErrors.CodeAccessDenied, "Access denied.")
}

func serviceUnavailable() *Error {
	return newError(dErrors.CodeUnavailable, "Service temporarily unavailable. Please try again shortly.")
}
