// Package apperr defines the error taxonomy of the realtime core. Every
// rejected action maps to exactly one Code, and the code travels back to the
// acting client as an "error" event; per-action errors are never broadcast.
package apperr

import (
	"errors"
	"time"
)

// Code classifies an error for the client.
type Code string

const (
	CodeAuthentication Code = "authentication_error"
	CodeValidation     Code = "validation_error"
	CodeAuthorization  Code = "authorization_error"
	CodeRateLimit      Code = "rate_limit_error"
	CodeNotFound       Code = "not_found"
	CodeStateConflict  Code = "state_conflict"
	CodeTimeout        Code = "timeout"
	CodeInternal       Code = "internal_error"
)

// Error is an application error with a taxonomy code. RetryAfter is only set
// for rate-limit rejections.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func Authentication(msg string) *Error { return &Error{Code: CodeAuthentication, Message: msg} }
func Validation(msg string) *Error     { return &Error{Code: CodeValidation, Message: msg} }
func Authorization(msg string) *Error  { return &Error{Code: CodeAuthorization, Message: msg} }
func NotFound(msg string) *Error       { return &Error{Code: CodeNotFound, Message: msg} }
func StateConflict(msg string) *Error  { return &Error{Code: CodeStateConflict, Message: msg} }
func Timeout(msg string) *Error        { return &Error{Code: CodeTimeout, Message: msg} }
func Internal(msg string) *Error       { return &Error{Code: CodeInternal, Message: msg} }

// RateLimited builds a rate-limit error carrying a retry-after hint.
func RateLimited(msg string, retryAfter time.Duration) *Error {
	return &Error{Code: CodeRateLimit, Message: msg, RetryAfter: retryAfter}
}

// From coerces any error into an *Error. Unknown errors become CodeInternal
// with a generic message so store internals never leak to clients.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error")
}
