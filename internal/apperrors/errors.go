package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how the caller should react to them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindQuota         Kind = "quota"
	KindRateLimit     Kind = "rate_limit"
	KindUnavailable   Kind = "unavailable"
)

// Error is the error type returned by every service operation.
// Reason is a stable machine-readable code, Message is for humans.
type Error struct {
	Kind    Kind   `json:"-"`
	Reason  string `json:"code"`
	Message string `json:"error"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same Kind and Reason, so sentinel values
// declared with the constructors below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Constructors

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func Validation(reason, message string) *Error {
	return New(KindValidation, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(KindConflict, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(KindAuthorization, reason, message)
}

func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

func Quota(reason, message string) *Error {
	return New(KindQuota, reason, message)
}

func RateLimited(reason, message string) *Error {
	return New(KindRateLimit, reason, message)
}

// Unavailable wraps an infrastructure failure. An error that already carries
// a Kind is returned unchanged.
func Unavailable(message string, cause error) error {
	var appErr *Error
	if errors.As(cause, &appErr) {
		return cause
	}
	return &Error{Kind: KindUnavailable, Reason: "UNAVAILABLE", Message: message, Cause: cause}
}

// KindOf returns the Kind of err, or KindUnavailable for errors that did not
// come out of this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnavailable
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// ReasonOf returns the machine-readable reason code of err.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return "UNAVAILABLE"
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindQuota, KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}
