// Package apperr defines the error taxonomy shared by the store, the adapters
// and the HTTP layer. Every failure that reaches a handler is classified into
// exactly one Kind, which fixes the HTTP status of the error envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindUnavailable     Kind = "SERVICE_UNAVAILABLE"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// Error is a classified error. Message is safe to show to the end user;
// Err keeps the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches per-field details rendered in the envelope "errors" member.
func (e *Error) WithDetails(details map[string]string) *Error {
	e.Details = details
	return e
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return newError(KindValidation, message, nil) }

func Unauthenticated(message string) *Error { return newError(KindUnauthenticated, message, nil) }

func Forbidden(message string) *Error { return newError(KindForbidden, message, nil) }

func NotFound(message string) *Error { return newError(KindNotFound, message, nil) }

func Conflict(message string, err error) *Error { return newError(KindConflict, message, err) }

func Unavailable(message string, err error) *Error { return newError(KindUnavailable, message, err) }

func Internal(message string, err error) *Error { return newError(KindInternal, message, err) }

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the Kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
