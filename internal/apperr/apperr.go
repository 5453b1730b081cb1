// Package apperr defines the application error kinds carried end-to-end
// through operations, the HTTP surface, and the websocket transports. A kind
// maps deterministically onto an HTTP status code and a websocket error code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindDBConnection
	KindDatabase
	KindConflict
	KindNotFound
	KindAuth
	KindBadRequest
	KindInternal
	KindUpstream
)

// Error is the application error type. Status is only meaningful for
// KindUpstream, where it preserves the remote HTTP status.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	wrapped error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDBConnection:
		return fmt.Sprintf("Database connection error: %s", e.Message)
	case KindDatabase:
		return fmt.Sprintf("Database error: %s", e.Message)
	case KindConflict:
		return "Unique constraint violation"
	case KindNotFound:
		return "Resource not found"
	case KindAuth:
		return fmt.Sprintf("Unauthorized: %s", e.Message)
	case KindBadRequest:
		return fmt.Sprintf("Bad request: %s", e.Message)
	case KindInternal:
		return fmt.Sprintf("Internal error: %s", e.Message)
	case KindUpstream:
		return fmt.Sprintf("Upstream error: %s", e.Message)
	default:
		return fmt.Sprintf("Unknown error: %s", e.Message)
	}
}

func (e *Error) Unwrap() error { return e.wrapped }

// HTTPStatus maps the error kind onto an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstream:
		if e.Status != 0 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WsCode maps the error kind onto a websocket error code string.
func (e *Error) WsCode() string {
	switch e.Kind {
	case KindAuth:
		return "auth_error"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Auth builds an authorization failure with a one-line reason.
func Auth(message string) *Error { return New(KindAuth, message) }

// BadRequest builds a malformed-input error.
func BadRequest(message string) *Error { return New(KindBadRequest, message) }

// NotFound builds a not-found error.
func NotFound() *Error { return New(KindNotFound, "") }

// Conflict builds a unique-violation error.
func Conflict() *Error { return New(KindConflict, "") }

// Internal builds an unexpected-condition error.
func Internal(message string) *Error { return New(KindInternal, message) }

// Internalf builds an unexpected-condition error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(KindInternal, format, args...)
}

// Upstream preserves a peer's non-2xx status and body.
func Upstream(status int, body string) *Error {
	return &Error{Kind: KindUpstream, Message: body, Status: status}
}

// Wrap attaches an underlying cause while keeping the kind and message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, wrapped: err}
}

// From extracts an *Error from err, or wraps it as KindUnknown.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), wrapped: err}
}

// FromWsCode converts a websocket error code and message received from a peer
// back into the matching local kind.
func FromWsCode(code, message string) *Error {
	switch code {
	case "auth_error":
		return &Error{Kind: KindAuth, Message: message}
	case "bad_request":
		return &Error{Kind: KindBadRequest, Message: message}
	case "not_found":
		return &Error{Kind: KindNotFound, Message: message}
	case "conflict":
		return &Error{Kind: KindConflict, Message: message}
	default:
		return &Error{Kind: KindUpstream, Message: fmt.Sprintf("[%s] %s", code, message), Status: http.StatusBadGateway}
	}
}

// IsNotFound reports whether err is a not-found application error.
func IsNotFound(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindNotFound
}

// IsConflict reports whether err is a unique-violation application error.
func IsConflict(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindConflict
}
