// Package apperr defines the error taxonomy shared by the access guard,
// the tenant resolver, and the setup gateway.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for both HTTP mapping and wizard behavior.
type Kind string

const (
	KindUnauthenticated      Kind = "unauthenticated"
	KindForbidden            Kind = "forbidden"
	KindBadRequest           Kind = "bad_request"
	KindNotFound             Kind = "not_found"
	KindConfigurationMissing Kind = "configuration_missing"
	KindSetupIncomplete      Kind = "setup_incomplete"
	KindDecryptionFailed     Kind = "decryption_failed"
	// KindMissingFunction means a tenant-side RPC is not deployed yet. The
	// wizard treats it as "run the setup script", not as a generic failure.
	KindMissingFunction  Kind = "missing_function"
	KindValidationFailed Kind = "validation_failed"
	KindUpdateFailed     Kind = "update_failed"
	KindUnknownUpstream  Kind = "unknown_upstream"
)

// statusByKind maps kinds to HTTP-like status codes.
var statusByKind = map[Kind]int{
	KindUnauthenticated:      http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindBadRequest:           http.StatusBadRequest,
	KindNotFound:             http.StatusNotFound,
	KindConfigurationMissing: http.StatusInternalServerError,
	KindSetupIncomplete:      http.StatusConflict,
	KindDecryptionFailed:     http.StatusInternalServerError,
	KindMissingFunction:      http.StatusBadRequest,
	KindValidationFailed:     http.StatusBadRequest,
	KindUpdateFailed:         http.StatusInternalServerError,
	KindUnknownUpstream:      http.StatusBadGateway,
}

// Error carries a kind, a user-facing message, and optional technical detail
// for the collapsible support panel. The detail may contain raw upstream
// errors but never secrets.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that records its upstream cause. The cause text is
// also surfaced as technical detail unless one is set explicitly.
func Wrap(kind Kind, message string, cause error) *Error {
	e := &Error{Kind: kind, Message: message, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// WithDetail sets the technical detail and returns the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf returns the kind of err, or KindUnknownUpstream for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknownUpstream
}

// StatusOf returns the HTTP status for err, with 500 as the fallback for
// errors outside the taxonomy.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}

// Is reports whether err belongs to the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
