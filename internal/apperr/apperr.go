// Package apperr defines the caller-visible error taxonomy shared by the
// service layer and the HTTP handlers.  Every error that leaves a service
// carries a stable machine-readable Kind plus a human message; validation
// failures additionally carry per-field detail.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the stable, machine-readable class of an error.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation_error"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindUpstream     Kind = "upstream_error"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind      Kind
	Message   string
	Fields    []FieldError
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + ": " + f.Message)
		if i == len(e.Fields)-1 {
			b.WriteString(")")
		}
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports kind equality so errors.Is(err, apperr.ErrConflict) style
// comparisons work against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.cause == nil && len(t.Fields) == 0
}

// Sentinels usable with errors.Is.  They match any *Error of the same kind.
var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrNotFound     = &Error{Kind: KindNotFound}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func Unauthorized(format string, args ...any) *Error { return New(KindUnauthorized, format, args...) }
func Forbidden(format string, args ...any) *Error    { return New(KindForbidden, format, args...) }
func NotFound(format string, args ...any) *Error     { return New(KindNotFound, format, args...) }
func InvalidState(format string, args ...any) *Error { return New(KindInvalidState, format, args...) }

// Conflict signals a lost compare-and-set.  Callers should re-fetch and retry.
func Conflict(format string, args ...any) *Error { return New(KindConflict, format, args...) }

// Upstream wraps an external collaborator failure.  Timeouts are retryable.
func Upstream(cause error, retryable bool, format string, args ...any) *Error {
	e := Wrap(KindUpstream, cause, format, args...)
	e.Retryable = retryable
	return e
}

// Validation builds a validation error from field details.
func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

// Field is shorthand for a single-field validation error.
func Field(field, message string) *Error {
	return Validation(FieldError{Field: field, Message: message})
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus maps a kind to the response status used by the handlers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
