// Package apperr defines the error kinds surfaced by the matching pipelines.
//
// The kind, not the message text, is the contract: callers branch on
// errors.Is(err, apperr.ErrValidation) and friends, and the HTTP layer picks a
// localized message for the kind.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is missing or invalid client input. Raised before any side effect.
	KindValidation
	// KindUpstreamTimeout is an embedding or storage call that exceeded its bound.
	KindUpstreamTimeout
	// KindUpstreamFailure is a transport error, non-2xx status or malformed body from a collaborator.
	KindUpstreamFailure
	// KindPersistence is a datastore read or write error.
	KindPersistence
	// KindNotFound is a lookup by identity with no match.
	KindNotFound
)

// String returns the stable machine name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified failure with a stable message and an underlying cause.
type Error struct {
	Kind    Kind
	Op      string // pipeline step, e.g. "storage.put"
	Field   string // offending input field for validation errors
	Message string
	Err     error
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUpstreamTimeout = &Error{Kind: KindUpstreamTimeout}
	ErrUpstreamFailure = &Error{Kind: KindUpstreamFailure}
	ErrPersistence     = &Error{Kind: KindPersistence}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Field != "":
		b.WriteString("invalid field " + e.Field)
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Detail returns the best-effort detail string shown to callers next to the
// localized message. It is the stable message plus the cause, without the op.
func (e *Error) Detail() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			return msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return msg
}

// Validation returns a validation error for field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Timeout wraps err as an upstream timeout raised by op.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindUpstreamTimeout, Op: op, Message: "upstream call timed out", Err: err}
}

// Upstream wraps err as an upstream failure raised by op.
func Upstream(op, message string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Op: op, Message: message, Err: err}
}

// Persistence wraps a datastore error raised by op.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: "datastore operation failed", Err: err}
}

// NotFound returns a not-found error for resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// DetailOf returns the detail of the first *Error in err's chain, or err.Error().
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}
