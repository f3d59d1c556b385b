package memory

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error category. Adapters map kinds onto
// protocol status codes.
type Kind string

// Error kinds.
const (
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindMisconfigured Kind = "misconfigured"
	KindTransient     Kind = "transient"
	KindInternal      Kind = "internal"
)

// Error is the typed error surfaced by every engine.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a typed error with no cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a typed error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a typed error wrapping a cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsInvalidInput reports whether err is an InvalidInput error.
func IsInvalidInput(err error) bool { return hasKind(err, KindInvalidInput) }

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool { return hasKind(err, KindConflict) }

// IsMisconfigured reports whether err is a Misconfigured error.
func IsMisconfigured(err error) bool { return hasKind(err, KindMisconfigured) }

// IsTransient reports whether err is a Transient error.
func IsTransient(err error) bool { return hasKind(err, KindTransient) }

func hasKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
