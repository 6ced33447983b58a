package domain

import "fmt"

// ErrorKind classifies an Error for transport mapping.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindAuthorization   ErrorKind = "authorization"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindUpstream        ErrorKind = "upstream"
	KindInternal        ErrorKind = "internal"
)

// Error is a domain failure with a stable code.
type Error struct {
	Code    string
	Kind    ErrorKind
	Message string
}

// NewError creates a new Error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so a wrapped or
// re-messaged error still matches its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Code: e.Code, Kind: e.Kind, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidTransition is returned by Transition for a disallowed action.
var ErrInvalidTransition = NewError(KindConflict, "INVALID_TRANSITION", "invalid ride transition")
