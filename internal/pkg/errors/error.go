package xerrors

import (
	"errors"
	"fmt"
)

// Error kinds shared across the billing stack.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized access")
	ErrBadRequest        = errors.New("bad request")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrConfiguration     = errors.New("configuration error")
	ErrUpstream          = errors.New("payment provider error")
	ErrPaymentRequired   = errors.New("payment required")
	ErrPortalUnavailable = errors.New("billing portal unavailable")
	ErrDegraded          = errors.New("degraded: served from last known state")
	ErrInternal          = errors.New("internal server error")
	ErrRateLimited       = errors.New("too many requests")
)

// Error couples a kind with a message that is safe to show the caller.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// New creates an Error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with a formatted message.
func Newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// UserMessage returns the message of the outermost *Error in the chain,
// or fallback when there is none.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
