// Package apperr implements the control plane's closed error taxonomy: five
// kinds, never bare type assertions on arbitrary wrapped errors. Activities
// and repositories construct these at their boundary; workflows propagate
// them unwrapped; httpapi's middleware is the only place Kind maps to an
// HTTP status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy of the control plane.
type Kind string

const (
	// ClientError is a malformed request or a missing dependency row.
	// Never retried; surfaced as 4xx.
	ClientError Kind = "ClientError"
	// DuplicateItem is a unique-constraint violation. Never retried.
	DuplicateItem Kind = "DuplicateItem"
	// NotFound is an absent entity. In the workflow engine this is mapped
	// to a synthetic terminal status rather than raised as an error.
	NotFound Kind = "NotFound"
	// ServiceError is a transient or permanent backend failure, retried by
	// the activity's RetryPolicy up to its maximum attempts.
	ServiceError Kind = "ServiceError"
	// WorkflowFailure is a domain-specific failure raised by a workflow
	// body. Never retried at the workflow level.
	WorkflowFailure Kind = "WorkflowFailure"
)

// Error is the single typed error every boundary in the control plane
// raises. Kind is the only thing callers should branch on.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of kind, preserving err for errors.Is/As chains.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, defaulting to ServiceError for any error
// that did not originate from this package — an unclassified failure is
// treated as transient-and-retryable rather than silently swallowed.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ServiceError
}

// IsNotFound reports whether err (or a wrapped cause) is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsRetryable reports whether an activity should retry err. Only
// ServiceError is retryable by default; every other kind is terminal for the
// invocation that produced it.
func IsRetryable(err error) bool { return KindOf(err) == ServiceError }
