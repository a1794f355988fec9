package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every collaborator error into one of a small set of
// retry/routing categories. The job layer switches only on this kind, never
// on transport-level status codes.
type ErrorKind int

const (
	// KindInternal is the default for unexpected errors. Queued callers
	// requeue these until the broker's delivery-attempt bound moves the
	// message to the dead-letter queue.
	KindInternal ErrorKind = iota
	// KindAuth covers credential failures (401/403). Terminal; routed to
	// the dead-letter queue without redelivery.
	KindAuth
	// KindNotFound covers a missing PR or resource (404). Terminal.
	KindNotFound
	// KindTransient covers timeouts, 5xx and rate limiting. Retryable up
	// to a bounded attempt count.
	KindTransient
	// KindContent covers malformed or unsafe generation requests.
	// Retrying is unlikely to help, so it is non-retryable.
	KindContent
	// KindInvalid covers malformed input such as an unparseable queue
	// payload. Acknowledged immediately; the broker cannot fix it.
	KindInvalid
)

// String returns a short tag for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindContent:
		return "content"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() error { return e.err }

// WrapError tags err with a kind. A nil err returns nil.
func WrapError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Errorf builds a new tagged error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain. Untagged errors are
// internal: an error that was never classified at a collaborator boundary
// must not accidentally look retry-safe.
func KindOf(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

// Retryable reports whether the error kind permits another delivery attempt.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindInternal:
		return true
	default:
		return false
	}
}
