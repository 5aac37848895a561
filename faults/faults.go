package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	// ErrInFlight is returned when an operation with the same key is
	// already being retried. The duplicate call is rejected, never queued.
	ErrInFlight = errors.New("tripwire: duplicate in-flight operation")

	// ErrInvalidConfig signals a malformed configuration value.
	ErrInvalidConfig = errors.New("tripwire: invalid configuration")
)

// Class tags an error by origin so retry decisions never depend on
// message text outside the classification boundary.
type Class int

const (
	// Unknown is anything classification could not place.
	Unknown Class = iota

	// Transient covers network failures, timeouts, and connection errors.
	// Retried per policy.
	Transient

	// RateLimited is an upstream 429 or equivalent. Retried, honoring
	// any Retry-After hint.
	RateLimited

	// Unavailable means a dependency is down or a circuit is open.
	// Not retried; retrying piles load on a failing service.
	Unavailable

	// Validation covers malformed requests and other caller mistakes.
	// Never retried.
	Validation

	// Conflict is a concurrency conflict, e.g. a duplicate in-flight
	// operation. Never retried.
	Conflict
)

// String returns the class name for logging.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Unavailable:
		return "unavailable"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Use errors.As() to extract details,
// errors.Is() to match the wrapped cause.
type Error struct {
	Class      Class
	Op         string        // logical operation that failed
	RetryAfter time.Duration // upstream backoff hint, 0 if none
	err        error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("tripwire: %s: [%s] %v", e.Op, e.Class, e.err)
	}
	return fmt.Sprintf("tripwire: [%s] %v", e.Class, e.err)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error { return e.err }

// New creates a classified error wrapping cause.
func New(class Class, op string, cause error) *Error {
	return &Error{Class: class, Op: op, err: cause}
}

// NewWithRetryAfter creates a classified error carrying an upstream
// backoff hint.
func NewWithRetryAfter(class Class, op string, cause error, retryAfter time.Duration) *Error {
	return &Error{Class: class, Op: op, RetryAfter: retryAfter, err: cause}
}

// transientHints are the message substrings the original heuristic
// matched on. Kept only as a fallback for errors that reach us untyped.
var transientHints = []string{"network", "timeout", "fetch", "connection"}

// Classify returns the Class of err. Typed inspection runs first;
// message-substring matching is a last resort for untyped errors.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}

	if errors.Is(err, ErrInFlight) {
		return Conflict
	}

	// Context errors mean the caller gave up, not that the upstream is flaky.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return Transient
		}
	}

	return Unknown
}

// IsTransient reports whether err should be retried by default.
// Rate-limited errors count as transient; the backoff honors their hint.
func IsTransient(err error) bool {
	switch Classify(err) {
	case Transient, RateLimited:
		return true
	default:
		return false
	}
}

// RetryAfter extracts an upstream backoff hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		return fe.RetryAfter, true
	}
	return 0, false
}

// UserMessage maps err to a short human-readable category suitable for
// a toast or notification.
func UserMessage(err error) string {
	switch Classify(err) {
	case Transient:
		return "connection error, please try again"
	case RateLimited:
		return "service busy, please wait a moment"
	case Unavailable:
		return "service temporarily unavailable"
	case Validation:
		return "validation error, please check your input"
	case Conflict:
		return "request already in progress"
	default:
		return "something went wrong, please try again"
	}
}
