package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/voyahq/tripwire/faults"
)

// Sentinel errors - use with errors.Is()
var (
	ErrMissingBaseURL   = errors.New("provider: base URL not configured")
	ErrMissingAPIKey    = errors.New("provider: API key not configured")
	ErrResponseTooLarge = errors.New("provider: response too large")
)

// APIError represents an error response from an upstream provider.
// Use errors.As() to extract details.
type APIError struct {
	Status     int    // HTTP status
	Code       string // provider error code, if the envelope carried one
	Message    string
	Endpoint   string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider: %s failed: %s (status=%d, code=%s, retry_after=%s)",
			e.Endpoint, e.Message, e.Status, e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("provider: %s failed: %s (status=%d, code=%s)",
		e.Endpoint, e.Message, e.Status, e.Code)
}

// Class maps the HTTP status to the shared error taxonomy.
func (e *APIError) Class() faults.Class {
	switch {
	case e.Status == 429:
		return faults.RateLimited
	case e.Status >= 500:
		return faults.Transient
	case e.Status == 409:
		return faults.Conflict
	case e.Status >= 400:
		return faults.Validation
	default:
		return faults.Unknown
	}
}

// asFault wraps an APIError in a classified faults.Error. This is the
// boundary where upstream failures get their tag; everything above
// pattern-matches on the class, never on message text.
func asFault(e *APIError) error {
	if e.RetryAfter > 0 {
		return faults.NewWithRetryAfter(e.Class(), e.Endpoint, e, e.RetryAfter)
	}
	return faults.New(e.Class(), e.Endpoint, e)
}
