package moltbook

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies API failures so callers can decide on retry behavior.
type ErrorKind int

const (
	// KindTransient covers network errors, timeouts, and 5xx responses.
	// Safe to retry for idempotent requests.
	KindTransient ErrorKind = iota

	// KindRateLimited is an HTTP 429. RetryAfter carries the server hint.
	KindRateLimited

	// KindAuth is a 401 or 403. Not retryable; the daemon should stop.
	KindAuth

	// KindClient is any other 4xx, including refused redirects. Not retryable.
	KindClient

	// KindMalformed means the response body could not be parsed.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate-limited"
	case KindAuth:
		return "auth"
	case KindClient:
		return "client"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// APIError is the structured error returned by all Client calls.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Method     string
	URL        string
	Message    string
	RetryAfter time.Duration // set for KindRateLimited
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("moltbook: %s %s: %s (%d): %s", e.Method, e.URL, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("moltbook: %s %s: %s: %s", e.Method, e.URL, e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// ErrDryRun is returned in place of performing a write request when the
// client was constructed with DryRun set.
var ErrDryRun = errors.New("moltbook: dry run, write request skipped")

// AsAPIError unwraps err into an *APIError, if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// RetryAfter returns the server-supplied cooldown hint from a rate-limit
// error, or false if err is not a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindRateLimited {
		return 0, false
	}
	return apiErr.RetryAfter, true
}
