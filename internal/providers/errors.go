package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/voxpipe/voxpipe/internal/models"
)

// ErrKind classifies a provider failure. The retrier keys its policy off
// this kind; adapters never retry on their own.
type ErrKind string

const (
	// ErrKindInputUnreadable means the input file is missing or empty.
	ErrKindInputUnreadable ErrKind = "input_unreadable"
	// ErrKindInputTooLarge means the provider rejected the input size.
	ErrKindInputTooLarge ErrKind = "input_too_large"
	// ErrKindRateLimited means the provider throttled the call. Retryable;
	// RetryAfter carries the provider's hint when one was given.
	ErrKindRateLimited ErrKind = "rate_limited"
	// ErrKindTransient means a retryable failure (5xx, connection reset).
	ErrKindTransient ErrKind = "transient"
	// ErrKindAuth means the credentials were rejected.
	ErrKindAuth ErrKind = "auth"
	// ErrKindPermanent means a do-not-retry failure (4xx, malformed reply).
	ErrKindPermanent ErrKind = "permanent"
)

// Retryable reports whether the same provider may be called again for
// this kind of failure.
func (k ErrKind) Retryable() bool {
	return k == ErrKindRateLimited || k == ErrKindTransient
}

// StageErrorKind maps an adapter error kind to the kind recorded on the
// stage state.
func (k ErrKind) StageErrorKind() models.ErrorKind {
	switch k {
	case ErrKindInputUnreadable:
		return models.ErrorKindInputUnreadable
	case ErrKindInputTooLarge:
		return models.ErrorKindInputTooLarge
	case ErrKindRateLimited:
		return models.ErrorKindProviderRateLimited
	case ErrKindTransient:
		return models.ErrorKindProviderTransient
	case ErrKindAuth:
		return models.ErrorKindProviderAuth
	default:
		return models.ErrorKindProviderPermanent
	}
}

// Error is the structured failure every adapter returns.
type Error struct {
	// Kind classifies the failure for the retrier.
	Kind ErrKind

	// Provider names the adapter that produced the error.
	Provider string

	// RetryAfter is the provider's own backoff hint for rate limits;
	// zero when the provider gave none.
	RetryAfter time.Duration

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs a provider error.
func NewError(provider string, kind ErrKind, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the error kind from an error chain. Unclassified errors
// report ErrKindTransient so an unexpected failure is retried rather than
// permanently failing the stage.
func KindOf(err error) ErrKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindTransient
}

// AsError extracts the *Error from an error chain, if present.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

// FromHTTPStatus maps an HTTP response status to a provider error.
// The Retry-After header value (seconds or HTTP date) feeds the rate-limit
// hint when present.
func FromHTTPStatus(provider string, status int, header http.Header, body string) *Error {
	cause := fmt.Errorf("http %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(provider, ErrKindAuth, cause)
	case status == http.StatusRequestEntityTooLarge:
		return NewError(provider, ErrKindInputTooLarge, cause)
	case status == http.StatusTooManyRequests:
		e := NewError(provider, ErrKindRateLimited, cause)
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		return e
	case status >= 500:
		return NewError(provider, ErrKindTransient, cause)
	default:
		return NewError(provider, ErrKindPermanent, cause)
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
