package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider adapter failure. Every adapter error is
// caught at the adapter boundary and surfaced as exactly one of these kinds;
// nothing provider specific propagates past the model package.
type ErrorKind string

const (
	// ErrorKindAuth marks a bad or missing credential.
	ErrorKindAuth ErrorKind = "auth_error"
	// ErrorKindRateLimited marks an upstream rate limit rejection.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindProvider marks any other upstream 4xx/5xx condition.
	ErrorKindProvider ErrorKind = "provider_error"
	// ErrorKindNetwork marks a transport-level failure.
	ErrorKindNetwork ErrorKind = "network_error"
)

// ProviderError wraps an upstream failure with its normalized kind and the
// provider that produced it. It implements errors.Unwrap so callers can still
// reach the SDK error when needed.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with a kind and provider tag.
func NewProviderError(kind ErrorKind, provider string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the error kind from err, defaulting to ErrorKindProvider
// for errors that were not classified at an adapter boundary.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorKindProvider
}

var (
	// ErrRunNotFound is returned for operations on an unknown or evicted run.
	ErrRunNotFound = errors.New("run not found")
	// ErrStreamConsumed is returned when a run's event stream is claimed twice.
	ErrStreamConsumed = errors.New("run event stream already consumed")
	// ErrUnknownProvider is returned when no adapter factory matches a
	// config's provider name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingCredential is returned when a platform-key panel has no
	// platform credential configured for its provider.
	ErrMissingCredential = errors.New("no credential available for provider")
)
