package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the parent of every non-retryable setup error.
	ErrConfiguration = errors.New("configuration error")

	ErrUnsupportedTimeframe = fmt.Errorf("%w: unsupported timeframe", ErrConfiguration)
	ErrUnknownProvider      = fmt.Errorf("%w: unknown provider", ErrConfiguration)

	ErrPermanentProvider = errors.New("permanent provider error")
	ErrTransientProvider = errors.New("transient provider error")
	ErrProviderTimeout   = fmt.Errorf("%w: timeout", ErrTransientProvider)

	// ErrStoreWrite is fatal to a job.
	ErrStoreWrite = errors.New("store write failed")

	ErrNotFound           = errors.New("not found")
	ErrInstrumentNotFound = fmt.Errorf("instrument %w", ErrNotFound)
	ErrInstrumentInactive = errors.New("instrument inactive")
	ErrJobInProgress      = errors.New("job already running")
)

// ProviderError is a classified upstream failure.
type ProviderError struct {
	Provider   string
	Kind       error // ErrPermanentProvider, ErrTransientProvider or ErrProviderTimeout
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(provider string, status int, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrPermanentProvider, StatusCode: status, Err: err}
}

// Transient wraps err as a retryable provider failure.
func Transient(provider string, status int, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrTransientProvider, StatusCode: status, Err: err}
}

// Timeout wraps err as a request that ran out of time. It is retryable.
func Timeout(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderTimeout, Err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentProvider) || errors.Is(err, ErrConfiguration)
}

// ErrorKind maps an error to a low-cardinality metrics label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrPermanentProvider):
		return "permanent"
	case errors.Is(err, ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, ErrTransientProvider):
		return "transient"
	case errors.Is(err, ErrStoreWrite):
		return "store_write"
	default:
		return "unknown"
	}
}
