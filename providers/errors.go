package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// TransientError marks a provider failure worth retrying with backoff:
// network errors, timeouts, 5xx responses.
type TransientError struct {
	Provider string
	Err      error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient provider error: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a provider failure that retrying cannot fix:
// auth, quota, and other 4xx-class responses. The calling stage degrades.
type PermanentError struct {
	Provider   string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: permanent provider error (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: permanent provider error: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError
func Transient(provider string, err error) error {
	return &TransientError{Provider: provider, Err: err}
}

// Permanent wraps err as a PermanentError
func Permanent(provider string, status int, err error) error {
	return &PermanentError{Provider: provider, StatusCode: status, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// classifyRequestError maps a transport-level error to the taxonomy.
// Timeouts and network failures are transient; context cancellation is
// passed through untouched so callers can distinguish their own cancels.
func classifyRequestError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Transient(provider, fmt.Errorf("timeout: %w", err))
	}
	return Transient(provider, err)
}

// classifyStatus maps a non-2xx HTTP status to the taxonomy:
// 4xx (auth/quota/bad request) is permanent, everything else transient.
func classifyStatus(provider string, status int) error {
	err := fmt.Errorf("unexpected status %d", status)
	if status >= 400 && status < 500 {
		return Permanent(provider, status, err)
	}
	return Transient(provider, fmt.Errorf("HTTP %d: %w", status, err))
}

// newHTTPClient builds the shared provider HTTP client shape
func newHTTPClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	return &http.Client{
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}
