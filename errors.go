package imagegate

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrDailyLimitReached   = errors.New("imagegate: daily limit reached")
	ErrWaitTimeout         = errors.New("imagegate: timed out waiting for a free slot")
	ErrWatchUnsupported    = errors.New("imagegate: store does not publish changes")
	ErrNoGenerators        = errors.New("imagegate: no generators available")
	ErrInvalidRequest      = errors.New("imagegate: invalid request")
	ErrAuthFailed          = errors.New("imagegate: authentication failed")
	ErrNotConfigured       = errors.New("imagegate: generator not configured")
	ErrRateLimited         = errors.New("imagegate: rate limited by provider")
	ErrBillingLimit        = errors.New("imagegate: provider billing limit reached")
	ErrProviderUnavailable = errors.New("imagegate: provider unavailable")
	ErrAllFailed           = errors.New("imagegate: all generators failed")
)

// RelayError wraps an error with relay context.
type RelayError struct {
	Err       error
	Generator string
	Attempts  int
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("imagegate: generator=%s attempts=%d: %v", e.Generator, e.Attempts, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error should not be retried with another generator.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNotConfigured)
}

// IsRetryable returns true if the error can be retried with another generator.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrBillingLimit)
}
