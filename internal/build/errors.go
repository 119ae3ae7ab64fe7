package build

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by Build when its context ends before the
	// session reaches a result. Cancelled sessions never write to the cache.
	ErrCancelled = errors.New("build cancelled")
	// ErrSessionReused is returned when Build is called more than once.
	ErrSessionReused = errors.New("build session already used")
	// ErrNotBuilt is returned by GenerateHTML unless the session succeeded
	// without diagnostics.
	ErrNotBuilt = errors.New("build session has no successful result")
)

// cancelled wraps the context error so callers can match either sentinel.
func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
