// Package session provides the durable per-thread conversation state store
// with single-writer-per-thread access.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized indicates an operation was invoked before Init.
	// Always a caller bug; never retried.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrInvalidArgument indicates malformed input such as a negative token
	// count or an unknown message role. Rejected immediately, never retried.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StorageError wraps a persistence failure surfaced by a session operation.
// The caller decides whether to retry the enclosing stage attempt.
type StorageError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s failed for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError checks whether the error is a session storage failure.
func IsStorageError(err error) bool {
	var target *StorageError

	return errors.As(err, &target)
}
