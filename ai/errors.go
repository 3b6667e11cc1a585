package ai

import (
	"errors"
	"fmt"
)

// EmbeddingError indicates the embedding provider call errored, timed out,
// or was handed malformed input. The engine surfaces it as a single
// user-facing failure; it is never silently downgraded to keyword search.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("embedding failed: %s", e.Reason)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// NewEmbeddingError wraps err as an EmbeddingError.
func NewEmbeddingError(reason string, err error) error {
	return &EmbeddingError{Reason: reason, Err: err}
}

// IsEmbeddingError reports whether err is (or wraps) an EmbeddingError.
func IsEmbeddingError(err error) bool {
	var target *EmbeddingError
	return errors.As(err, &target)
}
