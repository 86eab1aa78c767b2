package domain

import (
	"errors"
	"fmt"
)

// ErrInput is the parent of every caller contract violation.
var ErrInput = errors.New("invalid input")

var (
	ErrEmptyInput        = fmt.Errorf("%w: image buffer is empty", ErrInput)
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimensions must match", ErrInput)
	ErrInvalidImage      = fmt.Errorf("%w: malformed image", ErrInput)
	ErrInvalidLabel      = fmt.Errorf("%w: invalid label", ErrInput)
	ErrImageTooLarge     = fmt.Errorf("%w: image too large", ErrInput)

	// ErrInitialization marks an embedder that could not load its model.
	// It is sticky for the embedder instance.
	ErrInitialization = errors.New("embedder initialization failed")

	ErrNotFound        = errors.New("not found")
	ErrDuplicateSample = errors.New("sample already exists")
	ErrNoSamples       = errors.New("no samples available")
	ErrTooManySamples  = errors.New("sample count exceeds evaluation limit")
)

// RetryableError wraps a failure that may succeed on a later attempt, such
// as a timed out model download.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s (retryable): %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err or anything it wraps is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
