package vecstore

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingHandle is returned by builders when the mandatory backend
	// handle was not supplied.
	ErrMissingHandle = errors.New("backend handle is required")

	// ErrEmptyCollectionName is returned by GetCollection for an empty name.
	ErrEmptyCollectionName = errors.New("collection name must not be empty")

	// ErrMissingRecordType is returned when neither a record type nor an
	// explicit definition was supplied.
	ErrMissingRecordType = errors.New("record type or definition is required")

	// ErrInvalidDefinition is the base error for record definition problems.
	ErrInvalidDefinition = errors.New("invalid record definition")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCollectionNotFound is returned when an operation addresses a
	// collection whose backend structures do not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// ErrDimensionMismatch indicates a vector whose length does not match the
// collection's vector field definition.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// BackendError wraps a failure from the underlying driver or client, naming
// the backend and the operation that hit it. The driver error is available
// via errors.Unwrap, so sentinel matching with errors.Is keeps working.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError wraps err in a BackendError. Returns nil for a nil err.
// Errors that already are BackendErrors pass through unchanged.
func NewBackendError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}
