package database

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline write conflicts. Callers branch on these with
// errors.Is; none of them indicate an infrastructure failure.
var (
	// ErrDuplicateSnapshot is returned when an append carries the same
	// (stock_id, captured_at) as an existing snapshot.
	ErrDuplicateSnapshot = errors.New("duplicate snapshot")

	// ErrDuplicateTrigger is returned when a same-day trigger is already
	// handled and the new one does not supersede it.
	ErrDuplicateTrigger = errors.New("duplicate trigger")

	// ErrStaleGeneration is returned when a guarded report write carries a
	// generation or status that no longer matches the row. The write is
	// discarded; the caller's work was superseded.
	ErrStaleGeneration = errors.New("stale generation")
)

// DBError represents a database operation error with context
type DBError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DBError) Unwrap() error {
	return e.Err
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// WrapDBError wraps a database error with operation context
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// NewNotFoundErrorWithID creates a new NotFoundError with an ID
func NewNotFoundErrorWithID(resource string, id interface{}) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
