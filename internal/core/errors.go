package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrUnitNotFound         = errors.New("memory unit not found")
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// StorageIOError wraps a durable store failure.
type StorageIOError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	var se *StorageIOError
	return errors.As(err, &se) && se.Retryable
}

// GraphTraversalError marks an edge pointing at a missing unit.
type GraphTraversalError struct {
	SourceID string
	TargetID string
	Relation Relation
}

func (e *GraphTraversalError) Error() string {
	return fmt.Sprintf("dangling edge %s -[%s]-> %s", e.SourceID, e.Relation, e.TargetID)
}
