// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCommentNotFound indicates a comment was not found by the given identifier.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrVersionConflict indicates the stored version differs from the expected one.
	ErrVersionConflict = errors.New("version conflict")
)

// EntityError wraps entity-related errors with additional context.
type EntityError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Commit")
	Entity   string // "workflow", "task" or "comment"
	EntityID string
	// Stored is the version found in storage on a version conflict.
	Stored int64
	Err    error
}

func (e *EntityError) Error() string {
	if errors.Is(e.Err, ErrVersionConflict) {
		return fmt.Sprintf("%s operation failed for %s %s: %v (stored version %d)", e.Op, e.Entity, e.EntityID, e.Err, e.Stored)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NotFound builds the not-found error for an entity kind.
func NotFound(op, entity, id string) *EntityError {
	var err error

	switch entity {
	case "workflow":
		err = ErrWorkflowNotFound
	case "task":
		err = ErrTaskNotFound
	default:
		err = ErrCommentNotFound
	}

	return &EntityError{Op: op, Entity: entity, EntityID: id, Err: err}
}

// Conflict builds a version conflict error.
func Conflict(entity, id string, stored int64) *EntityError {
	return &EntityError{Op: "Commit", Entity: entity, EntityID: id, Stored: stored, Err: ErrVersionConflict}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsCommentNotFound checks if an error indicates a comment was not found.
func IsCommentNotFound(err error) bool {
	return errors.Is(err, ErrCommentNotFound)
}

// IsVersionConflict checks if an error indicates a failed compare-and-set.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
