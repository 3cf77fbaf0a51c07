// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/advisoros/taskcore/pkg/persistence"
)

// Validation Errors (400 Bad Request).
var (
	ErrInvalidRequest = errors.New("invalid request")
)

// Not Found Errors (404 Not Found).
var (
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrTaskNotFound     = persistence.ErrTaskNotFound
	ErrCommentNotFound  = persistence.ErrCommentNotFound
)

// ErrVersionConflict is returned when the expected version is stale (409 Conflict).
// The caller must refetch and retry; the core never retries on its own.
var ErrVersionConflict = persistence.ErrVersionConflict

// Domain Rule Violations (422 Unprocessable Entity). A rejected command leaves every
// entity unchanged.
var (
	ErrInvalidDependency      = errors.New("invalid dependency")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	ErrApprovalsPending       = errors.New("approvals pending")
	ErrOpenTasks              = errors.New("workflow has open tasks")
	ErrWorkflowClosed         = errors.New("workflow is closed")
)

// ErrExecutorClosed is returned for commands submitted after shutdown started.
var ErrExecutorClosed = errors.New("command executor closed")

// CommandError wraps a rejected command with the version the client must reconcile against.
type CommandError struct {
	Op             string // Operation name
	EntityID       string // Entity the rejection is about
	CurrentVersion int64  // Version stored when the command was rejected
	Message        string // Human-readable message
	Err            error  // Underlying error
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func reject(op, entityID string, current int64, err error, format string, args ...any) *CommandError {
	return &CommandError{
		Op:             op,
		EntityID:       entityID,
		CurrentVersion: current,
		Message:        fmt.Sprintf(format, args...),
		Err:            err,
	}
}

// conflictFrom turns a failed compare-and-set into a CommandError carrying the stored version.
func conflictFrom(op string, err error) error {
	var entityErr *persistence.EntityError
	if errors.As(err, &entityErr) && errors.Is(err, persistence.ErrVersionConflict) {
		return reject(op, entityErr.EntityID, entityErr.Stored, ErrVersionConflict,
			"%s %s was modified concurrently (stored version %d)", entityErr.Entity, entityErr.EntityID, entityErr.Stored)
	}

	return err
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrCommentNotFound)
}

// IsConflictError checks if an error is an optimistic concurrency failure that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsRuleViolation checks if an error is a domain rule violation that should return HTTP 422.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrInvalidDependency) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDependencyNotSatisfied) ||
		errors.Is(err, ErrApprovalsPending) ||
		errors.Is(err, ErrOpenTasks) ||
		errors.Is(err, ErrWorkflowClosed)
}

// CurrentVersion returns the version carried by a rejected command, if any.
func CurrentVersion(err error) (int64, bool) {
	var commandErr *CommandError
	if errors.As(err, &commandErr) {
		return commandErr.CurrentVersion, true
	}

	return 0, false
}
