// Package service provides the task mutation logic and the activity log.
package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/tasktrail-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers use errors.Is to check for them; the API layer maps them to
// HTTP status codes.
var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrAssigneeNotFound = errors.New("assignee not found")

	// ErrNoSystemUser means a mutation without an actor could not fall back
	// to the system user because no user exists at all.
	ErrNoSystemUser = errors.New("no system user available: the users table is empty")
)

// NotFoundError names the entity and id that failed to resolve.
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Unwrap returns the entity's sentinel error.
func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func notFound(entity string, id fmt.Stringer, sentinel error) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String(), Err: sentinel}
}

// isPassThrough reports whether err should be returned to callers unwrapped.
func isPassThrough(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	for _, sentinel := range []error{
		ErrTaskNotFound, ErrUserNotFound, ErrProjectNotFound,
		ErrTagNotFound, ErrAssigneeNotFound, ErrNoSystemUser,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "update_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Not-found conditions are returned directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if isPassThrough(err) {
		return err
	}
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return &TaskServiceError{Operation: operation, Message: message, Err: err}
}

// ActivityServiceError wraps errors from the activity service with context.
type ActivityServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ActivityServiceError.
func (e *ActivityServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("activity service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("activity service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ActivityServiceError) Unwrap() error {
	return e.Err
}

// NewActivityServiceError creates a new ActivityServiceError.
// Not-found conditions are returned directly without wrapping.
func NewActivityServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if isPassThrough(err) {
		return err
	}
	return &ActivityServiceError{Operation: operation, Message: message, Err: err}
}
