// Package errors defines the structured error taxonomy used by the task
// engine: validation, invalid-action, cancellation, dependency-failure,
// cycle, and internal-invariant errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Category classifies an error within the engine's taxonomy.
type Category string

const (
	// CategoryValidation represents bad input supplied by the caller
	// (for example a progress value outside [0, 1]).
	CategoryValidation Category = "VALIDATION"
	// CategoryInvalidAction represents an operation attempted while the
	// task or manager was not in a state that permits it.
	CategoryInvalidAction Category = "INVALID_ACTION"
	// CategoryCancelled is the designated cooperative-cancellation signal.
	CategoryCancelled Category = "CANCELLED"
	// CategoryDependency represents a task failed because a named
	// dependency failed.
	CategoryDependency Category = "DEPENDENCY"
	// CategoryCycle represents a rejected dependency edge that would have
	// created a cycle.
	CategoryCycle Category = "CYCLE"
	// CategoryInternal represents a violated internal invariant. Callers
	// should not catch and retry these; they indicate a bug in the engine.
	CategoryInternal Category = "INTERNAL"
)

// TaskError is a structured error with category, operation context and an
// optional wrapped cause.
type TaskError struct {
	Category      Category
	Message       string
	Operation     string
	Context       map[string]interface{}
	OriginalError error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s", e.Category, e.Message))

	if e.Operation != "" {
		sb.WriteString(fmt.Sprintf(" (operation: %s)", e.Operation))
	}

	for key, value := range e.Context {
		sb.WriteString(fmt.Sprintf(" [%s=%v]", key, value))
	}

	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.OriginalError))
	}

	return sb.String()
}

// Unwrap returns the original error for error chain compatibility.
func (e *TaskError) Unwrap() error {
	return e.OriginalError
}

// WithContext adds context information to the error.
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithOriginalError attaches the underlying cause.
func (e *TaskError) WithOriginalError(err error) *TaskError {
	e.OriginalError = err
	return e
}

// Dependency returns the ID of the failed dependency recorded on a
// dependency error, or "" when none was recorded.
func (e *TaskError) Dependency() string {
	if dep, ok := e.Context["dependency"].(string); ok {
		return dep
	}
	return ""
}

// New creates a new TaskError with the given category, message and operation.
func New(category Category, message, operation string) *TaskError {
	return &TaskError{
		Category:  category,
		Message:   message,
		Operation: operation,
		Context:   make(map[string]interface{}),
	}
}

// NewValidationError creates an error for invalid caller input.
func NewValidationError(message, operation string) *TaskError {
	return New(CategoryValidation, message, operation)
}

// NewInvalidActionError creates an error for an operation attempted in a
// state that does not permit it.
func NewInvalidActionError(operation, state string) *TaskError {
	return New(CategoryInvalidAction,
		fmt.Sprintf("operation not permitted in state %q", state),
		operation).
		WithContext("state", state)
}

// NewCancelledError creates the cooperative-cancellation signal error.
func NewCancelledError(taskID string) *TaskError {
	return New(CategoryCancelled, "task cancelled", "cancel").
		WithContext("task", taskID)
}

// NewDependencyFailedError creates an error for a task whose named
// dependency failed.
func NewDependencyFailedError(taskID, dependencyID string, cause error) *TaskError {
	return New(CategoryDependency,
		fmt.Sprintf("dependency %q failed", dependencyID),
		"wait for dependencies").
		WithContext("task", taskID).
		WithContext("dependency", dependencyID).
		WithOriginalError(cause)
}

// NewCycleError creates an error for a rejected cycle-forming dependency
// edge.
func NewCycleError(taskID, dependencyID string) *TaskError {
	return New(CategoryCycle,
		fmt.Sprintf("adding dependency %q to %q would create a cycle", dependencyID, taskID),
		"add dependency").
		WithContext("task", taskID).
		WithContext("dependency", dependencyID)
}

// NewInternalError creates an error for a violated internal invariant.
func NewInternalError(message string) *TaskError {
	return New(CategoryInternal, message, "")
}

// As extracts a *TaskError from err's chain.
func As(err error) (*TaskError, bool) {
	var te *TaskError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func is(err error, category Category) bool {
	te, ok := As(err)
	return ok && te.Category == category
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return is(err, CategoryValidation) }

// IsInvalidAction reports whether err is an invalid-action error.
func IsInvalidAction(err error) bool { return is(err, CategoryInvalidAction) }

// IsCancelled reports whether err carries the cooperative-cancellation
// signal. This is the predicate that distinguishes Cancelled from Failed.
func IsCancelled(err error) bool { return is(err, CategoryCancelled) }

// IsDependencyFailed reports whether err records a failed dependency.
func IsDependencyFailed(err error) bool { return is(err, CategoryDependency) }

// IsCycle reports whether err is a rejected cycle-forming edge.
func IsCycle(err error) bool { return is(err, CategoryCycle) }

// IsInternal reports whether err is an internal-invariant violation.
func IsInternal(err error) bool { return is(err, CategoryInternal) }
