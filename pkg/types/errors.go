// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrInvalidTask indicates a nil task was submitted
	ErrInvalidTask = errors.New("thread pool task is invalid")

	// ErrEmptyPool indicates a pool with no workers was requested
	ErrEmptyPool = errors.New("cannot create thread pool: empty pool is not allowed")

	// ErrPoolClosed indicates the pool is shutting down or already closed
	ErrPoolClosed = errors.New("thread pool is closed")
)

// TaskError represents a failure raised while a worker executed a task
type TaskError struct {
	// Operation is the name of the operation where the error occurred
	Operation string

	// WorkerID is the ID of the worker that ran the task
	WorkerID int

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("task error in operation %s (worker %d): %v", e.Operation, e.WorkerID, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewTaskError creates a new task error
func NewTaskError(operation string, workerID int, cause error) *TaskError {
	return &TaskError{
		Operation: operation,
		WorkerID:  workerID,
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}

// PanicError wraps a recovered panic value that was not itself an error
type PanicError struct {
	Value interface{}
}

// Error implements the error interface
func (e *PanicError) Error() string {
	if s, ok := e.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", e.Value)
}

// ErrorFromPanic converts a recovered panic value into an error.
// Error values are returned unchanged.
func ErrorFromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}
