package registry

import (
	"errors"
	"fmt"
)

// ErrNoActiveConnection is returned by operations that require a live
// session when none is active.
var ErrNoActiveConnection = errors.New("no active database connection")

// ErrEmptyQuery is returned by Execute for a blank or whitespace-only
// statement.
var ErrEmptyQuery = errors.New("query is empty")

// DuplicateNameError is returned by Create when the name is already taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("database %q already exists", e.Name)
}

// NotFoundError is returned when an operation names an unknown database.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("database %q not found", e.Name)
}

// ExecutionError wraps an engine rejection of a SQL statement.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
