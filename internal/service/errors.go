package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrAmbiguousID   = errors.New("task id prefix matches more than one task")
	ErrDueDateLocked = errors.New("due date can only be changed while the task is open and not past due")
)

// ValidationError rejects user input; it is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
