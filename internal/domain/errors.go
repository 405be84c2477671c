package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors wrap one of these; classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("order not found")
	ErrTransient       = errors.New("infrastructure unavailable")
	ErrWorkflowTimeout = errors.New("settlement workflow timed out")
	ErrStaleSubscriber = errors.New("subscriber gone")
)

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf builds an ErrConflict with a message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Transient wraps an infrastructure error so callers see ErrTransient and the cause.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
