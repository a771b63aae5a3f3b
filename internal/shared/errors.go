package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a referenced entity is missing.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates an invariant was violated on write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a guarded action was invoked from the wrong state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
)

// ValidationError carries the field and reason of a rejected write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError identifies the rejected action, the current state
// and the state(s) the action requires.
type InvalidTransitionError struct {
	Entity   string
	Action   string
	Current  string
	Required []string
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Required) == 0 {
		return fmt.Sprintf("%s: cannot %s in state %s", e.Entity, e.Action, e.Current)
	}
	return fmt.Sprintf("%s: cannot %s in state %s, requires %s", e.Entity, e.Action, e.Current, strings.Join(e.Required, " or "))
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NewInvalidTransition builds an InvalidTransitionError.
func NewInvalidTransition(entity, action, current string, required ...string) error {
	return &InvalidTransitionError{Entity: entity, Action: action, Current: current, Required: required}
}
