package visits

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the referenced visit or patient is absent.
	ErrNotFound = errors.New("visits: not found")

	// ErrClinicMismatch is returned when a visit does not belong to the
	// actor's clinic scope.
	ErrClinicMismatch = errors.New("visits: visit clinic does not match actor clinic scope")
)

// ValidationError reports a missing or invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("visits: invalid field %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports an operation attempted against the wrong
// current status. From carries the actual status so callers can distinguish
// "already completed" from other wrong-state cases.
type InvalidTransitionError struct {
	Op   string
	From Status
}

func (e *InvalidTransitionError) Error() string {
	if e.AlreadyCompleted() {
		return fmt.Sprintf("visits: %s: visit already completed", e.Op)
	}
	return fmt.Sprintf("visits: %s: invalid transition from %s", e.Op, e.From)
}

// AlreadyCompleted reports the distinguished read-only case.
func (e *InvalidTransitionError) AlreadyCompleted() bool {
	return e.From == StatusCompleted
}
