// internal/lifecycle/errors.go
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/fawad-mazhar/jobcards/internal/models"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("task was modified concurrently")
	ErrTaskNotFound      = errors.New("task not found")
)

// ValidationError reports a missing or out-of-range field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError reports a status change the actor's role does not permit
type TransitionError struct {
	From models.TaskStatus
	To   models.TaskStatus
	Role models.Role
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s may not change status from %q to %q", e.Role, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
