// internal/lifecycle/policy.go
package lifecycle

import (
	"github.com/fawad-mazhar/jobcards/internal/models"
)

var (
	technicianTargets = []models.TaskStatus{
		models.TaskStatusPending,
		models.TaskStatusInProgress,
		models.TaskStatusCompleted,
		models.TaskStatusNotApplicable,
	}

	// A supervisor reviewing completed work may keep it, verify it, push it back or drop it.
	supervisorReviewTargets = []models.TaskStatus{
		models.TaskStatusCompleted,
		models.TaskStatusVerified,
		models.TaskStatusInProgress,
		models.TaskStatusNotApplicable,
	}
)

// AllowedTransitions returns the statuses an actor with role may set on a task
// currently in status current. The current status is included when it may be kept.
func AllowedTransitions(current models.TaskStatus, role models.Role) []models.TaskStatus {
	var allowed []models.TaskStatus
	switch role {
	case models.RoleSupervisor:
		if current == models.TaskStatusCompleted {
			allowed = supervisorReviewTargets
		} else {
			allowed = models.TaskStatuses
		}
	case models.RoleTechnician:
		allowed = technicianTargets
	default:
		return nil
	}
	return append([]models.TaskStatus(nil), allowed...)
}

// IsAllowed reports whether role may move a task from current to next
func IsAllowed(current, next models.TaskStatus, role models.Role) bool {
	if !next.IsValid() {
		return false
	}
	for _, status := range AllowedTransitions(current, role) {
		if status == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a TransitionError when role may not move a task from current to next
func ValidateTransition(current, next models.TaskStatus, role models.Role) error {
	if !IsAllowed(current, next, role) {
		return &TransitionError{From: current, To: next, Role: role}
	}
	return nil
}
