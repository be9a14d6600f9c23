package lifecycle

import (
	"errors"
	"testing"

	"github.com/fawad-mazhar/jobcards/internal/models"
)

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current models.TaskStatus
		role    models.Role
		want    []models.TaskStatus
	}{
		{
			name:    "supervisor reviewing completed task",
			current: models.TaskStatusCompleted,
			role:    models.RoleSupervisor,
			want: []models.TaskStatus{
				models.TaskStatusCompleted,
				models.TaskStatusVerified,
				models.TaskStatusInProgress,
				models.TaskStatusNotApplicable,
			},
		},
		{
			name:    "supervisor on pending task",
			current: models.TaskStatusPending,
			role:    models.RoleSupervisor,
			want:    models.TaskStatuses,
		},
		{
			name:    "supervisor on verified task",
			current: models.TaskStatusVerified,
			role:    models.RoleSupervisor,
			want:    models.TaskStatuses,
		},
		{
			name:    "technician on verified task",
			current: models.TaskStatusVerified,
			role:    models.RoleTechnician,
			want: []models.TaskStatus{
				models.TaskStatusPending,
				models.TaskStatusInProgress,
				models.TaskStatusCompleted,
				models.TaskStatusNotApplicable,
			},
		},
		{
			name:    "unknown role",
			current: models.TaskStatusPending,
			role:    models.Role("driver"),
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AllowedTransitions(tt.current, tt.role)
			if len(got) != len(tt.want) {
				t.Fatalf("AllowedTransitions() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("AllowedTransitions() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	got := AllowedTransitions(models.TaskStatusPending, models.RoleSupervisor)
	got[0] = models.TaskStatus("tampered")

	if models.TaskStatuses[0] != models.TaskStatusPending {
		t.Fatalf("TaskStatuses[0] = %q, caller mutation leaked into policy", models.TaskStatuses[0])
	}
}

func TestTechnicianNeverReachesVerifiedProperty(t *testing.T) {
	for _, from := range models.TaskStatuses {
		if IsAllowed(from, models.TaskStatusVerified, models.RoleTechnician) {
			t.Fatalf("technician allowed %s -> verified", from)
		}
	}
}

func TestInvalidTransitionRejectionProperty(t *testing.T) {
	roles := []models.Role{models.RoleTechnician, models.RoleSupervisor}
	for _, role := range roles {
		for _, from := range models.TaskStatuses {
			allowed := make(map[models.TaskStatus]bool)
			for _, s := range AllowedTransitions(from, role) {
				allowed[s] = true
			}
			for _, to := range models.TaskStatuses {
				err := ValidateTransition(from, to, role)
				if allowed[to] && err != nil {
					t.Fatalf("ValidateTransition(%s, %s, %s) err = %v, want nil", from, to, role, err)
				}
				if !allowed[to] && !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("ValidateTransition(%s, %s, %s) err = %v, want %v", from, to, role, err, ErrInvalidTransition)
				}
			}
		}
	}
}

func TestIsAllowed_UnknownTarget(t *testing.T) {
	if IsAllowed(models.TaskStatusPending, models.TaskStatus("done"), models.RoleSupervisor) {
		t.Fatal("IsAllowed() = true for unknown status, want false")
	}
}
