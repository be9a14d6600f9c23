// internal/models/task.go
package models

import (
	"time"
)

// TaskStatus represents the current state of a job card task
type TaskStatus string

const (
	TaskStatusPending       TaskStatus = "pending"
	TaskStatusInProgress    TaskStatus = "in_progress"
	TaskStatusCompleted     TaskStatus = "completed"
	TaskStatusVerified      TaskStatus = "verified"
	TaskStatusNotApplicable TaskStatus = "not_applicable"
)

// TaskStatuses lists every status a task can hold, in workflow order
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusVerified,
	TaskStatusNotApplicable,
}

// IsValid reports whether s is one of the known task statuses
func (s TaskStatus) IsValid() bool {
	for _, status := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsFinished reports whether no further work is expected on a task in this status
func (s TaskStatus) IsFinished() bool {
	return s == TaskStatusCompleted || s == TaskStatusVerified || s == TaskStatusNotApplicable
}

// Role is the workshop role an actor performs a change under
type Role string

const (
	RoleTechnician Role = "technician"
	RoleSupervisor Role = "supervisor"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleTechnician || r == RoleSupervisor
}

// Actor identifies who performs a change
type Actor struct {
	ID   string `json:"id" yaml:"id"`
	Role Role   `json:"role" yaml:"role"`
}

// Part is a descriptive part requirement attached to a task
type Part struct {
	PartName   string  `json:"partName" yaml:"partName"`
	Quantity   float64 `json:"quantity" yaml:"quantity"`
	IsRequired bool    `json:"isRequired" yaml:"isRequired"`
}

// Task represents a single unit of maintenance work on a job card
type Task struct {
	ID             string     `json:"id"`
	JobCardID      string     `json:"jobCardId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Category       string     `json:"category"`
	EstimatedHours float64    `json:"estimatedHours"`
	Status         TaskStatus `json:"status"`
	IsCritical     bool       `json:"isCritical"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	CompletedBy    string     `json:"completedBy,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	VerifiedBy     string     `json:"verifiedBy,omitempty"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Parts          []Part     `json:"parts"`
	DependsOn      []string   `json:"dependsOn,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Clone returns a copy of the task that shares no slices or pointers with t
func (t Task) Clone() Task {
	out := t
	if t.Parts != nil {
		out.Parts = append([]Part(nil), t.Parts...)
	}
	if t.DependsOn != nil {
		out.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	if t.VerifiedAt != nil {
		at := *t.VerifiedAt
		out.VerifiedAt = &at
	}
	return out
}

// NewTask carries the caller supplied fields of a task being created
type NewTask struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	EstimatedHours float64    `json:"estimatedHours"`
	Status         TaskStatus `json:"status,omitempty"`
	IsCritical     bool       `json:"isCritical"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Parts          []Part     `json:"parts,omitempty"`
	DependsOn      []string   `json:"dependsOn,omitempty"`
}

// TaskUpdate holds a partial edit of a task. Nil fields are left untouched.
type TaskUpdate struct {
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Category       *string     `json:"category,omitempty"`
	EstimatedHours *float64    `json:"estimatedHours,omitempty"`
	Status         *TaskStatus `json:"status,omitempty"`
	IsCritical     *bool       `json:"isCritical,omitempty"`
	AssignedTo     *string     `json:"assignedTo,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
	Parts          *[]Part     `json:"parts,omitempty"`
}
