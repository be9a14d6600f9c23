// internal/models/jobcard.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobCardStatus represents the current state of a job card
type JobCardStatus string

const (
	JobCardStatusNew        JobCardStatus = "new"
	JobCardStatusInProgress JobCardStatus = "in_progress"
	JobCardStatusCompleted  JobCardStatus = "completed"
	JobCardStatusInvoiced   JobCardStatus = "invoiced"
)

// Priority of a job card
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// JobCard is the workshop work order that owns a task collection and its history
type JobCard struct {
	ID              string        `json:"id"`
	WorkOrderNumber string        `json:"workOrderNumber"`
	VehicleID       string        `json:"vehicleId"`
	CustomerName    string        `json:"customerName"`
	Priority        Priority      `json:"priority"`
	Status          JobCardStatus `json:"status"`
	TemplateID      string        `json:"templateId,omitempty"`
	CreatedBy       string        `json:"createdBy"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// NewJobCard carries the caller supplied fields of a job card being opened
type NewJobCard struct {
	WorkOrderNumber string   `json:"workOrderNumber"`
	VehicleID       string   `json:"vehicleId"`
	CustomerName    string   `json:"customerName"`
	Priority        Priority `json:"priority"`
	TemplateID      string   `json:"templateId,omitempty"`
	AssignedTo      string   `json:"assignedTo,omitempty"` // assignee of template tasks
}

// NewJobCardFrom creates a job card instance in the new state
func NewJobCardFrom(in NewJobCard, createdBy string, now time.Time) *JobCard {
	customer := in.CustomerName
	if customer == "" {
		customer = "Internal Service"
	}
	return &JobCard{
		ID:              uuid.New().String(),
		WorkOrderNumber: in.WorkOrderNumber,
		VehicleID:       in.VehicleID,
		CustomerName:    customer,
		Priority:        in.Priority,
		Status:          JobCardStatusNew,
		TemplateID:      in.TemplateID,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ToJSON converts the job card to JSON
func (jc *JobCard) ToJSON() ([]byte, error) {
	return json.Marshal(jc)
}

// FromJSON populates the job card from JSON
func (jc *JobCard) FromJSON(data []byte) error {
	return json.Unmarshal(data, jc)
}
