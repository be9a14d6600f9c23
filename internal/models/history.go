// internal/models/history.go
package models

import (
	"encoding/json"
	"time"
)

// HistoryEvent names the kind of change an audit entry records
type HistoryEvent string

const (
	HistoryEventCreated       HistoryEvent = "created"
	HistoryEventStatusChanged HistoryEvent = "statusChanged"
	HistoryEventAssigned      HistoryEvent = "assigned"
	HistoryEventVerified      HistoryEvent = "verified"
	HistoryEventEdited        HistoryEvent = "edited"
	HistoryEventDeleted       HistoryEvent = "deleted"
)

// HistoryEntry is an immutable audit record of a single task mutation
type HistoryEntry struct {
	ID             string       `json:"id"`
	JobCardID      string       `json:"jobCardId"`
	TaskID         string       `json:"taskId"`
	Event          HistoryEvent `json:"event"`
	PreviousStatus TaskStatus   `json:"previousStatus,omitempty"`
	NewStatus      TaskStatus   `json:"newStatus,omitempty"`
	By             string       `json:"by"`
	At             time.Time    `json:"at"`
	Notes          string       `json:"notes,omitempty"`
}

// ToJSON converts the history entry to JSON
func (h *HistoryEntry) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// FromJSON populates the history entry from JSON
func (h *HistoryEntry) FromJSON(data []byte) error {
	return json.Unmarshal(data, h)
}
