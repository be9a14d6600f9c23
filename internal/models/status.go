// internal/models/status.go
package models

import (
	"time"
)

// StatusMessage represents an event published for tasks and the service itself
type StatusMessage struct {
	Type      string      `json:"type"`      // "service" or "task"
	ID        string      `json:"id"`        // unique identifier of the entity (service/task id)
	Status    string      `json:"status"`    // current status or history event of the entity
	Timestamp time.Time   `json:"timestamp"` // when the status was updated
	Metadata  interface{} `json:"metadata"`  // additional entity-specific information
}

type ServiceEventType string

const (
	ServiceStarted  ServiceEventType = "STARTED"
	ServiceStopping ServiceEventType = "STOPPING"
	ServiceStopped  ServiceEventType = "STOPPED"
)

type ServiceStatus struct {
	ID        string           `json:"id"`
	Event     ServiceEventType `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	Storage   string           `json:"storage"`
}

// NewTaskStatusMessage wraps a history entry for publishing
func NewTaskStatusMessage(entry HistoryEntry) *StatusMessage {
	status := string(entry.Event)
	if entry.NewStatus != "" {
		status = string(entry.NewStatus)
	}
	return &StatusMessage{
		Type:      "task",
		ID:        entry.TaskID,
		Status:    status,
		Timestamp: entry.At,
		Metadata:  entry,
	}
}
