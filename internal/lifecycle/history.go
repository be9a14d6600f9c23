// internal/lifecycle/history.go
package lifecycle

import (
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/google/uuid"
)

// History is an append-only audit log for the tasks of one job card.
// Entries are kept in the order they were recorded, so iteration is chronological.
// It is not safe for concurrent use; callers serialize mutations per job card.
type History struct {
	entries []models.HistoryEntry
}

// NewHistory creates a log seeded with already persisted entries, in stored order
func NewHistory(entries ...models.HistoryEntry) *History {
	h := &History{}
	h.Load(entries...)
	return h
}

// Load appends persisted entries verbatim, keeping their ids
func (h *History) Load(entries ...models.HistoryEntry) {
	h.entries = append(h.entries, entries...)
}

// Record assigns an id to entry and appends it to the log
func (h *History) Record(entry models.HistoryEntry) models.HistoryEntry {
	entry.ID = uuid.New().String()
	h.entries = append(h.entries, entry)
	return entry
}

// Entries returns a copy of the whole log
func (h *History) Entries() []models.HistoryEntry {
	return append([]models.HistoryEntry(nil), h.entries...)
}

// ByTask returns the entries recorded for taskID, oldest first
func (h *History) ByTask(taskID string) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0)
	for _, entry := range h.entries {
		if entry.TaskID == taskID {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of recorded entries
func (h *History) Len() int {
	return len(h.entries)
}
