// internal/storage/store.go
package storage

import (
	"context"
	"errors"

	"github.com/fawad-mazhar/jobcards/internal/models"
)

var ErrJobCardNotFound = errors.New("job card not found")

// TaskWrite stores a task. ExpectedVersion 0 inserts a new task; any other value
// must match the stored version or the whole mutation fails with lifecycle.ErrConflict.
type TaskWrite struct {
	Task            models.Task
	ExpectedVersion int64
}

// TaskDelete removes a task whose stored version matches ExpectedVersion
type TaskDelete struct {
	ID              string
	ExpectedVersion int64
}

// Mutation is everything one job card operation writes. Stores apply it atomically.
type Mutation struct {
	JobCardID string
	JobCard   *models.JobCard // optional job card update
	Writes    []TaskWrite
	Deletes   []TaskDelete
	History   []models.HistoryEntry // appended in slice order
}

// Store persists job cards, their tasks and the task history
type Store interface {
	CreateJobCard(ctx context.Context, jc models.JobCard, m Mutation) error
	GetJobCard(ctx context.Context, id string) (*models.JobCard, error)
	ListJobCards(ctx context.Context) ([]models.JobCard, error)
	ListTasks(ctx context.Context, jobCardID string) ([]models.Task, error)
	ListHistory(ctx context.Context, jobCardID string) ([]models.HistoryEntry, error)
	Apply(ctx context.Context, m Mutation) error
	Close() error
}
