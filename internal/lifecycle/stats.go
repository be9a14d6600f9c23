// internal/lifecycle/stats.go
package lifecycle

import (
	"math"

	"github.com/fawad-mazhar/jobcards/internal/models"
)

// Stats summarizes the progress of a job card's tasks
type Stats struct {
	Total                int     `json:"total"`
	Pending              int     `json:"pending"`
	InProgress           int     `json:"inProgress"`
	Completed            int     `json:"completed"`
	Verified             int     `json:"verified"`
	NotApplicable        int     `json:"notApplicable"`
	CompletionPercentage float64 `json:"completionPercentage"`
	ReadyForVerification int     `json:"readyForVerification"`
	CanVerifyAll         bool    `json:"canVerifyAll"`
}

// ComputeStats partitions tasks by status. Completed, verified and not applicable
// tasks count towards completion.
func ComputeStats(tasks []models.Task) Stats {
	stats := Stats{Total: len(tasks)}
	for _, task := range tasks {
		switch task.Status {
		case models.TaskStatusInProgress:
			stats.InProgress++
		case models.TaskStatusCompleted:
			stats.Completed++
			if task.CompletedBy != "" && task.CompletedAt != nil {
				stats.ReadyForVerification++
			}
			if task.VerifiedBy == "" {
				stats.CanVerifyAll = true
			}
		case models.TaskStatusVerified:
			stats.Verified++
		case models.TaskStatusNotApplicable:
			stats.NotApplicable++
		}
	}
	stats.Pending = stats.Total - (stats.InProgress + stats.Completed + stats.Verified + stats.NotApplicable)

	if stats.Total > 0 {
		done := float64(stats.Completed + stats.Verified + stats.NotApplicable)
		stats.CompletionPercentage = math.Round(done/float64(stats.Total)*100*100) / 100
	}
	return stats
}
