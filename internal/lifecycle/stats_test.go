package lifecycle

import (
	"testing"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/models"
)

func TestComputeStats_Empty(t *testing.T) {
	got := ComputeStats(nil)

	if got != (Stats{}) {
		t.Fatalf("ComputeStats(nil) = %+v, want zero stats", got)
	}
}

func TestComputeStats_CompletedVerifiedPending(t *testing.T) {
	at := time.Now()
	tasks := []models.Task{
		{Status: models.TaskStatusCompleted, CompletedBy: "tech-1", CompletedAt: &at},
		{Status: models.TaskStatusVerified},
		{Status: models.TaskStatusPending},
	}

	got := ComputeStats(tasks)

	want := Stats{
		Total:                3,
		Pending:              1,
		Completed:            1,
		Verified:             1,
		CompletionPercentage: 66.67,
		ReadyForVerification: 1,
		CanVerifyAll:         true,
	}
	if got != want {
		t.Fatalf("ComputeStats() = %+v, want %+v", got, want)
	}
}

func TestComputeStats_CountsSumToTotal(t *testing.T) {
	var tasks []models.Task
	for i := 0; i < 23; i++ {
		tasks = append(tasks, models.Task{Status: models.TaskStatuses[i%len(models.TaskStatuses)]})
	}

	got := ComputeStats(tasks)

	sum := got.Pending + got.InProgress + got.Completed + got.Verified + got.NotApplicable
	if sum != got.Total || got.Total != 23 {
		t.Fatalf("counts sum = %d, total = %d, want 23", sum, got.Total)
	}
}

func TestComputeStats_NotApplicableCountsAsDone(t *testing.T) {
	tasks := []models.Task{
		{Status: models.TaskStatusNotApplicable},
		{Status: models.TaskStatusVerified},
	}

	got := ComputeStats(tasks)

	if got.CompletionPercentage != 100 {
		t.Fatalf("CompletionPercentage = %v, want 100", got.CompletionPercentage)
	}
	if got.CanVerifyAll {
		t.Fatal("CanVerifyAll = true with no completed tasks")
	}
}

func TestComputeStats_CompletedWithoutStampNotReady(t *testing.T) {
	tasks := []models.Task{
		{Status: models.TaskStatusCompleted, VerifiedBy: "sup-0"},
		{Status: models.TaskStatusInProgress},
	}

	got := ComputeStats(tasks)

	if got.ReadyForVerification != 0 {
		t.Fatalf("ReadyForVerification = %d, want 0", got.ReadyForVerification)
	}
	if got.CanVerifyAll {
		t.Fatal("CanVerifyAll = true, want false for already stamped task")
	}
	if got.CompletionPercentage != 50 {
		t.Fatalf("CompletionPercentage = %v, want 50", got.CompletionPercentage)
	}
}
