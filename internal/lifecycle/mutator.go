// internal/lifecycle/mutator.go
package lifecycle

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/google/uuid"
)

// newID generates task identifiers
var newID = func() string {
	return uuid.New().String()
}

// CreateTask builds a new task on a job card from caller supplied fields.
// The returned history entry records the creation.
func CreateTask(jobCardID string, in models.NewTask, actor models.Actor, now time.Time) (models.Task, models.HistoryEntry, error) {
	if err := validateActor(actor); err != nil {
		return models.Task{}, models.HistoryEntry{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return models.Task{}, models.HistoryEntry{}, &ValidationError{Field: "title", Message: "is required"}
	}
	if strings.TrimSpace(in.Category) == "" {
		return models.Task{}, models.HistoryEntry{}, &ValidationError{Field: "category", Message: "is required"}
	}
	if in.EstimatedHours <= 0 {
		return models.Task{}, models.HistoryEntry{}, &ValidationError{Field: "estimatedHours", Message: "must be greater than zero"}
	}
	if err := validateParts(in.Parts); err != nil {
		return models.Task{}, models.HistoryEntry{}, err
	}

	status := in.Status
	if status == "" {
		status = models.TaskStatusPending
	}
	if status != models.TaskStatusPending {
		if err := ValidateTransition(models.TaskStatusPending, status, actor.Role); err != nil {
			return models.Task{}, models.HistoryEntry{}, err
		}
	}

	parts := in.Parts
	if parts == nil {
		parts = []models.Part{}
	}

	task := models.Task{
		ID:             newID(),
		JobCardID:      jobCardID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Category:       strings.TrimSpace(in.Category),
		EstimatedHours: in.EstimatedHours,
		Status:         models.TaskStatusPending,
		IsCritical:     in.IsCritical,
		AssignedTo:     in.AssignedTo,
		Notes:          in.Notes,
		Parts:          append([]models.Part(nil), parts...),
		DependsOn:      append([]string(nil), in.DependsOn...),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status != models.TaskStatusPending {
		transition(&task, status, actor, now)
	}

	entry := models.HistoryEntry{
		JobCardID: jobCardID,
		TaskID:    task.ID,
		Event:     models.HistoryEventCreated,
		NewStatus: task.Status,
		By:        actor.ID,
		At:        now,
		Notes:     "Task created",
	}
	return task, entry, nil
}

// ApplyStatusChange moves a task to next on behalf of actor.
// Setting the current status again is a no-op and yields no history entry.
// On error the task is returned unchanged.
func ApplyStatusChange(task models.Task, next models.TaskStatus, actor models.Actor, now time.Time) (models.Task, *models.HistoryEntry, error) {
	if next == task.Status {
		return task, nil, nil
	}
	if err := validateActor(actor); err != nil {
		return task, nil, err
	}
	if err := ValidateTransition(task.Status, next, actor.Role); err != nil {
		return task, nil, err
	}

	updated := task.Clone()
	transition(&updated, next, actor, now)
	touch(&updated, now)

	entry := &models.HistoryEntry{
		JobCardID:      task.JobCardID,
		TaskID:         task.ID,
		Event:          models.HistoryEventStatusChanged,
		PreviousStatus: task.Status,
		NewStatus:      next,
		By:             stampedBy(updated, next, actor),
		At:             now,
		Notes:          fmt.Sprintf("Status changed from %s to %s", task.Status, next),
	}
	return updated, entry, nil
}

// ApplyEdit merges update into task. A status differing from the current one
// is subject to the same rules as ApplyStatusChange. An update that changes
// nothing is a no-op and yields no history entry.
func ApplyEdit(task models.Task, update models.TaskUpdate, actor models.Actor, now time.Time) (models.Task, *models.HistoryEntry, error) {
	if err := validateActor(actor); err != nil {
		return task, nil, err
	}
	if err := validateUpdate(update); err != nil {
		return task, nil, err
	}

	statusChanging := update.Status != nil && *update.Status != task.Status
	if statusChanging {
		if err := ValidateTransition(task.Status, *update.Status, actor.Role); err != nil {
			return task, nil, err
		}
	}

	updated := task.Clone()
	if update.Title != nil {
		updated.Title = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		updated.Description = *update.Description
	}
	if update.Category != nil {
		updated.Category = strings.TrimSpace(*update.Category)
	}
	if update.EstimatedHours != nil {
		updated.EstimatedHours = *update.EstimatedHours
	}
	if update.IsCritical != nil {
		updated.IsCritical = *update.IsCritical
	}
	if update.AssignedTo != nil {
		updated.AssignedTo = *update.AssignedTo
	}
	if update.Notes != nil {
		updated.Notes = *update.Notes
	}
	if update.Parts != nil {
		updated.Parts = append([]models.Part{}, (*update.Parts)...)
	}
	if !statusChanging && sameDetails(task, updated) {
		return task, nil, nil
	}
	if statusChanging {
		transition(&updated, *update.Status, actor, now)
	}
	touch(&updated, now)

	entry := &models.HistoryEntry{
		JobCardID: task.JobCardID,
		TaskID:    task.ID,
		Event:     models.HistoryEventEdited,
		By:        actor.ID,
		At:        now,
		Notes:     "Task details updated",
	}
	if statusChanging {
		entry.Event = models.HistoryEventStatusChanged
		entry.PreviousStatus = task.Status
		entry.NewStatus = updated.Status
	}
	return updated, entry, nil
}

// Assign hands the task to assignee. An empty assignee clears the assignment.
func Assign(task models.Task, assignee string, actor models.Actor, now time.Time) (models.Task, *models.HistoryEntry, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == task.AssignedTo {
		return task, nil, nil
	}
	if err := validateActor(actor); err != nil {
		return task, nil, err
	}

	updated := task.Clone()
	updated.AssignedTo = assignee
	touch(&updated, now)

	notes := "Task unassigned"
	if assignee != "" {
		notes = fmt.Sprintf("Task reassigned to %s", assignee)
	}
	entry := &models.HistoryEntry{
		JobCardID: task.JobCardID,
		TaskID:    task.ID,
		Event:     models.HistoryEventAssigned,
		By:        actor.ID,
		At:        now,
		Notes:     notes,
	}
	return updated, entry, nil
}

// Verify signs off a completed task. Only supervisors may verify.
func Verify(task models.Task, actor models.Actor, now time.Time) (models.Task, *models.HistoryEntry, error) {
	return verify(task, actor, now, "Task verified by supervisor")
}

// VerifyAll verifies every completed task that carries no verification stamp yet.
// It returns the full task list and one history entry per verified task.
func VerifyAll(tasks []models.Task, actor models.Actor, now time.Time) ([]models.Task, []models.HistoryEntry, error) {
	if err := validateActor(actor); err != nil {
		return tasks, nil, err
	}
	if actor.Role != models.RoleSupervisor {
		return tasks, nil, &TransitionError{From: models.TaskStatusCompleted, To: models.TaskStatusVerified, Role: actor.Role}
	}

	out := make([]models.Task, len(tasks))
	var entries []models.HistoryEntry
	for i, task := range tasks {
		out[i] = task
		if task.Status != models.TaskStatusCompleted || task.VerifiedBy != "" {
			continue
		}
		updated, entry, err := verify(task, actor, now, "Task verified in batch by supervisor")
		if err != nil {
			return tasks, nil, err
		}
		out[i] = updated
		entries = append(entries, *entry)
	}
	return out, entries, nil
}

// DeleteTask removes a task from the collection and records the deletion
func DeleteTask(tasks []models.Task, taskID string, actor models.Actor, now time.Time) ([]models.Task, models.HistoryEntry, error) {
	if err := validateActor(actor); err != nil {
		return tasks, models.HistoryEntry{}, err
	}
	idx := FindTask(tasks, taskID)
	if idx < 0 {
		return tasks, models.HistoryEntry{}, ErrTaskNotFound
	}

	removed := tasks[idx]
	out := make([]models.Task, 0, len(tasks)-1)
	out = append(out, tasks[:idx]...)
	out = append(out, tasks[idx+1:]...)

	entry := models.HistoryEntry{
		JobCardID:      removed.JobCardID,
		TaskID:         removed.ID,
		Event:          models.HistoryEventDeleted,
		PreviousStatus: removed.Status,
		By:             actor.ID,
		At:             now,
		Notes:          fmt.Sprintf("Task %q deleted", removed.Title),
	}
	return out, entry, nil
}

// CheckVersion fails with ErrConflict when expected is set and differs from the task's version
func CheckVersion(task models.Task, expected int64) error {
	if expected != 0 && expected != task.Version {
		return fmt.Errorf("%w: expected version %d, current version %d", ErrConflict, expected, task.Version)
	}
	return nil
}

// FindTask returns the index of the task with id, or -1
func FindTask(tasks []models.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func verify(task models.Task, actor models.Actor, now time.Time, notes string) (models.Task, *models.HistoryEntry, error) {
	if err := validateActor(actor); err != nil {
		return task, nil, err
	}
	if actor.Role != models.RoleSupervisor {
		return task, nil, &TransitionError{From: task.Status, To: models.TaskStatusVerified, Role: actor.Role}
	}
	if task.Status != models.TaskStatusCompleted {
		return task, nil, &ValidationError{Field: "status", Message: "task must be completed before it can be verified"}
	}

	updated := task.Clone()
	transition(&updated, models.TaskStatusVerified, actor, now)
	touch(&updated, now)

	entry := &models.HistoryEntry{
		JobCardID:      task.JobCardID,
		TaskID:         task.ID,
		Event:          models.HistoryEventVerified,
		PreviousStatus: task.Status,
		NewStatus:      models.TaskStatusVerified,
		By:             updated.VerifiedBy,
		At:             now,
		Notes:          notes,
	}
	return updated, entry, nil
}

// transition sets the status and stamps completion or verification metadata.
// Earlier stamps are kept: re-completing a task does not clear its verification.
func transition(task *models.Task, next models.TaskStatus, actor models.Actor, now time.Time) {
	task.Status = next
	switch {
	case next == models.TaskStatusCompleted && actor.Role == models.RoleTechnician:
		at := now
		task.CompletedBy = actor.ID
		task.CompletedAt = &at
	case next == models.TaskStatusVerified && actor.Role == models.RoleSupervisor:
		at := now
		task.VerifiedBy = actor.ID
		task.VerifiedAt = &at
	}
}

func stampedBy(task models.Task, next models.TaskStatus, actor models.Actor) string {
	if next == models.TaskStatusVerified && actor.Role == models.RoleSupervisor && task.VerifiedBy != "" {
		return task.VerifiedBy
	}
	if next == models.TaskStatusCompleted && actor.Role == models.RoleTechnician && task.CompletedBy != "" {
		return task.CompletedBy
	}
	return actor.ID
}

// sameDetails reports whether the editable fields of a and b are equal
func sameDetails(a, b models.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Category == b.Category &&
		a.EstimatedHours == b.EstimatedHours &&
		a.IsCritical == b.IsCritical &&
		a.AssignedTo == b.AssignedTo &&
		a.Notes == b.Notes &&
		slices.Equal(a.Parts, b.Parts)
}

func touch(task *models.Task, now time.Time) {
	task.Version++
	task.UpdatedAt = now
}

func validateActor(actor models.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return &ValidationError{Field: "actor", Message: "is required"}
	}
	return nil
}

func validateUpdate(update models.TaskUpdate) error {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	if update.Category != nil && strings.TrimSpace(*update.Category) == "" {
		return &ValidationError{Field: "category", Message: "cannot be empty"}
	}
	if update.EstimatedHours != nil && *update.EstimatedHours <= 0 {
		return &ValidationError{Field: "estimatedHours", Message: "must be greater than zero"}
	}
	if update.Status != nil && !update.Status.IsValid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *update.Status)}
	}
	if update.Parts != nil {
		return validateParts(*update.Parts)
	}
	return nil
}

func validateParts(parts []models.Part) error {
	for i, part := range parts {
		if strings.TrimSpace(part.PartName) == "" {
			return &ValidationError{Field: fmt.Sprintf("parts[%d].partName", i), Message: "is required"}
		}
		if part.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("parts[%d].quantity", i), Message: "must be greater than zero"}
		}
	}
	return nil
}
