// internal/jobcard/service.go
package jobcard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/storage"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/sirupsen/logrus"
)

const viewCachePrefix = "view:"

func viewCacheKey(jobCardID string) string {
	return fmt.Sprintf("%s%s", viewCachePrefix, jobCardID)
}

// Cache holds rendered job card views between reads
type Cache interface {
	GetJSON(key string, v any) (bool, error)
	PutJSON(key string, v any) error
	Delete(key string) error
}

// EventPublisher receives history entries after they are persisted
type EventPublisher interface {
	Enqueue(entries ...models.HistoryEntry) error
}

// View is a job card together with its tasks and derived figures
type View struct {
	JobCard models.JobCard  `json:"jobCard"`
	Tasks   []models.Task   `json:"tasks"`
	Stats   lifecycle.Stats `json:"stats"`
	Ready   []string        `json:"readyTasks"`
	Blocked []string        `json:"blockedTasks"`
}

// Service runs task lifecycle operations against persisted job cards.
// Every mutation loads the job card under its dispatcher lock, applies the
// lifecycle engine and writes tasks and history in one store mutation.
type Service struct {
	store      storage.Store
	templates  *template.Registry
	cache      Cache
	events     EventPublisher
	dispatcher *Dispatcher
	log        *logrus.Entry
	now        func() time.Time
}

type Option func(*Service)

// WithCache enables view caching
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEvents publishes history entries after every mutation
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Store, templates *template.Registry, log *logrus.Entry, opts ...Option) *Service {
	s := &Service{
		store:      store,
		templates:  templates,
		dispatcher: NewDispatcher(),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shutdown stops accepting operations and waits for running ones
func (s *Service) Shutdown(timeout time.Duration) error {
	return s.dispatcher.Shutdown(timeout)
}

// Templates returns every registered template ordered by id
func (s *Service) Templates() []template.Template {
	return s.templates.List()
}

// Template returns one registered template
func (s *Service) Template(id string) (template.Template, error) {
	return s.templates.Get(id)
}

// CreateJobCard opens a job card, instantiating the tasks of its template when one is named
func (s *Service) CreateJobCard(ctx context.Context, in models.NewJobCard, actor models.Actor) (*View, error) {
	const op = "jobcard.Service.CreateJobCard"
	log := s.log.WithField("operation", op)

	if strings.TrimSpace(actor.ID) == "" {
		return nil, &lifecycle.ValidationError{Field: "actor", Message: "is required"}
	}
	if strings.TrimSpace(in.WorkOrderNumber) == "" {
		return nil, &lifecycle.ValidationError{Field: "workOrderNumber", Message: "is required"}
	}
	if strings.TrimSpace(in.VehicleID) == "" {
		return nil, &lifecycle.ValidationError{Field: "vehicleId", Message: "is required"}
	}

	var tpl *template.Template
	if in.TemplateID != "" {
		t, err := s.templates.Get(in.TemplateID)
		if err != nil {
			return nil, err
		}
		tpl = &t
	}

	if in.Priority == "" {
		in.Priority = models.PriorityMedium
		if tpl != nil && tpl.DefaultPriority != "" {
			in.Priority = tpl.DefaultPriority
		}
	}
	if !in.Priority.IsValid() {
		return nil, &lifecycle.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", in.Priority)}
	}

	now := s.now()
	jc := models.NewJobCardFrom(in, actor.ID, now)

	tasks := make([]models.Task, 0)
	history := lifecycle.NewHistory()
	if tpl != nil {
		created, entries, err := template.Instantiate(*tpl, jc.ID, in.AssignedTo, actor, now)
		if err != nil {
			return nil, err
		}
		tasks = created
		for _, entry := range entries {
			history.Record(entry)
		}
	}

	m := storage.Mutation{JobCardID: jc.ID, History: history.Entries()}
	for _, task := range tasks {
		m.Writes = append(m.Writes, storage.TaskWrite{Task: task})
	}

	err := s.dispatcher.Do(ctx, jc.ID, func() error {
		return s.store.CreateJobCard(ctx, *jc, m)
	})
	if err != nil {
		log.WithError(err).Errorf("%s: failed to store job card", op)
		return nil, fmt.Errorf("failed to create job card: %w", err)
	}
	s.publish(log, m.History)

	log.WithFields(logrus.Fields{
		"jobCardId": jc.ID,
		"template":  jc.TemplateID,
		"tasks":     len(tasks),
	}).Info("job card created")

	return newView(*jc, tasks), nil
}

// ListJobCards returns all job cards ordered by creation time
func (s *Service) ListJobCards(ctx context.Context) ([]models.JobCard, error) {
	return s.store.ListJobCards(ctx)
}

// GetJobCard returns the job card view, served from the cache when possible
func (s *Service) GetJobCard(ctx context.Context, id string) (*View, error) {
	const op = "jobcard.Service.GetJobCard"
	log := s.log.WithField("operation", op)

	if s.cache != nil {
		var cached View
		found, err := s.cache.GetJSON(viewCacheKey(id), &cached)
		if err != nil {
			log.WithError(err).Warn("failed to read cached view")
		}
		if found {
			return &cached, nil
		}
	}

	// The fill runs under the job card lock so a view loaded before a
	// mutation cannot land in the cache after that mutation's invalidation.
	var view *View
	err := s.dispatcher.Do(ctx, id, func() error {
		jc, tasks, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		view = newView(*jc, tasks)
		if s.cache != nil {
			if err := s.cache.PutJSON(viewCacheKey(id), view); err != nil {
				log.WithError(err).Warn("failed to cache view")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CreateTask adds a task to a job card
func (s *Service) CreateTask(ctx context.Context, jobCardID string, in models.NewTask, actor models.Actor) (models.Task, error) {
	const op = "jobcard.Service.CreateTask"
	log := s.log.WithField("operation", op)

	var created models.Task
	err := s.dispatcher.Do(ctx, jobCardID, func() error {
		jc, tasks, err := s.load(ctx, jobCardID)
		if err != nil {
			return err
		}
		for i, dep := range in.DependsOn {
			if lifecycle.FindTask(tasks, dep) < 0 {
				return &lifecycle.ValidationError{Field: fmt.Sprintf("dependsOn[%d]", i), Message: fmt.Sprintf("unknown task %s", dep)}
			}
		}

		now := s.now()
		task, entry, err := lifecycle.CreateTask(jobCardID, in, actor, now)
		if err != nil {
			return err
		}

		tasks = append(tasks, task)
		m := storage.Mutation{
			JobCardID: jobCardID,
			JobCard:   nextJobCard(*jc, tasks, now),
			Writes:    []storage.TaskWrite{{Task: task}},
			History:   []models.HistoryEntry{lifecycle.NewHistory().Record(entry)},
		}
		if err := s.commit(ctx, log, m); err != nil {
			return err
		}
		created = task
		return nil
	})
	return created, err
}

// ChangeStatus moves a task to next
func (s *Service) ChangeStatus(ctx context.Context, jobCardID, taskID string, next models.TaskStatus, expectedVersion int64, actor models.Actor) (models.Task, error) {
	return s.mutateTask(ctx, "jobcard.Service.ChangeStatus", jobCardID, taskID, expectedVersion, func(task models.Task, now time.Time) (models.Task, *models.HistoryEntry, error) {
		return lifecycle.ApplyStatusChange(task, next, actor, now)
	})
}

// EditTask applies a partial update to a task
func (s *Service) EditTask(ctx context.Context, jobCardID, taskID string, update models.TaskUpdate, expectedVersion int64, actor models.Actor) (models.Task, error) {
	return s.mutateTask(ctx, "jobcard.Service.EditTask", jobCardID, taskID, expectedVersion, func(task models.Task, now time.Time) (models.Task, *models.HistoryEntry, error) {
		return lifecycle.ApplyEdit(task, update, actor, now)
	})
}

// AssignTask hands a task to assignee
func (s *Service) AssignTask(ctx context.Context, jobCardID, taskID, assignee string, expectedVersion int64, actor models.Actor) (models.Task, error) {
	return s.mutateTask(ctx, "jobcard.Service.AssignTask", jobCardID, taskID, expectedVersion, func(task models.Task, now time.Time) (models.Task, *models.HistoryEntry, error) {
		return lifecycle.Assign(task, assignee, actor, now)
	})
}

// VerifyTask signs off a completed task
func (s *Service) VerifyTask(ctx context.Context, jobCardID, taskID string, expectedVersion int64, actor models.Actor) (models.Task, error) {
	return s.mutateTask(ctx, "jobcard.Service.VerifyTask", jobCardID, taskID, expectedVersion, func(task models.Task, now time.Time) (models.Task, *models.HistoryEntry, error) {
		return lifecycle.Verify(task, actor, now)
	})
}

// VerifyAll verifies every completed, unverified task on a job card and returns the verified tasks
func (s *Service) VerifyAll(ctx context.Context, jobCardID string, actor models.Actor) ([]models.Task, error) {
	const op = "jobcard.Service.VerifyAll"
	log := s.log.WithField("operation", op)

	verified := make([]models.Task, 0)
	err := s.dispatcher.Do(ctx, jobCardID, func() error {
		jc, tasks, err := s.load(ctx, jobCardID)
		if err != nil {
			return err
		}

		now := s.now()
		updated, entries, err := lifecycle.VerifyAll(tasks, actor, now)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		history := lifecycle.NewHistory()
		m := storage.Mutation{JobCardID: jobCardID, JobCard: nextJobCard(*jc, updated, now)}
		for i := range updated {
			if updated[i].Version == tasks[i].Version {
				continue
			}
			m.Writes = append(m.Writes, storage.TaskWrite{Task: updated[i], ExpectedVersion: tasks[i].Version})
			verified = append(verified, updated[i])
		}
		for _, entry := range entries {
			m.History = append(m.History, history.Record(entry))
		}

		return s.commit(ctx, log, m)
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

// DeleteTask removes a task from a job card
func (s *Service) DeleteTask(ctx context.Context, jobCardID, taskID string, expectedVersion int64, actor models.Actor) error {
	const op = "jobcard.Service.DeleteTask"
	log := s.log.WithField("operation", op)

	return s.dispatcher.Do(ctx, jobCardID, func() error {
		jc, tasks, err := s.load(ctx, jobCardID)
		if err != nil {
			return err
		}
		idx := lifecycle.FindTask(tasks, taskID)
		if idx < 0 {
			return lifecycle.ErrTaskNotFound
		}
		current := tasks[idx]
		if err := lifecycle.CheckVersion(current, expectedVersion); err != nil {
			return err
		}

		now := s.now()
		remaining, entry, err := lifecycle.DeleteTask(tasks, taskID, actor, now)
		if err != nil {
			return err
		}

		m := storage.Mutation{
			JobCardID: jobCardID,
			JobCard:   nextJobCard(*jc, remaining, now),
			Deletes:   []storage.TaskDelete{{ID: taskID, ExpectedVersion: current.Version}},
			History:   []models.HistoryEntry{lifecycle.NewHistory().Record(entry)},
		}
		return s.commit(ctx, log, m)
	})
}

// TaskHistory returns the audit trail of one task, oldest first. The trail of a
// deleted task stays available.
func (s *Service) TaskHistory(ctx context.Context, jobCardID, taskID string) ([]models.HistoryEntry, error) {
	history, err := s.history(ctx, jobCardID)
	if err != nil {
		return nil, err
	}
	entries := history.ByTask(taskID)
	if len(entries) == 0 {
		return nil, lifecycle.ErrTaskNotFound
	}
	return entries, nil
}

// JobCardHistory returns the audit trail of every task on a job card, oldest first
func (s *Service) JobCardHistory(ctx context.Context, jobCardID string) ([]models.HistoryEntry, error) {
	history, err := s.history(ctx, jobCardID)
	if err != nil {
		return nil, err
	}
	return history.Entries(), nil
}

func (s *Service) history(ctx context.Context, jobCardID string) (*lifecycle.History, error) {
	if _, err := s.store.GetJobCard(ctx, jobCardID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return lifecycle.NewHistory(entries...), nil
}

type taskMutation func(task models.Task, now time.Time) (models.Task, *models.HistoryEntry, error)

// mutateTask runs one single-task engine operation under the job card lock.
// A nil history entry means nothing changed and nothing is written.
func (s *Service) mutateTask(ctx context.Context, op, jobCardID, taskID string, expectedVersion int64, fn taskMutation) (models.Task, error) {
	log := s.log.WithFields(logrus.Fields{
		"operation": op,
		"jobCardId": jobCardID,
		"taskId":    taskID,
	})

	var result models.Task
	err := s.dispatcher.Do(ctx, jobCardID, func() error {
		jc, tasks, err := s.load(ctx, jobCardID)
		if err != nil {
			return err
		}
		idx := lifecycle.FindTask(tasks, taskID)
		if idx < 0 {
			return lifecycle.ErrTaskNotFound
		}
		current := tasks[idx]
		if err := lifecycle.CheckVersion(current, expectedVersion); err != nil {
			return err
		}

		now := s.now()
		updated, entry, err := fn(current, now)
		if err != nil {
			return err
		}
		if entry == nil {
			result = current
			return nil
		}

		tasks[idx] = updated
		m := storage.Mutation{
			JobCardID: jobCardID,
			JobCard:   nextJobCard(*jc, tasks, now),
			Writes:    []storage.TaskWrite{{Task: updated, ExpectedVersion: current.Version}},
			History:   []models.HistoryEntry{lifecycle.NewHistory().Record(*entry)},
		}
		if err := s.commit(ctx, log, m); err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

func (s *Service) load(ctx context.Context, jobCardID string) (*models.JobCard, []models.Task, error) {
	jc, err := s.store.GetJobCard(ctx, jobCardID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.store.ListTasks(ctx, jobCardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return jc, tasks, nil
}

// commit persists a mutation, then invalidates the cached view and publishes the history
func (s *Service) commit(ctx context.Context, log *logrus.Entry, m storage.Mutation) error {
	if err := s.store.Apply(ctx, m); err != nil {
		log.WithError(err).Warn("failed to apply mutation")
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(viewCacheKey(m.JobCardID)); err != nil {
			log.WithError(err).Warn("failed to invalidate cached view")
		}
	}
	s.publish(log, m.History)

	for _, entry := range m.History {
		log.WithFields(logrus.Fields{
			"taskId": entry.TaskID,
			"event":  entry.Event,
			"by":     entry.By,
		}).Debug(entry.Notes)
	}
	return nil
}

func (s *Service) publish(log *logrus.Entry, entries []models.HistoryEntry) {
	if s.events == nil || len(entries) == 0 {
		return
	}
	if err := s.events.Enqueue(entries...); err != nil {
		log.WithError(err).Warn("failed to enqueue task events")
	}
}

func newView(jc models.JobCard, tasks []models.Task) *View {
	if tasks == nil {
		tasks = make([]models.Task, 0)
	}
	graph := template.NewTaskGraph(tasks)
	return &View{
		JobCard: jc,
		Tasks:   tasks,
		Stats:   lifecycle.ComputeStats(tasks),
		Ready:   graph.GetReadyTasks(),
		Blocked: graph.GetBlockedTasks(),
	}
}

// nextJobCard returns the job card with its status derived from tasks, or nil
// when the status does not change. Invoiced job cards are left alone.
func nextJobCard(jc models.JobCard, tasks []models.Task, now time.Time) *models.JobCard {
	if jc.Status == models.JobCardStatusInvoiced {
		return nil
	}
	status := DeriveStatus(tasks)
	if status == jc.Status {
		return nil
	}
	jc.Status = status
	jc.UpdatedAt = now
	return &jc
}

// DeriveStatus computes the job card status implied by its tasks
func DeriveStatus(tasks []models.Task) models.JobCardStatus {
	if len(tasks) == 0 {
		return models.JobCardStatusNew
	}
	finished, started := 0, false
	for _, task := range tasks {
		if task.Status.IsFinished() {
			finished++
		}
		if task.Status != models.TaskStatusPending {
			started = true
		}
	}
	switch {
	case finished == len(tasks):
		return models.JobCardStatusCompleted
	case started:
		return models.JobCardStatusInProgress
	default:
		return models.JobCardStatusNew
	}
}
