package jobcard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/storage"
	"github.com/fawad-mazhar/jobcards/internal/storage/bolt"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/sirupsen/logrus"
)

var (
	tech       = models.Actor{ID: "tech-1", Role: models.RoleTechnician}
	supervisor = models.Actor{ID: "sup-1", Role: models.RoleSupervisor}
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) GetJSON(key string, v any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(data, v)
}

func (c *memCache) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *memCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deletes++
	return nil
}

type eventSink struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
}

func (e *eventSink) Enqueue(entries ...models.HistoryEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entries...)
	return nil
}

func (e *eventSink) events() []models.HistoryEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.HistoryEvent, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry.Event)
	}
	return out
}

type fixture struct {
	svc    *Service
	cache  *memCache
	events *eventSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, func(s storage.Store) storage.Store { return s })
}

// newFixtureWithStore lets a test wrap the bolt store before the service uses it
func newFixtureWithStore(t *testing.T, wrap func(storage.Store) storage.Store) *fixture {
	t.Helper()
	store, err := bolt.NewClient(config.StorageConfig{
		BoltPath:   filepath.Join(t.TempDir(), "jobcards.db"),
		BoltBucket: "jobcards",
	})
	if err != nil {
		t.Fatalf("bolt.NewClient() err = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := template.NewRegistry()
	if err := registry.Register(service15k()); err != nil {
		t.Fatalf("Register() err = %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var mu sync.Mutex
	clock := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	f := &fixture{cache: newMemCache(), events: &eventSink{}}
	f.svc = NewService(wrap(store), registry, logrus.NewEntry(logger), WithCache(f.cache), WithEvents(f.events), WithClock(tick))
	return f
}

func service15k() template.Template {
	return template.Template{
		ID:              "service-15k",
		Name:            "15,000 km Service",
		DefaultPriority: models.PriorityHigh,
		VehicleTypes:    []string{"truck"},
		Tasks: []template.TaskTemplate{
			{ID: "oil", Title: "Engine Oil Change", Category: "Engine", EstimatedHours: 0.5, IsCritical: true},
			{ID: "filter", Title: "Oil Filter Replacement", Category: "Filters", EstimatedHours: 0.25, DependsOn: []string{"oil"}},
		},
	}
}

func (f *fixture) openFromTemplate(t *testing.T) *View {
	t.Helper()
	view, err := f.svc.CreateJobCard(context.Background(), models.NewJobCard{
		WorkOrderNumber: "WO-100",
		VehicleID:       "truck-7",
		TemplateID:      "service-15k",
		AssignedTo:      tech.ID,
	}, supervisor)
	if err != nil {
		t.Fatalf("CreateJobCard() err = %v", err)
	}
	return view
}

func TestCreateJobCard_FromTemplate(t *testing.T) {
	f := newFixture(t)
	view := f.openFromTemplate(t)

	if view.JobCard.Priority != models.PriorityHigh || view.JobCard.CustomerName != "Internal Service" {
		t.Fatalf("job card = %+v, want template priority and default customer", view.JobCard)
	}
	if view.Stats.Total != 2 || view.Stats.Pending != 2 {
		t.Fatalf("stats = %+v, want two pending tasks", view.Stats)
	}
	if len(view.Blocked) != 1 || view.Blocked[0] != view.Tasks[1].ID {
		t.Fatalf("blocked = %v, want filter task", view.Blocked)
	}
	if len(view.Ready) != 1 || view.Ready[0] != view.Tasks[0].ID {
		t.Fatalf("ready = %v, want oil task", view.Ready)
	}

	history, err := f.svc.JobCardHistory(context.Background(), view.JobCard.ID)
	if err != nil {
		t.Fatalf("JobCardHistory() err = %v", err)
	}
	if len(history) != 2 || history[0].Event != models.HistoryEventCreated || history[0].ID == "" {
		t.Fatalf("history = %+v, want two created entries with ids", history)
	}
	if got := f.events.events(); len(got) != 2 {
		t.Fatalf("published %v, want two created events", got)
	}
}

func TestCreateJobCard_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateJobCard(ctx, models.NewJobCard{VehicleID: "truck-7"}, supervisor)
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("CreateJobCard(no work order) err = %v, want validation error", err)
	}

	_, err = f.svc.CreateJobCard(ctx, models.NewJobCard{WorkOrderNumber: "WO", VehicleID: "v", TemplateID: "nope"}, supervisor)
	if !errors.Is(err, template.ErrTemplateNotFound) {
		t.Fatalf("CreateJobCard(unknown template) err = %v, want %v", err, template.ErrTemplateNotFound)
	}

	_, err = f.svc.CreateJobCard(ctx, models.NewJobCard{WorkOrderNumber: "WO", VehicleID: "v", Priority: "asap"}, supervisor)
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("CreateJobCard(bad priority) err = %v, want validation error", err)
	}
}

func TestStatusFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID, oil := view.JobCard.ID, view.Tasks[0]

	task, err := f.svc.ChangeStatus(ctx, jcID, oil.ID, models.TaskStatusInProgress, oil.Version, tech)
	if err != nil {
		t.Fatalf("ChangeStatus(in_progress) err = %v", err)
	}
	if task.Version != oil.Version+1 {
		t.Fatalf("version = %d, want %d", task.Version, oil.Version+1)
	}

	task, err = f.svc.ChangeStatus(ctx, jcID, oil.ID, models.TaskStatusCompleted, task.Version, tech)
	if err != nil {
		t.Fatalf("ChangeStatus(completed) err = %v", err)
	}
	if task.CompletedBy != tech.ID || task.CompletedAt == nil {
		t.Fatalf("task = %+v, want completion stamp", task)
	}

	got, err := f.svc.GetJobCard(ctx, jcID)
	if err != nil {
		t.Fatalf("GetJobCard() err = %v", err)
	}
	if got.JobCard.Status != models.JobCardStatusInProgress {
		t.Fatalf("job card status = %q, want in_progress", got.JobCard.Status)
	}
	if got.Stats.Completed != 1 || got.Stats.CompletionPercentage != 50 || !got.Stats.CanVerifyAll {
		t.Fatalf("stats = %+v, unexpected", got.Stats)
	}
	if len(got.Blocked) != 0 {
		t.Fatalf("blocked = %v, want none once oil is done", got.Blocked)
	}

	history, err := f.svc.TaskHistory(ctx, jcID, oil.ID)
	if err != nil {
		t.Fatalf("TaskHistory() err = %v", err)
	}
	if len(history) != 3 || history[2].Notes != "Status changed from in_progress to completed" || history[2].By != tech.ID {
		t.Fatalf("history = %+v, unexpected", history)
	}
}

func TestChangeStatus_SameStatusWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	oil := view.Tasks[0]

	task, err := f.svc.ChangeStatus(ctx, view.JobCard.ID, oil.ID, models.TaskStatusPending, 0, tech)
	if err != nil || task.Version != oil.Version {
		t.Fatalf("ChangeStatus(same) = v%d, %v, want unchanged", task.Version, err)
	}
	history, _ := f.svc.TaskHistory(ctx, view.JobCard.ID, oil.ID)
	if len(history) != 1 {
		t.Fatalf("history len = %d, want only the created entry", len(history))
	}
}

func TestChangeStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID, oil := view.JobCard.ID, view.Tasks[0]

	if _, err := f.svc.ChangeStatus(ctx, jcID, oil.ID, models.TaskStatusVerified, 0, tech); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("technician verify err = %v, want %v", err, lifecycle.ErrInvalidTransition)
	}
	if _, err := f.svc.ChangeStatus(ctx, jcID, oil.ID, models.TaskStatusInProgress, oil.Version+3, tech); !errors.Is(err, lifecycle.ErrConflict) {
		t.Fatalf("stale version err = %v, want %v", err, lifecycle.ErrConflict)
	}
	if _, err := f.svc.ChangeStatus(ctx, jcID, "missing", models.TaskStatusInProgress, 0, tech); !errors.Is(err, lifecycle.ErrTaskNotFound) {
		t.Fatalf("missing task err = %v, want %v", err, lifecycle.ErrTaskNotFound)
	}
	if _, err := f.svc.ChangeStatus(ctx, "nope", oil.ID, models.TaskStatusInProgress, 0, tech); !errors.Is(err, storage.ErrJobCardNotFound) {
		t.Fatalf("missing job card err = %v, want %v", err, storage.ErrJobCardNotFound)
	}
}

func TestVerifyAll_CompletesJobCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID := view.JobCard.ID

	for _, task := range view.Tasks {
		if _, err := f.svc.ChangeStatus(ctx, jcID, task.ID, models.TaskStatusCompleted, 0, tech); err != nil {
			t.Fatalf("ChangeStatus(%s) err = %v", task.ID, err)
		}
	}

	if _, err := f.svc.VerifyAll(ctx, jcID, tech); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("VerifyAll(technician) err = %v, want %v", err, lifecycle.ErrInvalidTransition)
	}

	verified, err := f.svc.VerifyAll(ctx, jcID, supervisor)
	if err != nil {
		t.Fatalf("VerifyAll() err = %v", err)
	}
	if len(verified) != 2 || verified[0].VerifiedBy != supervisor.ID {
		t.Fatalf("verified = %+v, want both tasks verified by supervisor", verified)
	}

	again, err := f.svc.VerifyAll(ctx, jcID, supervisor)
	if err != nil || len(again) != 0 {
		t.Fatalf("VerifyAll() second run = %v, %v, want nothing to do", again, err)
	}

	got, _ := f.svc.GetJobCard(ctx, jcID)
	if got.JobCard.Status != models.JobCardStatusCompleted || got.Stats.Verified != 2 || got.Stats.CompletionPercentage != 100 {
		t.Fatalf("view = %+v / %+v, want completed job card", got.JobCard, got.Stats)
	}

	history, _ := f.svc.TaskHistory(ctx, jcID, view.Tasks[0].ID)
	last := history[len(history)-1]
	if last.Event != models.HistoryEventVerified || last.Notes != "Task verified in batch by supervisor" {
		t.Fatalf("last entry = %+v, want batch verification", last)
	}
}

func TestVerifyTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID, oil := view.JobCard.ID, view.Tasks[0]

	if _, err := f.svc.VerifyTask(ctx, jcID, oil.ID, 0, supervisor); !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("VerifyTask(pending) err = %v, want validation error", err)
	}

	done, _ := f.svc.ChangeStatus(ctx, jcID, oil.ID, models.TaskStatusCompleted, 0, tech)
	task, err := f.svc.VerifyTask(ctx, jcID, oil.ID, done.Version, supervisor)
	if err != nil {
		t.Fatalf("VerifyTask() err = %v", err)
	}
	if task.Status != models.TaskStatusVerified || task.VerifiedBy != supervisor.ID || task.CompletedBy != tech.ID {
		t.Fatalf("task = %+v, want verified keeping completion stamp", task)
	}
}

func TestAssignAndEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID, oil := view.JobCard.ID, view.Tasks[0]

	task, err := f.svc.AssignTask(ctx, jcID, oil.ID, "tech-2", 0, supervisor)
	if err != nil || task.AssignedTo != "tech-2" {
		t.Fatalf("AssignTask() = %+v, %v", task, err)
	}

	title := "Engine Oil & Filter"
	task, err = f.svc.EditTask(ctx, jcID, oil.ID, models.TaskUpdate{Title: &title}, task.Version, supervisor)
	if err != nil || task.Title != title {
		t.Fatalf("EditTask() = %+v, %v", task, err)
	}

	empty := " "
	if _, err := f.svc.EditTask(ctx, jcID, oil.ID, models.TaskUpdate{Category: &empty}, 0, supervisor); !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("EditTask(empty category) err = %v, want validation error", err)
	}

	history, _ := f.svc.TaskHistory(ctx, jcID, oil.ID)
	if len(history) != 3 || history[1].Event != models.HistoryEventAssigned || history[2].Event != models.HistoryEventEdited {
		t.Fatalf("history = %+v, want created, assigned, edited", history)
	}
}

func TestCreateAndDeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID := view.JobCard.ID

	_, err := f.svc.CreateTask(ctx, jcID, models.NewTask{Title: "Road Test", Category: "General", EstimatedHours: 0.5, DependsOn: []string{"ghost"}}, supervisor)
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("CreateTask(unknown dependency) err = %v, want validation error", err)
	}

	task, err := f.svc.CreateTask(ctx, jcID, models.NewTask{Title: "Road Test", Category: "General", EstimatedHours: 0.5, DependsOn: []string{view.Tasks[1].ID}}, supervisor)
	if err != nil {
		t.Fatalf("CreateTask() err = %v", err)
	}

	got, _ := f.svc.GetJobCard(ctx, jcID)
	if got.Stats.Total != 3 || len(got.Blocked) != 2 {
		t.Fatalf("view = %+v / blocked %v, want three tasks, two blocked", got.Stats, got.Blocked)
	}

	if err := f.svc.DeleteTask(ctx, jcID, task.ID, task.Version+1, supervisor); !errors.Is(err, lifecycle.ErrConflict) {
		t.Fatalf("DeleteTask(stale) err = %v, want %v", err, lifecycle.ErrConflict)
	}
	if err := f.svc.DeleteTask(ctx, jcID, task.ID, task.Version, supervisor); err != nil {
		t.Fatalf("DeleteTask() err = %v", err)
	}
	if err := f.svc.DeleteTask(ctx, jcID, task.ID, 0, supervisor); !errors.Is(err, lifecycle.ErrTaskNotFound) {
		t.Fatalf("DeleteTask(again) err = %v, want %v", err, lifecycle.ErrTaskNotFound)
	}

	history, err := f.svc.TaskHistory(ctx, jcID, task.ID)
	if err != nil {
		t.Fatalf("TaskHistory(deleted) err = %v", err)
	}
	if len(history) != 2 || history[1].Event != models.HistoryEventDeleted {
		t.Fatalf("history = %+v, want created then deleted", history)
	}
	if _, err := f.svc.TaskHistory(ctx, jcID, "never-existed"); !errors.Is(err, lifecycle.ErrTaskNotFound) {
		t.Fatalf("TaskHistory(unknown) err = %v, want %v", err, lifecycle.ErrTaskNotFound)
	}
}

func TestGetJobCard_Cache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID := view.JobCard.ID

	if _, err := f.svc.GetJobCard(ctx, jcID); err != nil {
		t.Fatalf("GetJobCard() err = %v", err)
	}
	if _, err := f.svc.GetJobCard(ctx, jcID); err != nil {
		t.Fatalf("GetJobCard() err = %v", err)
	}
	if f.cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", f.cache.hits)
	}

	if _, err := f.svc.AssignTask(ctx, jcID, view.Tasks[0].ID, "tech-9", 0, supervisor); err != nil {
		t.Fatalf("AssignTask() err = %v", err)
	}
	got, _ := f.svc.GetJobCard(ctx, jcID)
	if got.Tasks[0].AssignedTo != "tech-9" {
		t.Fatalf("view after mutation = %+v, want fresh data", got.Tasks[0])
	}
	if f.cache.hits != 1 {
		t.Fatalf("cache hits = %d, want stale view bypassed", f.cache.hits)
	}
}

// pausingStore holds the next ListTasks call after it has read, until released
type pausingStore struct {
	storage.Store
	mu      sync.Mutex
	armed   bool
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListTasks(ctx context.Context, jobCardID string) ([]models.Task, error) {
	tasks, err := p.Store.ListTasks(ctx, jobCardID)

	p.mu.Lock()
	pause := p.armed
	p.armed = false
	p.mu.Unlock()

	if pause {
		close(p.loaded)
		<-p.release
	}
	return tasks, err
}

func (p *pausingStore) arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = true
	p.loaded = make(chan struct{})
	p.release = make(chan struct{})
}

func TestGetJobCard_ReadRacingWriteDoesNotCacheStaleView(t *testing.T) {
	paused := &pausingStore{}
	f := newFixtureWithStore(t, func(s storage.Store) storage.Store {
		paused.Store = s
		return paused
	})
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID, oil := view.JobCard.ID, view.Tasks[0]

	paused.arm()
	readDone := make(chan error, 1)
	go func() {
		_, err := f.svc.GetJobCard(ctx, jcID)
		readDone <- err
	}()
	<-paused.loaded

	writeDone := make(chan error, 1)
	go func() {
		_, err := f.svc.ChangeStatus(ctx, jcID, oil.ID, models.TaskStatusCompleted, 0, tech)
		writeDone <- err
	}()

	select {
	case err := <-writeDone:
		t.Fatalf("ChangeStatus() finished while a view was being loaded (err = %v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(paused.release)
	if err := <-readDone; err != nil {
		t.Fatalf("GetJobCard() err = %v", err)
	}
	if err := <-writeDone; err != nil {
		t.Fatalf("ChangeStatus() err = %v", err)
	}

	got, err := f.svc.GetJobCard(ctx, jcID)
	if err != nil {
		t.Fatalf("GetJobCard() err = %v", err)
	}
	if got.Tasks[0].Status != models.TaskStatusCompleted || got.Tasks[0].Version != oil.Version+1 {
		t.Fatalf("view after committed change = %s v%d, want completed v%d", got.Tasks[0].Status, got.Tasks[0].Version, oil.Version+1)
	}
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openFromTemplate(t)
	jcID, oil := view.JobCard.ID, view.Tasks[0]

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.svc.AssignTask(ctx, jcID, oil.ID, fmt.Sprintf("tech-%d", i+10), 0, supervisor); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AssignTask() err = %v", err)
	}

	got, _ := f.svc.GetJobCard(ctx, jcID)
	if got.Tasks[0].Version != oil.Version+n {
		t.Fatalf("version = %d, want %d", got.Tasks[0].Version, oil.Version+n)
	}
	history, _ := f.svc.TaskHistory(ctx, jcID, oil.ID)
	if len(history) != n+1 {
		t.Fatalf("history len = %d, want %d", len(history), n+1)
	}
}

func TestShutdownRejectsOperations(t *testing.T) {
	f := newFixture(t)
	view := f.openFromTemplate(t)

	if err := f.svc.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() err = %v", err)
	}
	_, err := f.svc.ChangeStatus(context.Background(), view.JobCard.ID, view.Tasks[0].ID, models.TaskStatusInProgress, 0, tech)
	if !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("ChangeStatus() after shutdown err = %v, want %v", err, ErrShuttingDown)
	}
}

func TestDeriveStatus(t *testing.T) {
	task := func(s models.TaskStatus) models.Task { return models.Task{Status: s} }

	tests := []struct {
		name  string
		tasks []models.Task
		want  models.JobCardStatus
	}{
		{"empty", nil, models.JobCardStatusNew},
		{"all pending", []models.Task{task(models.TaskStatusPending), task(models.TaskStatusPending)}, models.JobCardStatusNew},
		{"one started", []models.Task{task(models.TaskStatusInProgress), task(models.TaskStatusPending)}, models.JobCardStatusInProgress},
		{"one finished", []models.Task{task(models.TaskStatusCompleted), task(models.TaskStatusPending)}, models.JobCardStatusInProgress},
		{"all finished", []models.Task{task(models.TaskStatusVerified), task(models.TaskStatusNotApplicable)}, models.JobCardStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.tasks); got != tt.want {
				t.Fatalf("DeriveStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
