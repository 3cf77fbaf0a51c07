package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	evts []events.Event
}

func (s *recordingSink) Emit(_ context.Context, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evts = append(s.evts, evts...)

	return nil
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evts = nil
}

func (s *recordingSink) events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]events.Event(nil), s.evts...)
}

func (s *recordingSink) types() []events.EventType {
	evts := s.events()

	types := make([]events.EventType, 0, len(evts))
	for _, e := range evts {
		types = append(types, e.Type)
	}

	return types
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []automation.ActionRequest
}

func (d *recordingDispatcher) Dispatch(_ context.Context, request automation.ActionRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, request)

	return nil
}

func (d *recordingDispatcher) actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	actions := make([]string, 0, len(d.requests))
	for _, r := range d.requests {
		actions = append(actions, r.Action)
	}

	return actions
}

type fixture struct {
	runtime    *Runtime
	registry   *Registry
	tasks      *TaskGraph
	comments   *Collaboration
	sink       *recordingSink
	journal    *journal.Memory
	dispatcher *recordingDispatcher
	engine     *automation.Engine
}

func newFixture(t *testing.T, configure ...func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		sink:       &recordingSink{},
		journal:    journal.NewMemory(0, 0),
		dispatcher: &recordingDispatcher{},
	}
	f.engine = automation.NewEngine(slog.Default(), f.dispatcher)

	cfg := Config{
		Persistence: file.NewPersistence(t.TempDir()),
		Journal:     f.journal,
		Sink:        f.sink,
		Automation:  f.engine,
		Logger:      slog.Default(),
	}

	for _, fn := range configure {
		fn(&cfg)
	}

	f.runtime = NewRuntime(cfg)
	f.registry = NewRegistry(f.runtime)
	f.tasks = NewTaskGraph(f.runtime)
	f.comments = NewCollaboration(f.runtime)

	t.Cleanup(f.runtime.Close)

	return f
}

func (f *fixture) workflow(t *testing.T, rules ...*models.AutomationRule) *models.Workflow {
	t.Helper()

	workflow, err := f.registry.CreateWorkflow(t.Context(), CreateWorkflowRequest{
		OrganizationID:  "org-1",
		Name:            "2025 Tax Return",
		Type:            models.WorkflowTypeTaxPreparation,
		AutomationRules: rules,
		ActorID:         "alice",
	})
	require.NoError(t, err)

	return workflow
}

func (f *fixture) task(t *testing.T, workflowID, title string, deps ...string) *models.Task {
	t.Helper()

	task, err := f.tasks.CreateTask(t.Context(), workflowID, CreateTaskRequest{
		Title:        title,
		Dependencies: deps,
		ActorID:      "alice",
	})
	require.NoError(t, err)

	return task
}

func (f *fixture) move(t *testing.T, task *models.Task, targets ...models.TaskStatus) *models.Task {
	t.Helper()

	for _, target := range targets {
		moved, err := f.tasks.TransitionStatus(t.Context(), task.ID, TransitionRequest{
			Target:          target,
			ActorID:         "alice",
			ExpectedVersion: task.Version,
		})
		require.NoError(t, err, "moving %s to %s", task.Title, target)

		task = moved
	}

	return task
}

func (f *fixture) complete(t *testing.T, task *models.Task) *models.Task {
	t.Helper()

	if task.Status == models.TaskStatusPending {
		task = f.move(t, task, models.TaskStatusInProgress)
	}

	return f.move(t, task, models.TaskStatusReview, models.TaskStatusCompleted)
}

func (f *fixture) reload(t *testing.T, task *models.Task) *models.Task {
	t.Helper()

	current, err := f.tasks.GetTask(t.Context(), task.ID)
	require.NoError(t, err)

	return current
}

func (f *fixture) progress(t *testing.T, workflowID string) int {
	t.Helper()

	workflow, err := f.registry.GetWorkflow(t.Context(), workflowID)
	require.NoError(t, err)

	return workflow.Progress
}
