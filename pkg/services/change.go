package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/graph"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/advisoros/taskcore/pkg/progress"
)

// change collects the effects of one command on one workflow. The loaded entities are
// private copies; they are mutated in place and written back in a single commit.
type change struct {
	op      string
	actorID string
	now     time.Time

	workflow        *models.Workflow
	workflowVersion int64
	workflowChanged bool
	progressChanged bool

	tasks   []*models.Task
	byID    map[string]*models.Task
	loaded  map[string]int64
	touched []string
	emitted map[string]taskEmission

	comments []*models.Comment
	purge    bool

	triggers []automation.Subject
	notices  []notice
}

type taskEmission struct {
	eventType events.EventType
	payload   any
}

type notice struct {
	action  string
	subject automation.Subject
}

func newChange(op, actorID string, now time.Time, workflow *models.Workflow, tasks []*models.Task) *change {
	c := &change{
		op:       op,
		actorID:  actorID,
		now:      now,
		workflow: workflow,
		tasks:    tasks,
		byID:     make(map[string]*models.Task, len(tasks)),
		loaded:   make(map[string]int64, len(tasks)),
		emitted:  make(map[string]taskEmission),
	}

	if workflow != nil {
		c.workflowVersion = workflow.Version
	}

	for _, task := range tasks {
		c.byID[task.ID] = task
		c.loaded[task.ID] = task.Version
	}

	return c
}

func (c *change) graph() *graph.Graph {
	return graph.New(c.tasks)
}

// task returns the loaded task, or a not-found rejection.
func (c *change) task(id string) (*models.Task, error) {
	task, ok := c.byID[id]
	if !ok {
		return nil, persistence.NotFound(c.op, "task", id)
	}

	return task, nil
}

func (c *change) addTask(task *models.Task) {
	c.tasks = append(c.tasks, task)
	c.byID[task.ID] = task
	c.touch(task)
}

// touch marks the task written by this command with a task_updated event.
func (c *change) touch(task *models.Task) {
	c.touchAs(task, "", nil)
}

// touchAs marks the task written with a specific event. The first specific event wins.
func (c *change) touchAs(task *models.Task, eventType events.EventType, payload any) {
	emission, seen := c.emitted[task.ID]
	if !seen {
		c.touched = append(c.touched, task.ID)
	}

	if eventType != "" && emission.eventType == "" {
		c.emitted[task.ID] = taskEmission{eventType: eventType, payload: payload}
	} else if !seen {
		c.emitted[task.ID] = taskEmission{}
	}
}

func (c *change) touchWorkflow() {
	c.workflowChanged = true
}

func (c *change) trigger(trigger models.RuleTrigger, task *models.Task) {
	c.triggers = append(c.triggers, automation.Subject{Trigger: trigger, Task: task})
}

// checkVersion rejects the command when the caller read a different task version.
func (c *change) checkVersion(task *models.Task, expected int64) error {
	if task.Version != expected {
		return reject(c.op, task.ID, task.Version, ErrVersionConflict,
			"task %s is at version %d, expected %d", task.ID, task.Version, expected)
	}

	return nil
}

func (c *change) checkWorkflowVersion(expected int64) error {
	if c.workflow.Version != expected {
		return reject(c.op, c.workflow.ID, c.workflow.Version, ErrVersionConflict,
			"workflow %s is at version %d, expected %d", c.workflow.ID, c.workflow.Version, expected)
	}

	return nil
}

// checkOpen rejects task mutations in an archived workflow.
func (c *change) checkOpen(task *models.Task) error {
	if c.workflow.Status == models.WorkflowStatusArchived {
		return reject(c.op, task.ID, task.Version, ErrWorkflowClosed, "workflow %s is archived", c.workflow.ID)
	}

	return nil
}

// unsatisfied returns the dependencies of task that are not completed.
func (c *change) unsatisfied(task *models.Task) []string {
	return c.graph().Unsatisfied(task.ID)
}

// setStatus applies a status change and its dependency cascade.
func (c *change) setStatus(task *models.Task, to models.TaskStatus, reason string, automatic bool) {
	from := task.Status

	task.SetStatus(to, models.StatusChange{
		ActorID:   c.actorID,
		Reason:    reason,
		Automatic: automatic,
		At:        c.now,
	})
	c.touch(task)

	switch {
	case from == models.TaskStatusCompleted && to != models.TaskStatusCompleted:
		c.blockDependents(task)
	case to == models.TaskStatusCompleted && from != models.TaskStatusCompleted:
		c.resumeDependents(task)
		c.trigger(models.TriggerTaskCompleted, task)
	}
}

// blockDependents blocks every in-progress dependent of a task that left completed.
func (c *change) blockDependents(task *models.Task) {
	g := c.graph()

	for _, id := range g.Dependents(task.ID) {
		dependent := c.byID[id]
		if dependent.Status != models.TaskStatusInProgress {
			continue
		}

		c.block(dependent, fmt.Sprintf("dependency %s is no longer completed", task.ID))
	}
}

func (c *change) block(task *models.Task, reason string) {
	task.BlockReason = models.BlockReasonDependency
	c.setStatus(task, models.TaskStatusBlocked, reason, true)
}

// resumeDependents resumes dependency-blocked dependents whose dependencies are now all
// completed. Manual blocks are left alone.
func (c *change) resumeDependents(task *models.Task) {
	g := c.graph()

	for _, id := range g.Dependents(task.ID) {
		c.resume(c.byID[id], fmt.Sprintf("dependency %s completed", task.ID))
	}
}

func (c *change) resume(task *models.Task, reason string) {
	if task.Status != models.TaskStatusBlocked || task.BlockReason != models.BlockReasonDependency {
		return
	}

	if len(c.unsatisfied(task)) > 0 {
		return
	}

	c.setStatus(task, models.TaskStatusInProgress, reason, true)
}

// changeset stamps versions and progress and builds the atomic write.
func (c *change) changeset() *persistence.Changeset {
	changes := &persistence.Changeset{Comments: c.comments}

	for _, id := range c.touched {
		task := c.byID[id]
		expected := c.loaded[id]

		task.Version = expected + 1
		task.UpdatedAt = c.now

		changes.Tasks = append(changes.Tasks, persistence.TaskWrite{Task: task, ExpectedVersion: expected})
	}

	if c.workflow == nil {
		return changes
	}

	if c.purge {
		changes.PurgeWorkflowTasks = c.workflow.ID
	}

	percent := progress.Compute(c.tasks)
	if percent != c.workflow.Progress {
		c.workflow.Progress = percent
		c.progressChanged = true
	}

	if c.workflowChanged || c.progressChanged {
		c.workflow.Version = c.workflowVersion + 1
		c.workflow.UpdatedAt = c.now

		changes.Workflow = &persistence.WorkflowWrite{Workflow: c.workflow, ExpectedVersion: c.workflowVersion}
	}

	return changes
}

// events returns the committed change as ordered events: tasks first, then the workflow.
func (c *change) events(logger *slog.Logger) []events.Event {
	evts := make([]events.Event, 0, len(c.touched)+1)

	for _, id := range c.touched {
		task := c.byID[id]
		emission := c.emitted[id]

		eventType := emission.eventType
		if eventType == "" {
			eventType = events.TaskUpdatedEvent
		}

		var payload any = task
		if emission.payload != nil {
			payload = emission.payload
		}

		evts = c.appendEvent(logger, evts, eventType, events.EntityTask, task.ID, task.Version, payload)
	}

	if c.workflowChanged || c.progressChanged {
		eventType := events.WorkflowUpdatedEvent
		if !c.workflowChanged {
			eventType = events.WorkflowProgressChangedEvent
		}

		evts = c.appendEvent(logger, evts, eventType, events.EntityWorkflow, c.workflow.ID, c.workflow.Version, c.workflow)
	}

	return evts
}

func (c *change) appendEvent(
	logger *slog.Logger,
	evts []events.Event,
	eventType events.EventType,
	entityType events.EntityType,
	entityID string,
	version int64,
	payload any,
) []events.Event {
	event, err := events.New(eventType, entityType, entityID, version, payload)
	if err != nil {
		logger.Error("failed to encode event", "event_type", eventType, "entity_id", entityID, "error", err)

		return evts
	}

	event.WorkflowID = c.workflow.ID
	event.OrganizationID = c.workflow.OrganizationID
	event.ActorID = c.actorID
	event.Timestamp = c.now

	return append(evts, event)
}
