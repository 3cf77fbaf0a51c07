package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/otelhelper"
	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// CreateTaskRequest holds the fields of a new task.
type CreateTaskRequest struct {
	Title          string
	Description    string
	Type           models.TaskType
	Priority       models.Priority
	Assignee       string
	Dependencies   []string
	Tags           []string
	Position       *int
	EstimatedHours *float64
	DueDate        *time.Time
	Checklist      []string
	SubTasks       []string
	ActorID        string
}

// TransitionRequest moves a task to Target if the caller read ExpectedVersion.
type TransitionRequest struct {
	Target          models.TaskStatus
	ActorID         string
	ExpectedVersion int64
	Reason          string
}

// TaskGraph is the single writer of task state. It enforces the dependency graph and the
// status state machine, and keeps workflow progress current in the same commit.
type TaskGraph struct {
	*Runtime
}

func NewTaskGraph(runtime *Runtime) *TaskGraph {
	return &TaskGraph{Runtime: runtime}
}

// GetTask returns the current state of a task.
func (s *TaskGraph) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return s.persistence.TaskRepository().GetByID(ctx, taskID)
}

// CreateTask adds a task to a workflow. Every dependency must be a task of the same
// workflow and the new edges must not close a cycle.
func (s *TaskGraph) CreateTask(ctx context.Context, workflowID string, req CreateTaskRequest) (*models.Task, error) {
	const op = "CreateTask"

	if strings.TrimSpace(req.Title) == "" {
		return nil, reject(op, "", 0, ErrInvalidRequest, "task title is required")
	}

	if req.Type == "" {
		req.Type = models.TaskTypeOther
	}

	if !req.Type.IsValid() {
		return nil, reject(op, "", 0, ErrInvalidRequest, "invalid task type '%s'", req.Type)
	}

	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	if !req.Priority.IsValid() {
		return nil, reject(op, "", 0, ErrInvalidRequest, "invalid priority '%s'", req.Priority)
	}

	if req.EstimatedHours != nil && *req.EstimatedHours < 0 {
		return nil, reject(op, "", 0, ErrInvalidRequest, "estimated hours cannot be negative")
	}

	var created *models.Task

	err := s.execute(ctx, op, workflowID, func(ctx context.Context) error {
		c, err := s.load(ctx, op, workflowID, req.ActorID)
		if err != nil {
			return err
		}

		if !c.workflow.Status.AcceptsTasks() {
			return reject(op, workflowID, c.workflow.Version, ErrWorkflowClosed,
				"workflow %s is %s and does not accept tasks", workflowID, c.workflow.Status)
		}

		task := s.newTask(c, req)

		err = c.graph().CheckEdges(task.ID, task.Dependencies)
		if err != nil {
			return reject(op, workflowID, c.workflow.Version, ErrInvalidDependency, "%v", err)
		}

		c.addTask(task)

		err = s.commit(ctx, c)
		if err != nil {
			return err
		}

		created = task

		return nil
	})

	return created, err
}

func (s *TaskGraph) newTask(c *change, req CreateTaskRequest) *models.Task {
	position := len(c.tasks)
	if req.Position != nil {
		position = *req.Position
	}

	deps := make([]string, 0, len(req.Dependencies))
	for _, dep := range req.Dependencies {
		if !slices.Contains(deps, dep) {
			deps = append(deps, dep)
		}
	}

	task := &models.Task{
		ID:             uuid.New().String(),
		WorkflowID:     c.workflow.ID,
		OrganizationID: c.workflow.OrganizationID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Type:           req.Type,
		Status:         models.TaskStatusPending,
		Priority:       req.Priority,
		Assignee:       req.Assignee,
		Dependencies:   deps,
		SubTasks:       make([]*models.SubTask, 0, len(req.SubTasks)),
		Checklist:      make([]*models.ChecklistItem, 0, len(req.Checklist)),
		Attachments:    make([]*models.Attachment, 0),
		Approvals:      make([]*models.Approval, 0),
		Tags:           req.Tags,
		Position:       position,
		EstimatedHours: req.EstimatedHours,
		DueDate:        req.DueDate,
		History:        make([]*models.StatusChange, 0),
		CreatedAt:      c.now,
	}

	if task.Tags == nil {
		task.Tags = make([]string, 0)
	}

	for _, title := range req.SubTasks {
		task.SubTasks = append(task.SubTasks, &models.SubTask{ID: uuid.New().String(), Title: title})
	}

	for _, text := range req.Checklist {
		task.Checklist = append(task.Checklist, &models.ChecklistItem{ID: uuid.New().String(), Text: text})
	}

	return task
}

// mutateTask runs fn against a fresh copy of the task inside the workflow's command
// goroutine and commits whatever fn changed.
func (s *TaskGraph) mutateTask(ctx context.Context, op, taskID, actorID string, fn func(c *change, task *models.Task) error) (*models.Task, error) {
	current, err := s.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var result *models.Task

	err = s.execute(ctx, op, current.WorkflowID, func(ctx context.Context) error {
		c, err := s.load(ctx, op, current.WorkflowID, actorID)
		if err != nil {
			return err
		}

		task, err := c.task(taskID)
		if err != nil {
			return err
		}

		err = c.checkOpen(task)
		if err != nil {
			return err
		}

		err = fn(c, task)
		if err != nil {
			return err
		}

		err = s.commit(ctx, c)
		if err != nil {
			return err
		}

		result = task

		return nil
	}, attribute.String(otelhelper.TaskIDKey, taskID), attribute.String(otelhelper.ActorIDKey, actorID))

	return result, err
}

// TransitionStatus moves a task through the state machine. The checks run in a fixed
// order: version, transition table, dependencies, approvals.
func (s *TaskGraph) TransitionStatus(ctx context.Context, taskID string, req TransitionRequest) (*models.Task, error) {
	const op = "TransitionStatus"

	if !req.Target.IsValid() {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "invalid status '%s'", req.Target)
	}

	return s.mutateTask(ctx, op, taskID, req.ActorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, req.ExpectedVersion)
		if err != nil {
			return err
		}

		if !task.Status.CanTransitionTo(req.Target) {
			return reject(op, task.ID, task.Version, ErrInvalidTransition,
				"cannot move task %s from %s to %s", task.ID, task.Status, req.Target)
		}

		if req.Target.RequiresDependencies() {
			if pending := c.unsatisfied(task); len(pending) > 0 {
				return reject(op, task.ID, task.Version, ErrDependencyNotSatisfied,
					"task %s waits on %s", task.ID, strings.Join(pending, ", "))
			}
		}

		if req.Target == models.TaskStatusCompleted && s.requireApprovals && task.HasOpenApprovals() {
			return reject(op, task.ID, task.Version, ErrApprovalsPending,
				"task %s has approvals that are not approved", task.ID)
		}

		if req.Target == models.TaskStatusBlocked {
			task.BlockReason = models.BlockReasonManual
		}

		c.setStatus(task, req.Target, req.Reason, false)

		return nil
	})
}

// Assign sets or clears the single assignee of a task.
func (s *TaskGraph) Assign(ctx context.Context, taskID, assignee, actorID string, expectedVersion int64) (*models.Task, error) {
	return s.mutateTask(ctx, "Assign", taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		task.Assignee = strings.TrimSpace(assignee)
		c.touchAs(task, events.TaskAssignedEvent, nil)

		return nil
	})
}

// AddChecklistItem appends an open checklist item.
func (s *TaskGraph) AddChecklistItem(ctx context.Context, taskID, text, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "AddChecklistItem"

	if strings.TrimSpace(text) == "" {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "checklist item text is required")
	}

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		task.Checklist = append(task.Checklist, &models.ChecklistItem{ID: uuid.New().String(), Text: text})
		c.touch(task)

		return nil
	})
}

// UpdateChecklist marks a checklist item completed or open again.
func (s *TaskGraph) UpdateChecklist(ctx context.Context, taskID, itemID string, completed bool, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "UpdateChecklist"

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		item := task.ChecklistItem(itemID)
		if item == nil {
			return reject(op, task.ID, task.Version, ErrInvalidRequest, "checklist item %s not found", itemID)
		}

		item.Completed = completed
		item.CompletedBy, item.CompletedAt = completion(completed, actorID, c.now)
		c.touch(task)

		return nil
	})
}

// AddSubTask appends an open subtask.
func (s *TaskGraph) AddSubTask(ctx context.Context, taskID, title, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "AddSubTask"

	if strings.TrimSpace(title) == "" {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "subtask title is required")
	}

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		task.SubTasks = append(task.SubTasks, &models.SubTask{ID: uuid.New().String(), Title: title})
		c.touch(task)

		return nil
	})
}

// UpdateSubTask marks a subtask completed or open again.
func (s *TaskGraph) UpdateSubTask(ctx context.Context, taskID, subTaskID string, completed bool, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "UpdateSubTask"

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		sub := task.SubTask(subTaskID)
		if sub == nil {
			return reject(op, task.ID, task.Version, ErrInvalidRequest, "subtask %s not found", subTaskID)
		}

		sub.Completed = completed
		sub.CompletedBy, sub.CompletedAt = completion(completed, actorID, c.now)
		c.touch(task)

		return nil
	})
}

func completion(completed bool, actorID string, now time.Time) (string, *time.Time) {
	if !completed {
		return "", nil
	}

	return actorID, &now
}

// AddDependency makes taskID wait on dependsOn. An in-progress task that gains an
// incomplete dependency is blocked in the same commit.
func (s *TaskGraph) AddDependency(ctx context.Context, taskID, dependsOn, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "AddDependency"

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		if task.DependsOn(dependsOn) {
			return nil
		}

		err = c.graph().CheckEdges(task.ID, []string{dependsOn})
		if err != nil {
			return reject(op, task.ID, task.Version, ErrInvalidDependency, "%v", err)
		}

		task.Dependencies = append(task.Dependencies, dependsOn)
		c.touch(task)

		if task.Status == models.TaskStatusInProgress && len(c.unsatisfied(task)) > 0 {
			c.block(task, fmt.Sprintf("dependency %s is not completed", dependsOn))
		}

		return nil
	})
}

// RemoveDependency drops an edge. A dependency-blocked task whose remaining dependencies
// are completed resumes in the same commit.
func (s *TaskGraph) RemoveDependency(ctx context.Context, taskID, dependsOn, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "RemoveDependency"

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		if !task.DependsOn(dependsOn) {
			return reject(op, task.ID, task.Version, ErrInvalidDependency,
				"task %s does not depend on %s", task.ID, dependsOn)
		}

		task.Dependencies = slices.DeleteFunc(task.Dependencies, func(id string) bool { return id == dependsOn })
		c.touch(task)
		c.resume(task, fmt.Sprintf("dependency %s removed", dependsOn))

		return nil
	})
}

// AttachmentRequest references a file kept by the external storage service.
type AttachmentRequest struct {
	Name        string
	Reference   string
	ContentType string
}

// AddAttachment records a reference to an externally stored file.
func (s *TaskGraph) AddAttachment(ctx context.Context, taskID string, req AttachmentRequest, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "AddAttachment"

	if req.Name == "" || req.Reference == "" {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "attachment name and reference are required")
	}

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		task.Attachments = append(task.Attachments, &models.Attachment{
			ID:          uuid.New().String(),
			Name:        req.Name,
			Reference:   req.Reference,
			ContentType: req.ContentType,
			UploadedBy:  actorID,
			UploadedAt:  c.now,
		})
		c.touch(task)

		return nil
	})
}

// RequestApproval asks approverID to sign off the task and fires approval_needed rules.
func (s *TaskGraph) RequestApproval(ctx context.Context, taskID, approverID, actorID string, expectedVersion int64) (*models.Task, error) {
	const op = "RequestApproval"

	if strings.TrimSpace(approverID) == "" {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "approver is required")
	}

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		if task.Status.IsTerminal() {
			return reject(op, task.ID, task.Version, ErrInvalidTransition,
				"task %s is %s", task.ID, task.Status)
		}

		task.Approvals = append(task.Approvals, &models.Approval{
			ID:          uuid.New().String(),
			ApproverID:  approverID,
			Status:      models.ApprovalStatusPending,
			RequestedBy: actorID,
			RequestedAt: c.now,
		})
		c.touch(task)
		c.trigger(models.TriggerApprovalNeeded, task)

		return nil
	})
}

// DecideApproval approves or rejects a pending approval.
func (s *TaskGraph) DecideApproval(
	ctx context.Context,
	taskID, approvalID string,
	decision models.ApprovalStatus,
	comment, actorID string,
	expectedVersion int64,
) (*models.Task, error) {
	const op = "DecideApproval"

	if decision != models.ApprovalStatusApproved && decision != models.ApprovalStatusRejected {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "decision must be approved or rejected")
	}

	return s.mutateTask(ctx, op, taskID, actorID, func(c *change, task *models.Task) error {
		err := c.checkVersion(task, expectedVersion)
		if err != nil {
			return err
		}

		approval := task.Approval(approvalID)
		if approval == nil {
			return reject(op, task.ID, task.Version, ErrInvalidRequest, "approval %s not found", approvalID)
		}

		if approval.Status != models.ApprovalStatusPending {
			return reject(op, task.ID, task.Version, ErrInvalidTransition,
				"approval %s is already %s", approvalID, approval.Status)
		}

		approval.Status = decision
		approval.Comment = comment
		decidedAt := c.now
		approval.DecidedAt = &decidedAt
		c.touch(task)

		return nil
	})
}

// NotifyClientResponse fires client_response rules for a task. Nothing is written.
func (s *TaskGraph) NotifyClientResponse(ctx context.Context, taskID string, data map[string]any) (int, error) {
	task, err := s.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return 0, err
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, task.WorkflowID)
	if err != nil {
		return 0, err
	}

	return s.automation.Fire(ctx, workflow.AutomationRules, automation.Subject{
		Trigger:  models.TriggerClientResponse,
		Workflow: workflow,
		Task:     task,
		Data:     data,
	}), nil
}

// ScanOverdue fires task_overdue rules for every open task whose due date has passed.
// A task fires once per due date; moving the due date arms it again. Overdue state
// itself is never stored. Tasks that are no longer overdue, including completed and
// deleted ones, are forgotten after a scan that read every workflow.
func (s *TaskGraph) ScanOverdue(ctx context.Context, now time.Time) (int, error) {
	workflows, err := s.persistence.WorkflowRepository().ListWorkflows(ctx, persistence.ListWorkflowsOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to list workflows: %w", err)
	}

	overdue := 0
	current := make(map[string]bool)
	complete := true

	for _, workflow := range workflows {
		if workflow.Status == models.WorkflowStatusArchived {
			continue
		}

		tasks, err := s.persistence.TaskRepository().ListByWorkflow(ctx, workflow.ID)
		if err != nil {
			if ctx.Err() != nil {
				return overdue, ctx.Err()
			}

			s.logger.ErrorContext(ctx, "failed to list tasks for overdue scan", "workflow_id", workflow.ID, "error", err)

			complete = false

			continue
		}

		for _, task := range tasks {
			if !task.IsOverdue(now) {
				continue
			}

			current[task.ID] = true

			if !s.markOverdue(task) {
				continue
			}

			overdue++

			s.automation.Fire(ctx, workflow.AutomationRules, automation.Subject{
				Trigger:  models.TriggerTaskOverdue,
				Workflow: workflow,
				Task:     task,
			})
		}
	}

	if complete {
		s.forgetOverdue(current)
	}

	return overdue, nil
}

// markOverdue records that task fired for its current due date.
func (s *TaskGraph) markOverdue(task *models.Task) bool {
	s.overdueMu.Lock()
	defer s.overdueMu.Unlock()

	if due, ok := s.overdueFor[task.ID]; ok && due.Equal(*task.DueDate) {
		return false
	}

	s.overdueFor[task.ID] = *task.DueDate

	return true
}

// forgetOverdue drops the marks of tasks that are not overdue anymore.
func (s *TaskGraph) forgetOverdue(current map[string]bool) {
	s.overdueMu.Lock()
	defer s.overdueMu.Unlock()

	for id := range s.overdueFor {
		if !current[id] {
			delete(s.overdueFor, id)
		}
	}
}
