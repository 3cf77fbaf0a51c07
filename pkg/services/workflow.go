package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/graph"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/otelhelper"
	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/advisoros/taskcore/pkg/progress"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Registry owns workflow-level fields and indexes tasks by workflow. Task invariants are
// left to the TaskGraph.
type Registry struct {
	*Runtime
}

// NewRegistry creates a new workflow registry.
func NewRegistry(runtime *Runtime) *Registry {
	return &Registry{Runtime: runtime}
}

// CreateWorkflowRequest holds the fields of a new workflow.
type CreateWorkflowRequest struct {
	OrganizationID  string
	ClientID        string
	Name            string
	Description     string
	Type            models.WorkflowType
	Assignee        string
	Priority        models.Priority
	Visibility      models.Visibility
	StartDate       *time.Time
	DueDate         *time.Time
	AutomationRules []*models.AutomationRule
	ActorID         string
}

// CreateWorkflow stores a new draft workflow at version 1.
func (r *Registry) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	const op = "CreateWorkflow"

	err := validateCreateWorkflow(&req)
	if err != nil {
		return nil, err
	}

	for _, rule := range req.AutomationRules {
		err = prepareRule(op, rule)
		if err != nil {
			return nil, err
		}
	}

	workflow := &models.Workflow{
		ID:              uuid.New().String(),
		OrganizationID:  req.OrganizationID,
		ClientID:        req.ClientID,
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Type:            req.Type,
		Status:          models.WorkflowStatusDraft,
		Assignee:        req.Assignee,
		Priority:        req.Priority,
		Visibility:      req.Visibility,
		AutomationRules: req.AutomationRules,
		StartDate:       req.StartDate,
		DueDate:         req.DueDate,
	}

	if workflow.AutomationRules == nil {
		workflow.AutomationRules = make([]*models.AutomationRule, 0)
	}

	err = r.execute(ctx, op, workflow.ID, func(ctx context.Context) error {
		c := newChange(op, req.ActorID, r.clock(), nil, nil)
		c.workflow = workflow
		workflow.CreatedAt = c.now
		c.touchWorkflow()

		return r.commit(ctx, c)
	}, attribute.String(otelhelper.OrganizationIDKey, req.OrganizationID))
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func validateCreateWorkflow(req *CreateWorkflowRequest) error {
	const op = "CreateWorkflow"

	if strings.TrimSpace(req.OrganizationID) == "" {
		return reject(op, "", 0, ErrInvalidRequest, "organization ID is required")
	}

	if len(strings.TrimSpace(req.Name)) < 3 {
		return reject(op, "", 0, ErrInvalidRequest, "workflow name must have at least 3 characters")
	}

	switch req.Type {
	case models.WorkflowTypeTaxPreparation, models.WorkflowTypeAudit, models.WorkflowTypeBookkeeping, models.WorkflowTypeCustom:
	case "":
		req.Type = models.WorkflowTypeCustom
	default:
		return reject(op, "", 0, ErrInvalidRequest, "invalid workflow type '%s'", req.Type)
	}

	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	if !req.Priority.IsValid() {
		return reject(op, "", 0, ErrInvalidRequest, "invalid priority '%s'", req.Priority)
	}

	switch req.Visibility {
	case models.VisibilityPublic, models.VisibilityTeam, models.VisibilityPrivate:
	case "":
		req.Visibility = models.VisibilityTeam
	default:
		return reject(op, "", 0, ErrInvalidRequest, "invalid visibility '%s'", req.Visibility)
	}

	return nil
}

// prepareRule validates a rule and assigns its ID.
func prepareRule(op string, rule *models.AutomationRule) error {
	if rule == nil {
		return reject(op, "", 0, ErrInvalidRequest, "automation rule cannot be nil")
	}

	if !rule.Trigger.IsValid() {
		return reject(op, "", 0, ErrInvalidRequest, "invalid trigger '%s'", rule.Trigger)
	}

	if len(rule.Actions) == 0 {
		return reject(op, "", 0, ErrInvalidRequest, "automation rule needs at least one action")
	}

	err := automation.ValidateCondition(rule.Condition)
	if err != nil {
		return reject(op, "", 0, ErrInvalidRequest, "%v", err)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	return nil
}

// GetWorkflow retrieves a workflow by its ID.
func (r *Registry) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return r.persistence.WorkflowRepository().GetByID(ctx, id)
}

// ListWorkflowsRequest filters workflows. Empty fields do not filter.
type ListWorkflowsRequest struct {
	OrganizationID string
	Status         *models.WorkflowStatus
	Assignee       string
}

// ListWorkflows retrieves workflows newest first.
func (r *Registry) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, reject("ListWorkflows", "", 0, ErrInvalidRequest, "invalid workflow status '%s'", *req.Status)
	}

	workflows, err := r.persistence.WorkflowRepository().ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		Status:         req.Status,
		Assignee:       strings.TrimSpace(req.Assignee),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// WorkflowPatch changes workflow fields. Nil fields are left untouched; progress and
// status are not patchable.
type WorkflowPatch struct {
	Name        *string
	Description *string
	ClientID    *string
	Assignee    *string
	Priority    *models.Priority
	Visibility  *models.Visibility
	StartDate   *time.Time
	DueDate     *time.Time
}

// mutateWorkflow runs fn against a fresh copy of the workflow and its tasks inside the
// workflow's command goroutine and commits whatever fn changed.
func (r *Registry) mutateWorkflow(ctx context.Context, op, workflowID, actorID string, fn func(c *change) error) (*models.Workflow, error) {
	var result *models.Workflow

	err := r.execute(ctx, op, workflowID, func(ctx context.Context) error {
		c, err := r.load(ctx, op, workflowID, actorID)
		if err != nil {
			return err
		}

		err = fn(c)
		if err != nil {
			return err
		}

		err = r.commit(ctx, c)
		if err != nil {
			return err
		}

		result = c.workflow

		return nil
	}, attribute.String(otelhelper.ActorIDKey, actorID))

	return result, err
}

func (c *change) checkNotArchived() error {
	if c.workflow.Status == models.WorkflowStatusArchived {
		return reject(c.op, c.workflow.ID, c.workflow.Version, ErrWorkflowClosed, "workflow %s is archived", c.workflow.ID)
	}

	return nil
}

// UpdateWorkflow applies a patch if the caller read expectedVersion.
func (r *Registry) UpdateWorkflow(ctx context.Context, id string, patch WorkflowPatch, actorID string, expectedVersion int64) (*models.Workflow, error) {
	const op = "UpdateWorkflow"

	if patch.Name != nil && len(strings.TrimSpace(*patch.Name)) < 3 {
		return nil, reject(op, id, 0, ErrInvalidRequest, "workflow name must have at least 3 characters")
	}

	if patch.Priority != nil && !patch.Priority.IsValid() {
		return nil, reject(op, id, 0, ErrInvalidRequest, "invalid priority '%s'", *patch.Priority)
	}

	return r.mutateWorkflow(ctx, op, id, actorID, func(c *change) error {
		err := c.checkWorkflowVersion(expectedVersion)
		if err != nil {
			return err
		}

		err = c.checkNotArchived()
		if err != nil {
			return err
		}

		applyPatch(c.workflow, patch)
		c.touchWorkflow()

		return nil
	})
}

func applyPatch(workflow *models.Workflow, patch WorkflowPatch) {
	if patch.Name != nil {
		workflow.Name = strings.TrimSpace(*patch.Name)
	}

	if patch.Description != nil {
		workflow.Description = *patch.Description
	}

	if patch.ClientID != nil {
		workflow.ClientID = *patch.ClientID
	}

	if patch.Assignee != nil {
		workflow.Assignee = *patch.Assignee
	}

	if patch.Priority != nil {
		workflow.Priority = *patch.Priority
	}

	if patch.Visibility != nil {
		workflow.Visibility = *patch.Visibility
	}

	if patch.StartDate != nil {
		workflow.StartDate = patch.StartDate
	}

	if patch.DueDate != nil {
		workflow.DueDate = patch.DueDate
	}
}

// ChangeStatus moves a workflow through its lifecycle. Completing requires every task to
// be terminal; this is checked here and not continuously.
func (r *Registry) ChangeStatus(ctx context.Context, id string, target models.WorkflowStatus, actorID string, expectedVersion int64) (*models.Workflow, error) {
	const op = "ChangeWorkflowStatus"

	if !target.IsValid() {
		return nil, reject(op, id, 0, ErrInvalidRequest, "invalid workflow status '%s'", target)
	}

	return r.mutateWorkflow(ctx, op, id, actorID, func(c *change) error {
		err := c.checkWorkflowVersion(expectedVersion)
		if err != nil {
			return err
		}

		workflow := c.workflow
		if !workflow.Status.CanTransitionTo(target) {
			return reject(op, id, workflow.Version, ErrInvalidTransition,
				"cannot move workflow %s from %s to %s", id, workflow.Status, target)
		}

		if target == models.WorkflowStatusCompleted {
			open := 0

			for _, task := range c.tasks {
				if !task.Status.IsTerminal() {
					open++
				}
			}

			if open > 0 {
				return reject(op, id, workflow.Version, ErrOpenTasks, "workflow %s has %d open tasks", id, open)
			}

			completedAt := c.now
			workflow.CompletedAt = &completedAt
		}

		if target == models.WorkflowStatusActive {
			workflow.CompletedAt = nil
		}

		if target == models.WorkflowStatusActive && workflow.StartDate == nil {
			startedAt := c.now
			workflow.StartDate = &startedAt
		}

		workflow.Status = target
		c.touchWorkflow()

		return nil
	})
}

// CancelWorkflow deletes every task and comment of the workflow and archives it.
func (r *Registry) CancelWorkflow(ctx context.Context, id, actorID string) (*models.Workflow, error) {
	const op = "CancelWorkflow"

	return r.mutateWorkflow(ctx, op, id, actorID, func(c *change) error {
		err := c.checkNotArchived()
		if err != nil {
			return err
		}

		c.purge = true
		c.tasks = nil
		c.workflow.Status = models.WorkflowStatusArchived
		c.touchWorkflow()

		return nil
	})
}

// AddAutomationRule appends a rule to the workflow's ordered rule set.
func (r *Registry) AddAutomationRule(ctx context.Context, id string, rule *models.AutomationRule, actorID string, expectedVersion int64) (*models.Workflow, error) {
	const op = "AddAutomationRule"

	err := prepareRule(op, rule)
	if err != nil {
		return nil, err
	}

	return r.mutateWorkflow(ctx, op, id, actorID, func(c *change) error {
		err := c.checkWorkflowVersion(expectedVersion)
		if err != nil {
			return err
		}

		err = c.checkNotArchived()
		if err != nil {
			return err
		}

		c.workflow.AutomationRules = append(c.workflow.AutomationRules, rule)
		c.touchWorkflow()

		return nil
	})
}

// SetAutomationRuleActive switches a rule on or off.
func (r *Registry) SetAutomationRuleActive(ctx context.Context, id, ruleID string, active bool, actorID string, expectedVersion int64) (*models.Workflow, error) {
	const op = "SetAutomationRuleActive"

	return r.mutateWorkflow(ctx, op, id, actorID, func(c *change) error {
		err := c.checkWorkflowVersion(expectedVersion)
		if err != nil {
			return err
		}

		rule := c.workflow.Rule(ruleID)
		if rule == nil {
			return reject(op, id, c.workflow.Version, ErrInvalidRequest, "automation rule %s not found", ruleID)
		}

		rule.Active = active
		c.touchWorkflow()

		return nil
	})
}

// TaskFilter narrows a task listing. Empty fields do not filter; Query matches title or
// description case-insensitively.
type TaskFilter struct {
	Status   models.TaskStatus
	Assignee string
	Priority models.Priority
	Query    string
	Order    TaskOrder
}

// TaskOrder selects how ListTasks sorts its result.
type TaskOrder string

const (
	// OrderPosition sorts by the position set at creation.
	OrderPosition TaskOrder = "position"
	// OrderDependency puts every task after the tasks it depends on, ties by position.
	OrderDependency TaskOrder = "dependency"
)

// Matches reports whether task passes the filter.
func (f TaskFilter) Matches(task *models.Task) bool {
	if f.Status != "" && task.Status != f.Status {
		return false
	}

	if f.Assignee != "" && task.Assignee != f.Assignee {
		return false
	}

	if f.Priority != "" && task.Priority != f.Priority {
		return false
	}

	if query := strings.ToLower(strings.TrimSpace(f.Query)); query != "" {
		return strings.Contains(strings.ToLower(task.Title), query) ||
			strings.Contains(strings.ToLower(task.Description), query)
	}

	return true
}

// ListTasks returns the tasks of a workflow in position order, or in dependency order
// when the filter asks for it.
func (r *Registry) ListTasks(ctx context.Context, workflowID string, filter TaskFilter) ([]*models.Task, error) {
	switch filter.Order {
	case "", OrderPosition, OrderDependency:
	default:
		return nil, fmt.Errorf("%w: unknown task order %q", ErrInvalidRequest, filter.Order)
	}

	_, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	tasks, err := r.persistence.TaskRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	if filter.Order == OrderDependency {
		tasks, err = dependencyOrder(tasks)
		if err != nil {
			return nil, err
		}
	}

	matched := make([]*models.Task, 0, len(tasks))

	for _, task := range tasks {
		if filter.Matches(task) {
			matched = append(matched, task)
		}
	}

	return matched, nil
}

func dependencyOrder(tasks []*models.Task) ([]*models.Task, error) {
	order, err := graph.New(tasks).TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("failed to order tasks: %w", err)
	}

	byID := make(map[string]*models.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	sorted := make([]*models.Task, 0, len(order))
	for _, id := range order {
		sorted = append(sorted, byID[id])
	}

	return sorted, nil
}

// Rollup summarizes the tasks of a workflow as of now.
func (r *Registry) Rollup(ctx context.Context, workflowID string) (*progress.Rollup, error) {
	tasks, err := r.ListTasks(ctx, workflowID, TaskFilter{})
	if err != nil {
		return nil, err
	}

	return progress.Summarize(workflowID, tasks, r.clock()), nil
}

// Snapshot reads the current state of the workflows a broker filter selects.
func (r *Registry) Snapshot(ctx context.Context, filter broker.Filter) (*broker.Snapshot, error) {
	snapshot := &broker.Snapshot{
		Workflows: make([]*models.Workflow, 0),
		Tasks:     make([]*models.Task, 0),
		TakenAt:   r.clock(),
	}

	var workflows []*models.Workflow

	switch {
	case filter.WorkflowID != "":
		workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, filter.WorkflowID)
		if err != nil {
			return nil, err
		}

		workflows = []*models.Workflow{workflow}
	case filter.OrganizationID != "":
		var err error

		workflows, err = r.persistence.WorkflowRepository().ListWorkflows(ctx, persistence.ListWorkflowsOptions{
			OrganizationID: filter.OrganizationID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows: %w", err)
		}
	default:
		return nil, broker.ErrInvalidFilter
	}

	for _, workflow := range workflows {
		snapshot.Workflows = append(snapshot.Workflows, workflow)

		tasks, err := r.persistence.TaskRepository().ListByWorkflow(ctx, workflow.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}

		snapshot.Tasks = append(snapshot.Tasks, tasks...)
	}

	return snapshot, nil
}
