package web

import (
	"time"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/services"
)

// ActorHeader carries the authenticated user resolved by the session layer in front of the API.
const ActorHeader = "X-Actor-ID"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	OrganizationID  string                   `json:"organization_id"            validate:"required"`
	ClientID        string                   `json:"client_id,omitempty"`
	Name            string                   `json:"name"                       validate:"required,min=3"`
	Description     string                   `json:"description,omitempty"`
	Type            models.WorkflowType      `json:"type,omitempty"             validate:"omitempty,oneof=tax_preparation audit bookkeeping custom"`
	Assignee        string                   `json:"assignee,omitempty"`
	Priority        models.Priority          `json:"priority,omitempty"         validate:"omitempty,oneof=low normal high urgent"`
	Visibility      models.Visibility        `json:"visibility,omitempty"       validate:"omitempty,oneof=public team private"`
	StartDate       *time.Time               `json:"start_date,omitempty"`
	DueDate         *time.Time               `json:"due_date,omitempty"`
	AutomationRules []*models.AutomationRule `json:"automation_rules,omitempty" validate:"omitempty,dive"`
}

func (r CreateWorkflowRequest) command(actorID string) services.CreateWorkflowRequest {
	return services.CreateWorkflowRequest{
		OrganizationID:  r.OrganizationID,
		ClientID:        r.ClientID,
		Name:            r.Name,
		Description:     r.Description,
		Type:            r.Type,
		Assignee:        r.Assignee,
		Priority:        r.Priority,
		Visibility:      r.Visibility,
		StartDate:       r.StartDate,
		DueDate:         r.DueDate,
		AutomationRules: r.AutomationRules,
		ActorID:         actorID,
	}
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields except the expected version are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name            *string            `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description     *string            `json:"description,omitempty"`
	ClientID        *string            `json:"client_id,omitempty"`
	Assignee        *string            `json:"assignee,omitempty"`
	Priority        *models.Priority   `json:"priority,omitempty"    validate:"omitempty,oneof=low normal high urgent"`
	Visibility      *models.Visibility `json:"visibility,omitempty"  validate:"omitempty,oneof=public team private"`
	StartDate       *time.Time         `json:"start_date,omitempty"`
	DueDate         *time.Time         `json:"due_date,omitempty"`
	ExpectedVersion int64              `json:"expected_version"      validate:"required,min=1"`
}

func (r UpdateWorkflowRequest) patch() services.WorkflowPatch {
	return services.WorkflowPatch{
		Name:        r.Name,
		Description: r.Description,
		ClientID:    r.ClientID,
		Assignee:    r.Assignee,
		Priority:    r.Priority,
		Visibility:  r.Visibility,
		StartDate:   r.StartDate,
		DueDate:     r.DueDate,
	}
}

type ChangeWorkflowStatusRequest struct {
	Status          models.WorkflowStatus `json:"status"           validate:"required,oneof=draft active paused completed archived"`
	ExpectedVersion int64                 `json:"expected_version" validate:"required,min=1"`
}

type AutomationRuleRequest struct {
	Name            string             `json:"name"`
	Trigger         models.RuleTrigger `json:"trigger"          validate:"required,oneof=task_completed task_overdue approval_needed client_response"`
	Condition       map[string]any     `json:"condition,omitempty"`
	Actions         []string           `json:"actions"          validate:"required,min=1,dive,required"`
	Active          *bool              `json:"active,omitempty"`
	ExpectedVersion int64              `json:"expected_version" validate:"required,min=1"`
}

// rule builds the automation rule. Rules are active unless the request says otherwise.
func (r AutomationRuleRequest) rule() *models.AutomationRule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return &models.AutomationRule{
		Name:      r.Name,
		Trigger:   r.Trigger,
		Condition: r.Condition,
		Actions:   r.Actions,
		Active:    active,
	}
}

type SetRuleActiveRequest struct {
	Active          *bool `json:"active"           validate:"required"`
	ExpectedVersion int64 `json:"expected_version" validate:"required,min=1"`
}

// CreateTaskRequest represents the request body for adding a task to a workflow.
type CreateTaskRequest struct {
	Title          string          `json:"title"                     validate:"required"`
	Description    string          `json:"description,omitempty"`
	Type           models.TaskType `json:"type,omitempty"            validate:"omitempty,oneof=document_collection data_entry review approval client_communication filing analysis other"`
	Priority       models.Priority `json:"priority,omitempty"        validate:"omitempty,oneof=low normal high urgent"`
	Assignee       string          `json:"assignee,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty"    validate:"omitempty,dive,required"`
	Tags           []string        `json:"tags,omitempty"`
	Position       *int            `json:"position,omitempty"        validate:"omitempty,min=0"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty" validate:"omitempty,gt=0"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Checklist      []string        `json:"checklist,omitempty"       validate:"omitempty,dive,required"`
	SubTasks       []string        `json:"sub_tasks,omitempty"       validate:"omitempty,dive,required"`
}

func (r CreateTaskRequest) command(actorID string) services.CreateTaskRequest {
	return services.CreateTaskRequest{
		Title:          r.Title,
		Description:    r.Description,
		Type:           r.Type,
		Priority:       r.Priority,
		Assignee:       r.Assignee,
		Dependencies:   r.Dependencies,
		Tags:           r.Tags,
		Position:       r.Position,
		EstimatedHours: r.EstimatedHours,
		DueDate:        r.DueDate,
		Checklist:      r.Checklist,
		SubTasks:       r.SubTasks,
		ActorID:        actorID,
	}
}

type TransitionRequest struct {
	Status          models.TaskStatus `json:"status"           validate:"required,oneof=pending in_progress review completed blocked cancelled"`
	Reason          string            `json:"reason,omitempty"`
	ExpectedVersion int64             `json:"expected_version" validate:"required,min=1"`
}

type AssignRequest struct {
	Assignee        string `json:"assignee"         validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

type ChecklistItemRequest struct {
	Text            string `json:"text"             validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

type SubTaskRequest struct {
	Title           string `json:"title"            validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

// CompletionRequest ticks or unticks a checklist item or a subtask.
type CompletionRequest struct {
	Completed       *bool `json:"completed"        validate:"required"`
	ExpectedVersion int64 `json:"expected_version" validate:"required,min=1"`
}

type DependencyRequest struct {
	DependsOn       string `json:"depends_on"       validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

type AttachmentRequest struct {
	Name            string `json:"name"                   validate:"required"`
	Reference       string `json:"reference"              validate:"required"`
	ContentType     string `json:"content_type,omitempty"`
	ExpectedVersion int64  `json:"expected_version"       validate:"required,min=1"`
}

type ApprovalRequest struct {
	ApproverID      string `json:"approver_id"      validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

type DecisionRequest struct {
	Decision        models.ApprovalStatus `json:"decision"          validate:"required,oneof=approved rejected"`
	Comment         string                `json:"comment,omitempty"`
	ExpectedVersion int64                 `json:"expected_version"  validate:"required,min=1"`
}

type ClientResponseRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

type CommentRequest struct {
	Content string `json:"content" validate:"required"`
}
