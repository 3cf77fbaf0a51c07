package models

import (
	"slices"
	"time"
)

// TaskStatus represents the state of a task in the workflow state machine.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskType is the category of work a task represents.
type TaskType string

const (
	TaskTypeDocumentCollection  TaskType = "document_collection"
	TaskTypeDataEntry           TaskType = "data_entry"
	TaskTypeReview              TaskType = "review"
	TaskTypeApproval            TaskType = "approval"
	TaskTypeClientCommunication TaskType = "client_communication"
	TaskTypeFiling              TaskType = "filing"
	TaskTypeAnalysis            TaskType = "analysis"
	TaskTypeOther               TaskType = "other"
)

// BlockReason distinguishes a manual block from one caused by a dependency regression.
type BlockReason string

const (
	BlockReasonManual     BlockReason = "manual"
	BlockReasonDependency BlockReason = "dependency"
)

// taskTransitions is the allowed status table. completed -> in_progress is the audited re-open.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusReview, TaskStatusBlocked, TaskStatusCancelled},
	TaskStatusReview:     {TaskStatusCompleted, TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusBlocked:    {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusCompleted:  {TaskStatusInProgress},
	TaskStatusCancelled:  {},
}

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	_, ok := taskTransitions[s]

	return ok
}

// IsTerminal reports whether the status is completed or cancelled.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// CanTransitionTo reports whether the state table allows s -> to.
func (s TaskStatus) CanTransitionTo(to TaskStatus) bool {
	return slices.Contains(taskTransitions[s], to)
}

// RequiresDependencies reports whether entering s needs every dependency completed.
func (s TaskStatus) RequiresDependencies() bool {
	return s == TaskStatusInProgress || s == TaskStatusCompleted
}

// IsValid reports whether t is a known task type.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeDocumentCollection, TaskTypeDataEntry, TaskTypeReview, TaskTypeApproval,
		TaskTypeClientCommunication, TaskTypeFiling, TaskTypeAnalysis, TaskTypeOther:
		return true
	}

	return false
}

// Task is a unit of work owned by exactly one workflow.
type Task struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	OrganizationID string           `json:"organization_id"`
	Title          string           `json:"title"                     validate:"required"`
	Description    string           `json:"description"`
	Type           TaskType         `json:"type"`
	Status         TaskStatus       `json:"status"`
	BlockReason    BlockReason      `json:"block_reason,omitempty"`
	Priority       Priority         `json:"priority"`
	Assignee       string           `json:"assignee,omitempty"`
	Dependencies   []string         `json:"dependencies"`
	SubTasks       []*SubTask       `json:"subtasks"`
	Checklist      []*ChecklistItem `json:"checklist"`
	Attachments    []*Attachment    `json:"attachments"`
	Approvals      []*Approval      `json:"approvals"`
	Tags           []string         `json:"tags"`
	Position       int              `json:"position"`
	EstimatedHours *float64         `json:"estimated_hours,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CommentCount   int              `json:"comment_count"`
	History        []*StatusChange  `json:"history"`
	Version        int64            `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// StatusChange is one audited entry of a task's status history.
type StatusChange struct {
	From      TaskStatus `json:"from"`
	To        TaskStatus `json:"to"`
	ActorID   string     `json:"actor_id"`
	Reason    string     `json:"reason,omitempty"`
	Automatic bool       `json:"automatic"`
	Reopen    bool       `json:"reopen,omitempty"`
	At        time.Time  `json:"at"`
}

// SubTask is owned by one task and has no lifecycle of its own.
type SubTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ChecklistItem is owned by one task and has no lifecycle of its own.
type ChecklistItem struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Attachment references a file kept by an external storage service.
type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Reference   string    `json:"reference"`
	ContentType string    `json:"content_type,omitempty"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// DependsOn reports whether the task has a dependency edge to id.
func (t *Task) DependsOn(id string) bool {
	return slices.Contains(t.Dependencies, id)
}

// IsOverdue evaluates the due date lazily against now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && !t.Status.IsTerminal() && now.After(*t.DueDate)
}

// HasOpenApprovals reports whether any approval is pending or rejected.
func (t *Task) HasOpenApprovals() bool {
	for _, approval := range t.Approvals {
		if approval.Status != ApprovalStatusApproved {
			return true
		}
	}

	return false
}

// ChecklistItem returns the checklist item with the given ID, or nil.
func (t *Task) ChecklistItem(id string) *ChecklistItem {
	for _, item := range t.Checklist {
		if item.ID == id {
			return item
		}
	}

	return nil
}

// SubTask returns the subtask with the given ID, or nil.
func (t *Task) SubTask(id string) *SubTask {
	for _, sub := range t.SubTasks {
		if sub.ID == id {
			return sub
		}
	}

	return nil
}

// Approval returns the approval with the given ID, or nil.
func (t *Task) Approval(id string) *Approval {
	for _, approval := range t.Approvals {
		if approval.ID == id {
			return approval
		}
	}

	return nil
}

// SetStatus moves the task to "to", stamping timestamps and appending a history entry.
// It does not validate the transition.
func (t *Task) SetStatus(to TaskStatus, change StatusChange) {
	from := t.Status
	at := change.At

	change.From = from
	change.To = to
	change.Reopen = from == TaskStatusCompleted && to == TaskStatusInProgress

	t.Status = to
	t.History = append(t.History, &change)

	switch to {
	case TaskStatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &at
		}

		t.BlockReason = ""
	case TaskStatusCompleted:
		t.CompletedAt = &at
		t.BlockReason = ""
	case TaskStatusBlocked:
		if t.BlockReason == "" {
			t.BlockReason = BlockReasonManual
		}
	default:
		t.BlockReason = ""
	}

	if from == TaskStatusCompleted && to != TaskStatusCompleted {
		t.CompletedAt = nil
	}
}
