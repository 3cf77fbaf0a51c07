// Package persistence provides the storage contract for workflows, tasks and comments.
//
// The contract is a durable key-value store by entity ID with an atomic, version
// checked commit of several records at once.
package persistence

import (
	"context"

	"github.com/advisoros/taskcore/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TaskRepository() TaskRepository
	CommentRepository() CommentRepository

	// Commit applies every write of the changeset or none of them. Each write carries the
	// version the caller read; a mismatch fails the whole commit with ErrVersionConflict.
	Commit(ctx context.Context, changes *Changeset) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository reads workflow records.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)
}

// TaskRepository reads task records.
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error)
}

// CommentRepository reads comment records.
type CommentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByTask(ctx context.Context, taskID string) ([]*models.Comment, error)
}

// ListWorkflowsOptions filters workflow listings. Empty fields do not filter.
type ListWorkflowsOptions struct {
	OrganizationID string
	Status         *models.WorkflowStatus
	Assignee       string
}

// Matches reports whether workflow passes the filter.
func (o ListWorkflowsOptions) Matches(workflow *models.Workflow) bool {
	if o.OrganizationID != "" && workflow.OrganizationID != o.OrganizationID {
		return false
	}

	if o.Status != nil && workflow.Status != *o.Status {
		return false
	}

	if o.Assignee != "" && workflow.Assignee != o.Assignee {
		return false
	}

	return true
}

// WorkflowWrite stores Workflow if the stored version equals ExpectedVersion.
// ExpectedVersion 0 means the record must not exist yet.
type WorkflowWrite struct {
	Workflow        *models.Workflow
	ExpectedVersion int64
}

// TaskWrite stores Task if the stored version equals ExpectedVersion.
type TaskWrite struct {
	Task            *models.Task
	ExpectedVersion int64
}

// Changeset is the unit of atomicity of a command.
type Changeset struct {
	Workflow *WorkflowWrite
	Tasks    []TaskWrite
	// Comments are upserted; only the resolved flag of an existing comment may change.
	Comments []*models.Comment
	// PurgeWorkflowTasks deletes every task and comment of the workflow before the writes apply.
	PurgeWorkflowTasks string
}

// IsEmpty reports whether the changeset writes nothing.
func (c *Changeset) IsEmpty() bool {
	return c.Workflow == nil && len(c.Tasks) == 0 && len(c.Comments) == 0 && c.PurgeWorkflowTasks == ""
}
