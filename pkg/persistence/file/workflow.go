package file

import (
	"context"
	"sort"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *Persistence
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	var workflow models.Workflow

	found, err := wr.store.read(workflowsDir, workflowID, &workflow)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NotFound("GetByID", "workflow", workflowID)
	}

	return &workflow, nil
}

// ListWorkflows returns the workflows passing the filter, newest first.
func (wr *WorkflowRepository) ListWorkflows(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	ids, err := wr.store.ids(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		var workflow models.Workflow

		found, err := wr.store.read(workflowsDir, id, &workflow)
		if err != nil {
			return nil, err
		}

		if found && opts.Matches(&workflow) {
			workflows = append(workflows, &workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}

		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// TaskRepository handles task-related file operations.
type TaskRepository struct {
	store *Persistence
}

// GetByID retrieves a task by its ID from the file system.
func (tr *TaskRepository) GetByID(_ context.Context, taskID string) (*models.Task, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	var task models.Task

	found, err := tr.store.read(tasksDir, taskID, &task)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NotFound("GetByID", "task", taskID)
	}

	return &task, nil
}

// ListByWorkflow returns the tasks of a workflow ordered by position.
func (tr *TaskRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Task, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	tasks, err := tr.store.listTasks(workflowID)
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Position == tasks[j].Position {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].Position < tasks[j].Position
	})

	return tasks, nil
}

// CommentRepository handles comment-related file operations.
type CommentRepository struct {
	store *Persistence
}

// GetByID retrieves a comment by its ID from the file system.
func (cr *CommentRepository) GetByID(_ context.Context, commentID string) (*models.Comment, error) {
	cr.store.mu.RLock()
	defer cr.store.mu.RUnlock()

	var comment models.Comment

	found, err := cr.store.read(commentsDir, commentID, &comment)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NotFound("GetByID", "comment", commentID)
	}

	return &comment, nil
}

// ListByTask returns the comments of a task, oldest first.
func (cr *CommentRepository) ListByTask(_ context.Context, taskID string) ([]*models.Comment, error) {
	cr.store.mu.RLock()
	defer cr.store.mu.RUnlock()

	comments, err := cr.store.listComments(func(c *models.Comment) bool { return c.TaskID == taskID })
	if err != nil {
		return nil, err
	}

	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}

		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})

	return comments, nil
}
