package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/collab"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Collaboration is the comment log of tasks. Comment events travel on the owning task's
// version sequence, so sessions order them like any other task event.
type Collaboration struct {
	tasks *TaskGraph
}

func NewCollaboration(runtime *Runtime) *Collaboration {
	return &Collaboration{tasks: NewTaskGraph(runtime)}
}

// AddComment stores an immutable comment with its @mentions and hands the mentions to
// the notification dispatcher.
func (s *Collaboration) AddComment(ctx context.Context, taskID, authorID, content string) (*models.Comment, error) {
	const op = "AddComment"

	if strings.TrimSpace(content) == "" {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "comment content is required")
	}

	if strings.TrimSpace(authorID) == "" {
		return nil, reject(op, taskID, 0, ErrInvalidRequest, "comment author is required")
	}

	mentions := collab.ExtractMentions(content)

	var comment *models.Comment

	_, err := s.tasks.mutateTask(ctx, op, taskID, authorID, func(c *change, task *models.Task) error {
		comment = &models.Comment{
			ID:             uuid.New().String(),
			TaskID:         task.ID,
			WorkflowID:     task.WorkflowID,
			OrganizationID: task.OrganizationID,
			AuthorID:       authorID,
			Content:        content,
			Mentions:       mentions,
			CreatedAt:      c.now,
		}

		task.CommentCount++
		c.comments = append(c.comments, comment)
		c.touchAs(task, events.CommentAddedEvent, comment)

		if len(mentions) > 0 {
			c.notices = append(c.notices, notice{
				action: automation.NotifyMentionAction,
				subject: automation.Subject{
					Task: task,
					Data: map[string]any{
						"comment_id": comment.ID,
						"author_id":  authorID,
						"mentions":   mentions,
					},
				},
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return comment, nil
}

// ResolveComment marks a comment resolved. Resolving twice is a no-op.
func (s *Collaboration) ResolveComment(ctx context.Context, commentID, actorID string) (*models.Comment, error) {
	const op = "ResolveComment"

	current, err := s.tasks.persistence.CommentRepository().GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}

	var comment *models.Comment

	_, err = s.tasks.mutateTask(ctx, op, current.TaskID, actorID, func(c *change, task *models.Task) error {
		stored, getErr := s.tasks.persistence.CommentRepository().GetByID(ctx, commentID)
		if getErr != nil {
			return getErr
		}

		comment = stored

		if comment.Resolved {
			return nil
		}

		resolvedAt := c.now
		comment.Resolved = true
		comment.ResolvedBy = actorID
		comment.ResolvedAt = &resolvedAt

		c.comments = append(c.comments, comment)
		c.touchAs(task, events.CommentResolvedEvent, comment)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return comment, nil
}

// ListComments returns the comments of a task, oldest first.
func (s *Collaboration) ListComments(ctx context.Context, taskID string) ([]*models.Comment, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tasks.tracer, "ListComments", attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	_, err := s.tasks.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	comments, err := s.tasks.persistence.CommentRepository().ListByTask(ctx, taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return comments, nil
}
