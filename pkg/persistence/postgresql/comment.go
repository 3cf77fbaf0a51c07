package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence"
)

// CommentRepository handles comment-related database operations.
type CommentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCommentRepository creates a new comment repository.
func NewCommentRepository(db *sql.DB, logger *slog.Logger) *CommentRepository {
	return &CommentRepository{db: db, logger: logger}
}

func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, "SELECT data FROM comments WHERE id = $1", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFound("GetByID", "comment", id)
		}

		return nil, fmt.Errorf("failed to fetch comment %s: %w", id, err)
	}

	var comment models.Comment

	err = json.Unmarshal(data, &comment)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal comment %s: %w", id, err)
	}

	return &comment, nil
}

// ListByTask returns the comments of a task, oldest first.
func (r *CommentRepository) ListByTask(ctx context.Context, taskID string) ([]*models.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT data FROM comments WHERE task_id = $1 ORDER BY created_at ASC, id ASC", taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	defer func(ctx context.Context, r *CommentRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	comments := make([]*models.Comment, 0)

	for rows.Next() {
		var data []byte

		err = rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		var comment models.Comment

		err = json.Unmarshal(data, &comment)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal comment: %w", err)
		}

		comments = append(comments, &comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

func (r *CommentRepository) upsert(ctx context.Context, tx *sql.Tx, comment *models.Comment) error {
	data, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("failed to marshal comment %s: %w", comment.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, workflow_id, resolved, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET resolved = EXCLUDED.resolved, data = EXCLUDED.data
	`, comment.ID, comment.TaskID, comment.WorkflowID, comment.Resolved, string(data), comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save comment %s: %w", comment.ID, err)
	}

	return nil
}
