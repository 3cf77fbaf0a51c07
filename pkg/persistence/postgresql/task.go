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

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, "SELECT data FROM tasks WHERE id = $1", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFound("GetByID", "task", id)
		}

		return nil, fmt.Errorf("failed to fetch task %s: %w", id, err)
	}

	var task models.Task

	err = json.Unmarshal(data, &task)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}

	return &task, nil
}

// ListByWorkflow returns the tasks of a workflow ordered by position.
func (r *TaskRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT data FROM tasks WHERE workflow_id = $1 ORDER BY position ASC, id ASC", workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer func(ctx context.Context, r *TaskRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		var data []byte

		err = rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		var task models.Task

		err = json.Unmarshal(data, &task)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}

		tasks = append(tasks, &task)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// write stores the task. unchecked skips the version check for tasks of a purged workflow.
func (r *TaskRepository) write(ctx context.Context, tx *sql.Tx, write persistence.TaskWrite, unchecked bool) error {
	task := write.Task

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	var result sql.Result

	switch {
	case unchecked:
		result, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, workflow_id, status, position, version, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status, position = EXCLUDED.position, version = EXCLUDED.version,
				data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		`, task.ID, task.WorkflowID, string(task.Status), task.Position, task.Version, string(data), task.UpdatedAt)
	case write.ExpectedVersion == 0:
		result, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, workflow_id, status, position, version, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, task.ID, task.WorkflowID, string(task.Status), task.Position, task.Version, string(data), task.UpdatedAt)
	default:
		result, err = tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = $2, position = $3, version = $4, data = $5, updated_at = $6
			WHERE id = $1 AND version = $7
		`, task.ID, string(task.Status), task.Position, task.Version, string(data), task.UpdatedAt, write.ExpectedVersion)
	}

	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}

	return checkAffected(ctx, tx, result, "tasks", "task", task.ID)
}
