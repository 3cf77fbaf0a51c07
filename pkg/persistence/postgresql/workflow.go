package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, "SELECT data FROM workflows WHERE id = $1", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFound("GetByID", "workflow", id)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// ListWorkflows returns the workflows passing the filter, newest first.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	var (
		conditions []string
		args       []any
	)

	if opts.OrganizationID != "" {
		args = append(args, opts.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if opts.Assignee != "" {
		args = append(args, opts.Assignee)
		conditions = append(conditions, fmt.Sprintf("assignee = $%d", len(args)))
	}

	query := "SELECT data FROM workflows"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func(ctx context.Context, r *WorkflowRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		var data []byte

		err = rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		var workflow models.Workflow

		err = json.Unmarshal(data, &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) write(ctx context.Context, tx *sql.Tx, write *persistence.WorkflowWrite) error {
	workflow := write.Workflow

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	var result sql.Result

	if write.ExpectedVersion == 0 {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO workflows (id, organization_id, status, assignee, version, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, workflow.ID, workflow.OrganizationID, string(workflow.Status), workflow.Assignee,
			workflow.Version, string(data), workflow.CreatedAt, workflow.UpdatedAt)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE workflows
			SET status = $2, assignee = $3, version = $4, data = $5, updated_at = $6
			WHERE id = $1 AND version = $7
		`, workflow.ID, string(workflow.Status), workflow.Assignee,
			workflow.Version, string(data), workflow.UpdatedAt, write.ExpectedVersion)
	}

	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return checkAffected(ctx, tx, result, "workflows", "workflow", workflow.ID)
}
