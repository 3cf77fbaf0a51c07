// Package postgresql provides PostgreSQL persistence implementation for workflows, tasks and comments.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/advisoros/taskcore/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	taskRepo     *TaskRepository
	commentRepo  *CommentRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize components
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		taskRepo:     NewTaskRepository(database, logger),
		commentRepo:  NewCommentRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) CommentRepository() persistence.CommentRepository {
	return p.commentRepo
}

// Commit applies the changeset in one transaction. Version checks are the WHERE clauses
// of the writes, so a concurrent writer makes the statement affect no rows.
func (p *Persistence) Commit(ctx context.Context, changes *persistence.Changeset) error {
	if changes == nil || changes.IsEmpty() {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil {
				p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if changes.Workflow != nil {
		err = p.workflowRepo.write(ctx, tx, changes.Workflow)
		if err != nil {
			return err
		}
	}

	if changes.PurgeWorkflowTasks != "" {
		err = purgeWorkflow(ctx, tx, changes.PurgeWorkflowTasks)
		if err != nil {
			return err
		}
	}

	for _, write := range changes.Tasks {
		unchecked := changes.PurgeWorkflowTasks != "" && changes.PurgeWorkflowTasks == write.Task.WorkflowID

		err = p.taskRepo.write(ctx, tx, write, unchecked)
		if err != nil {
			return err
		}
	}

	for _, comment := range changes.Comments {
		err = p.commentRepo.upsert(ctx, tx, comment)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func purgeWorkflow(ctx context.Context, tx *sql.Tx, workflowID string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete comments of workflow %s: %w", workflowID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM tasks WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete tasks of workflow %s: %w", workflowID, err)
	}

	return nil
}

// storedVersion reads the current version of a row inside the transaction, 0 when absent.
func storedVersion(ctx context.Context, tx *sql.Tx, table, id string) (int64, error) {
	var version int64

	err := tx.QueryRowContext(ctx, "SELECT version FROM "+table+" WHERE id = $1", id).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read %s version: %w", table, err)
	}

	return version, nil
}

// checkAffected turns a write that matched no row into a version conflict.
func checkAffected(ctx context.Context, tx *sql.Tx, result sql.Result, table, entity, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 1 {
		return nil
	}

	stored, err := storedVersion(ctx, tx, table, id)
	if err != nil {
		return err
	}

	return persistence.Conflict(entity, id, stored)
}
