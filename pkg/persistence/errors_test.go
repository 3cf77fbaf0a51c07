package persistence_test

import (
	"errors"
	"testing"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("not found errors map to their entity", func(t *testing.T) {
		assert.True(t, persistence.IsWorkflowNotFound(persistence.NotFound("GetByID", "workflow", "wf-1")))
		assert.True(t, persistence.IsTaskNotFound(persistence.NotFound("GetByID", "task", "t-1")))
		assert.True(t, persistence.IsCommentNotFound(persistence.NotFound("GetByID", "comment", "c-1")))
		assert.False(t, persistence.IsTaskNotFound(persistence.NotFound("GetByID", "workflow", "wf-1")))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NotFound("GetByID", "task", "task-123")

		assert.Contains(t, err.Error(), "GetByID")
		assert.Contains(t, err.Error(), "task-123")
		assert.Contains(t, err.Error(), "task not found")
	})

	t.Run("conflict carries the stored version", func(t *testing.T) {
		err := persistence.Conflict("task", "task-123", 7)

		assert.True(t, persistence.IsVersionConflict(err))
		assert.True(t, errors.Is(err, persistence.ErrVersionConflict))
		assert.Contains(t, err.Error(), "stored version 7")

		var entityErr *persistence.EntityError
		assert.True(t, errors.As(err, &entityErr))
		assert.Equal(t, int64(7), entityErr.Stored)
	})
}

func TestListWorkflowsOptions_Matches(t *testing.T) {
	t.Parallel()

	active := models.WorkflowStatusActive
	workflow := &models.Workflow{OrganizationID: "org-1", Status: models.WorkflowStatusActive, Assignee: "alice"}

	assert.True(t, persistence.ListWorkflowsOptions{}.Matches(workflow))
	assert.True(t, persistence.ListWorkflowsOptions{OrganizationID: "org-1", Status: &active, Assignee: "alice"}.Matches(workflow))
	assert.False(t, persistence.ListWorkflowsOptions{OrganizationID: "org-2"}.Matches(workflow))
	assert.False(t, persistence.ListWorkflowsOptions{Assignee: "bob"}.Matches(workflow))
}
