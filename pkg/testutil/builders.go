// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/google/uuid"
)

// NewWorkflow creates an active test Workflow at version 1 with default values that can be overridden.
func NewWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC().Truncate(time.Millisecond)

	workflow := &models.Workflow{
		ID:              uuid.NewString(),
		OrganizationID:  "org-1",
		Name:            "2025 Tax Return",
		Type:            models.WorkflowTypeTaxPreparation,
		Status:          models.WorkflowStatusActive,
		Priority:        models.PriorityNormal,
		Visibility:      models.VisibilityTeam,
		AutomationRules: []*models.AutomationRule{},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// NewTask creates a pending test Task of workflow at version 1.
func NewTask(workflow *models.Workflow, overrides ...func(*models.Task)) *models.Task {
	now := time.Now().UTC().Truncate(time.Millisecond)

	task := &models.Task{
		ID:             uuid.NewString(),
		WorkflowID:     workflow.ID,
		OrganizationID: workflow.OrganizationID,
		Title:          "Collect statements",
		Type:           models.TaskTypeDocumentCollection,
		Status:         models.TaskStatusPending,
		Priority:       models.PriorityNormal,
		Dependencies:   []string{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

func WorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

func WorkflowStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

func Organization(organizationID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.OrganizationID = organizationID
	}
}

// CreatedAt sets both timestamps of the workflow.
func CreatedAt(at time.Time) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.CreatedAt = at
		w.UpdatedAt = at
	}
}

func TaskID(id string) func(*models.Task) {
	return func(t *models.Task) {
		t.ID = id
	}
}

func Title(title string) func(*models.Task) {
	return func(t *models.Task) {
		t.Title = title
	}
}

func Position(position int) func(*models.Task) {
	return func(t *models.Task) {
		t.Position = position
	}
}

func Status(status models.TaskStatus) func(*models.Task) {
	return func(t *models.Task) {
		t.Status = status
	}
}

func DependsOn(ids ...string) func(*models.Task) {
	return func(t *models.Task) {
		t.Dependencies = ids
	}
}

func Assignee(assignee string) func(*models.Task) {
	return func(t *models.Task) {
		t.Assignee = assignee
	}
}

func EstimatedHours(hours float64) func(*models.Task) {
	return func(t *models.Task) {
		t.EstimatedHours = &hours
	}
}

func DueDate(due time.Time) func(*models.Task) {
	return func(t *models.Task) {
		t.DueDate = &due
	}
}
