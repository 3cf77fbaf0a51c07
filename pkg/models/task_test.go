package models

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusPending, TaskStatusInProgress, true},
		{TaskStatusPending, TaskStatusReview, false},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusInProgress, TaskStatusReview, true},
		{TaskStatusInProgress, TaskStatusBlocked, true},
		{TaskStatusInProgress, TaskStatusCompleted, false},
		{TaskStatusReview, TaskStatusCompleted, true},
		{TaskStatusReview, TaskStatusInProgress, true},
		{TaskStatusBlocked, TaskStatusInProgress, true},
		{TaskStatusBlocked, TaskStatusReview, false},
		{TaskStatusCompleted, TaskStatusInProgress, true},
		{TaskStatusCompleted, TaskStatusCancelled, false},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusCancelled, TaskStatusInProgress, false},
		{TaskStatusCancelled, TaskStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTaskStatus_NonTerminalCanBeCancelled(t *testing.T) {
	for _, status := range []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusReview, TaskStatusBlocked} {
		assert.False(t, status.IsTerminal())
		assert.True(t, status.CanTransitionTo(TaskStatusCancelled), "%s should be cancellable", status)
	}

	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
}

func TestTask_SetStatus_CompletionAndReopen(t *testing.T) {
	task := &Task{ID: "t1", Status: TaskStatusReview}
	completedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	task.SetStatus(TaskStatusCompleted, StatusChange{ActorID: "alice", At: completedAt})

	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, completedAt, *task.CompletedAt)

	task.SetStatus(TaskStatusInProgress, StatusChange{ActorID: "bob", At: completedAt.Add(time.Hour)})

	assert.Nil(t, task.CompletedAt)
	require.Len(t, task.History, 2)
	assert.True(t, task.History[1].Reopen)
	assert.Equal(t, TaskStatusCompleted, task.History[1].From)
	assert.Equal(t, "bob", task.History[1].ActorID)
}

func TestTask_SetStatus_BlockReason(t *testing.T) {
	task := &Task{Status: TaskStatusInProgress}

	task.SetStatus(TaskStatusBlocked, StatusChange{At: time.Now()})
	assert.Equal(t, BlockReasonManual, task.BlockReason)

	task.SetStatus(TaskStatusInProgress, StatusChange{At: time.Now()})
	assert.Empty(t, task.BlockReason)

	task.BlockReason = BlockReasonDependency
	task.SetStatus(TaskStatusBlocked, StatusChange{At: time.Now(), Automatic: true})
	assert.Equal(t, BlockReasonDependency, task.BlockReason)
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	task := &Task{Status: TaskStatusInProgress, DueDate: &past}
	assert.True(t, task.IsOverdue(now))

	task.Status = TaskStatusCompleted
	assert.False(t, task.IsOverdue(now))

	task.Status = TaskStatusPending
	task.DueDate = nil
	assert.False(t, task.IsOverdue(now))
}

func TestTask_HasOpenApprovals(t *testing.T) {
	task := &Task{}
	assert.False(t, task.HasOpenApprovals())

	task.Approvals = []*Approval{{ID: "a1", Status: ApprovalStatusApproved}}
	assert.False(t, task.HasOpenApprovals())

	task.Approvals = append(task.Approvals, &Approval{ID: "a2", Status: ApprovalStatusPending})
	assert.True(t, task.HasOpenApprovals())
}

func TestWorkflowStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, WorkflowStatusDraft.CanTransitionTo(WorkflowStatusActive))
	assert.True(t, WorkflowStatusActive.CanTransitionTo(WorkflowStatusCompleted))
	assert.False(t, WorkflowStatusDraft.CanTransitionTo(WorkflowStatusCompleted))
	assert.False(t, WorkflowStatusArchived.CanTransitionTo(WorkflowStatusActive))
	assert.False(t, WorkflowStatusCompleted.AcceptsTasks())
	assert.True(t, WorkflowStatusPaused.AcceptsTasks())
}

func TestWorkflow_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	workflow := &Workflow{
		OrganizationID: "org-1",
		Name:           "2025 Return",
		Type:           WorkflowTypeTaxPreparation,
		Priority:       PriorityHigh,
	}
	require.NoError(t, validate.Struct(workflow))

	workflow.Type = "payroll"
	err := validate.Struct(workflow)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "Type", validationErrors[0].Field())
	assert.Equal(t, "oneof", validationErrors[0].Tag())
}

func TestAutomationRule_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	rule := &AutomationRule{Trigger: TriggerTaskCompleted, Actions: []string{"email_client"}}
	require.NoError(t, validate.Struct(rule))

	rule.Actions = nil
	assert.Error(t, validate.Struct(rule))

	rule.Actions = []string{"notify"}
	rule.Trigger = "on_tuesday"
	assert.Error(t, validate.Struct(rule))
}
