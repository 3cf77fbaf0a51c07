package web_test

import (
	"errors"
	"testing"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorFields(t *testing.T, err error) []string {
	t.Helper()

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fieldErr.Field())
	}

	return fields
}

func TestCreateWorkflowRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   web.CreateWorkflowRequest
		wantErr   bool
		errFields []string
	}{
		{
			name: "valid request",
			request: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "2025 Tax Return",
				Type:           models.WorkflowTypeTaxPreparation,
				Priority:       models.PriorityHigh,
			},
		},
		{
			name:      "missing organization",
			request:   web.CreateWorkflowRequest{Name: "2025 Tax Return"},
			wantErr:   true,
			errFields: []string{"OrganizationID"},
		},
		{
			name:      "name too short",
			request:   web.CreateWorkflowRequest{OrganizationID: "org-1", Name: "Tx"},
			wantErr:   true,
			errFields: []string{"Name"},
		},
		{
			name: "unknown type and visibility",
			request: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "2025 Tax Return",
				Type:           "payroll",
				Visibility:     "everyone",
			},
			wantErr:   true,
			errFields: []string{"Type", "Visibility"},
		},
		{
			name: "rule without actions",
			request: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "2025 Tax Return",
				AutomationRules: []*models.AutomationRule{
					{Name: "notify", Trigger: models.TriggerTaskCompleted},
				},
			},
			wantErr:   true,
			errFields: []string{"Actions"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if !tt.wantErr {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ElementsMatch(t, tt.errFields, errorFields(t, err))
		})
	}
}

func TestCommandRequests_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())
	completed := true
	hours := 0.0

	tests := []struct {
		name      string
		request   any
		errFields []string
	}{
		{
			name:    "transition",
			request: web.TransitionRequest{Status: models.TaskStatusInProgress, ExpectedVersion: 1},
		},
		{
			name:      "transition without version",
			request:   web.TransitionRequest{Status: models.TaskStatusInProgress},
			errFields: []string{"ExpectedVersion"},
		},
		{
			name:      "transition to unknown status",
			request:   web.TransitionRequest{Status: "done", ExpectedVersion: 1},
			errFields: []string{"Status"},
		},
		{
			name:    "completion",
			request: web.CompletionRequest{Completed: &completed, ExpectedVersion: 2},
		},
		{
			name:      "completion without flag",
			request:   web.CompletionRequest{ExpectedVersion: 2},
			errFields: []string{"Completed"},
		},
		{
			name:      "decision must be final",
			request:   web.DecisionRequest{Decision: models.ApprovalStatusPending, ExpectedVersion: 1},
			errFields: []string{"Decision"},
		},
		{
			name:      "task estimate must be positive",
			request:   web.CreateTaskRequest{Title: "Collect W-2", EstimatedHours: &hours},
			errFields: []string{"EstimatedHours"},
		},
		{
			name:      "empty dependency id",
			request:   web.CreateTaskRequest{Title: "Collect W-2", Dependencies: []string{""}},
			errFields: []string{"Dependencies[0]"},
		},
		{
			name:      "comment content",
			request:   web.CommentRequest{},
			errFields: []string{"Content"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if len(tt.errFields) == 0 {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ElementsMatch(t, tt.errFields, errorFields(t, err))
		})
	}
}
