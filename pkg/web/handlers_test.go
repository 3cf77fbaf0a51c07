package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/journal"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence/file"
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/advisoros/taskcore/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type problem struct {
	Type           string `json:"type"`
	Status         int    `json:"status"`
	Detail         string `json:"detail"`
	CurrentVersion *int64 `json:"current_version"`
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	j := journal.NewMemory(0, 0)
	eventBroker := broker.New(slog.Default(), broker.WithJournal(j))

	runtime := services.NewRuntime(services.Config{
		Persistence: file.NewPersistence(t.TempDir()),
		Journal:     j,
		Sink:        eventBroker,
		Logger:      slog.Default(),
	})
	registry := services.NewRegistry(runtime)
	eventBroker.SetSnapshots(registry)

	handlers := web.NewAPIHandlers(
		registry,
		services.NewTaskGraph(runtime),
		services.NewCollaboration(runtime),
		eventBroker,
		validator.New(validator.WithRequiredStructEnabled()),
		slog.Default(),
	)

	app := fiber.New()
	handlers.Register(app)

	t.Cleanup(func() {
		runtime.Close()
		eventBroker.Close()
	})

	return app
}

func call(t *testing.T, app *fiber.App, method, path string, body any, actor string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if actor != "" {
		req.Header.Set(web.ActorHeader, actor)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))

	return v
}

func createWorkflow(t *testing.T, app *fiber.App, org, name string) *models.Workflow {
	t.Helper()

	status, body := call(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		OrganizationID: org,
		Name:           name,
		Type:           models.WorkflowTypeTaxPreparation,
	}, "alice")
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.Workflow](t, body)
}

func createTask(t *testing.T, app *fiber.App, workflowID, title string, deps ...string) *models.Task {
	t.Helper()

	status, body := call(t, app, http.MethodPost, "/workflows/"+workflowID+"/tasks", web.CreateTaskRequest{
		Title:        title,
		Dependencies: deps,
	}, "alice")
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[*models.Task](t, body)
}

func transition(t *testing.T, app *fiber.App, task *models.Task, target models.TaskStatus) (int, []byte) {
	t.Helper()

	return call(t, app, http.MethodPost, "/tasks/"+task.ID+"/transition", web.TransitionRequest{
		Status:          target,
		ExpectedVersion: task.Version,
	}, "alice")
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           any
		actor          string
		expectedStatus int
		expectedType   string
	}{
		{
			name: "successful creation",
			body: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "2025 Tax Return",
				Type:           models.WorkflowTypeTaxPreparation,
			},
			actor:          "alice",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing actor",
			body:           web.CreateWorkflowRequest{OrganizationID: "org-1", Name: "2025 Tax Return"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid JSON",
			body:           "not an object",
			actor:          "alice",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "validation failure",
			body:           web.CreateWorkflowRequest{OrganizationID: "org-1", Name: "Tx"},
			actor:          "alice",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			status, body := call(t, app, http.MethodPost, "/workflows", tt.body, tt.actor)
			require.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, decode[problem](t, body).Type)

				return
			}

			workflow := decode[*models.Workflow](t, body)
			assert.NotEmpty(t, workflow.ID)
			assert.Equal(t, int64(1), workflow.Version)
			assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
			assert.Equal(t, models.PriorityNormal, workflow.Priority)
		})
	}
}

func TestAPIHandlers_GetWorkflowNotFound(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := call(t, app, http.MethodGet, "/workflows/missing", nil, "")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "workflow_not_found", decode[problem](t, body).Type)

	status, body = call(t, app, http.MethodGet, "/tasks/missing", nil, "")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "task_not_found", decode[problem](t, body).Type)
}

func TestAPIHandlers_GetWorkflowsFilters(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	createWorkflow(t, app, "org-1", "2025 Tax Return")
	createWorkflow(t, app, "org-1", "Q3 Bookkeeping")
	createWorkflow(t, app, "org-2", "Annual Audit")

	status, body := call(t, app, http.MethodGet, "/workflows?organization_id=org-1", nil, "")
	require.Equal(t, http.StatusOK, status)

	result := decode[struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int                `json:"total_count"`
	}](t, body)
	assert.Equal(t, 2, result.TotalCount)

	status, _ = call(t, app, http.MethodGet, "/workflows?status=unknown", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_UpdateWorkflowConflict(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")

	name := "2025 Federal Return"
	status, body := call(t, app, http.MethodPatch, "/workflows/"+workflow.ID, web.UpdateWorkflowRequest{
		Name:            &name,
		ExpectedVersion: workflow.Version,
	}, "alice")
	require.Equal(t, http.StatusOK, status, string(body))

	updated := decode[*models.Workflow](t, body)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, int64(2), updated.Version)

	status, body = call(t, app, http.MethodPatch, "/workflows/"+workflow.ID, web.UpdateWorkflowRequest{
		Name:            &name,
		ExpectedVersion: workflow.Version,
	}, "alice")
	require.Equal(t, http.StatusConflict, status)

	conflict := decode[problem](t, body)
	assert.Equal(t, "version_conflict", conflict.Type)
	require.NotNil(t, conflict.CurrentVersion)
	assert.Equal(t, int64(2), *conflict.CurrentVersion)
}

func TestAPIHandlers_TaskLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	collect := createTask(t, app, workflow.ID, "Collect W-2")
	prepare := createTask(t, app, workflow.ID, "Prepare return", collect.ID)

	status, body := transition(t, app, prepare, models.TaskStatusInProgress)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	rejected := decode[problem](t, body)
	assert.Equal(t, "dependency_not_satisfied", rejected.Type)
	require.NotNil(t, rejected.CurrentVersion)
	assert.Equal(t, prepare.Version, *rejected.CurrentVersion)

	status, body = transition(t, app, collect, models.TaskStatusCompleted)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	invalid := decode[problem](t, body)
	assert.Equal(t, "invalid_transition", invalid.Type)
	require.NotNil(t, invalid.CurrentVersion)
	assert.Equal(t, collect.Version, *invalid.CurrentVersion)

	for _, target := range []models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusReview, models.TaskStatusCompleted} {
		status, body = transition(t, app, collect, target)
		require.Equal(t, http.StatusOK, status, string(body))

		collect = decode[*models.Task](t, body)
	}

	assert.Equal(t, models.TaskStatusCompleted, collect.Status)

	status, body = transition(t, app, prepare, models.TaskStatusInProgress)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = call(t, app, http.MethodGet, "/workflows/"+workflow.ID, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 50, decode[*models.Workflow](t, body).Progress)

	status, body = call(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/rollup", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"total":2`)

	status, body = call(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/tasks?q=w-2", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[struct {
		TotalCount int `json:"total_count"`
	}](t, body).TotalCount)

	status, body = call(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/tasks?order=dependency", nil, "")
	require.Equal(t, http.StatusOK, status, string(body))

	ordered := decode[struct {
		Tasks []*models.Task `json:"tasks"`
	}](t, body).Tasks
	require.Len(t, ordered, 2)
	assert.Equal(t, collect.ID, ordered[0].ID)
	assert.Equal(t, prepare.ID, ordered[1].ID)

	status, body = call(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/tasks?order=newest", nil, "")
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", decode[problem](t, body).Type)
}

func TestAPIHandlers_StaleTransitionReturnsCurrentVersion(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	task := createTask(t, app, workflow.ID, "Collect W-2")

	status, _ := transition(t, app, task, models.TaskStatusInProgress)
	require.Equal(t, http.StatusOK, status)

	status, body := transition(t, app, task, models.TaskStatusCancelled)
	require.Equal(t, http.StatusConflict, status)

	conflict := decode[problem](t, body)
	require.NotNil(t, conflict.CurrentVersion)
	assert.Equal(t, task.Version+1, *conflict.CurrentVersion)
}

func TestAPIHandlers_Dependencies(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	first := createTask(t, app, workflow.ID, "Collect W-2")
	second := createTask(t, app, workflow.ID, "Prepare return", first.ID)

	status, body := call(t, app, http.MethodPost, "/tasks/"+first.ID+"/dependencies", web.DependencyRequest{
		DependsOn:       second.ID,
		ExpectedVersion: first.Version,
	}, "alice")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_dependency", decode[problem](t, body).Type)

	status, _ = call(t, app, http.MethodDelete, "/tasks/"+second.ID+"/dependencies/"+first.ID, nil, "alice")
	require.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, app, http.MethodDelete,
		"/tasks/"+second.ID+"/dependencies/"+first.ID+"?expected_version=1", nil, "alice")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Empty(t, decode[*models.Task](t, body).Dependencies)
}

func TestAPIHandlers_ChecklistAndApprovals(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	task := createTask(t, app, workflow.ID, "Review return")

	status, body := call(t, app, http.MethodPost, "/tasks/"+task.ID+"/checklist", web.ChecklistItemRequest{
		Text:            "Verify SSN",
		ExpectedVersion: task.Version,
	}, "alice")
	require.Equal(t, http.StatusCreated, status, string(body))

	task = decode[*models.Task](t, body)
	require.Len(t, task.Checklist, 1)

	completed := true
	status, body = call(t, app, http.MethodPatch, "/tasks/"+task.ID+"/checklist/"+task.Checklist[0].ID, web.CompletionRequest{
		Completed:       &completed,
		ExpectedVersion: task.Version,
	}, "bob")
	require.Equal(t, http.StatusOK, status, string(body))

	task = decode[*models.Task](t, body)
	assert.True(t, task.Checklist[0].Completed)

	status, body = call(t, app, http.MethodPost, "/tasks/"+task.ID+"/approvals", web.ApprovalRequest{
		ApproverID:      "carol",
		ExpectedVersion: task.Version,
	}, "alice")
	require.Equal(t, http.StatusCreated, status, string(body))

	task = decode[*models.Task](t, body)
	require.Len(t, task.Approvals, 1)

	status, body = call(t, app, http.MethodPost,
		"/tasks/"+task.ID+"/approvals/"+task.Approvals[0].ID+"/decision", web.DecisionRequest{
			Decision:        models.ApprovalStatusApproved,
			ExpectedVersion: task.Version,
		}, "carol")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.ApprovalStatusApproved, decode[*models.Task](t, body).Approvals[0].Status)
}

func TestAPIHandlers_Comments(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	task := createTask(t, app, workflow.ID, "Collect W-2")

	status, body := call(t, app, http.MethodPost, "/tasks/"+task.ID+"/comments",
		web.CommentRequest{Content: "@bob can you upload the W-2?"}, "alice")
	require.Equal(t, http.StatusCreated, status, string(body))

	comment := decode[*models.Comment](t, body)
	assert.Equal(t, []string{"bob"}, comment.Mentions)
	assert.Equal(t, "alice", comment.AuthorID)

	status, body = call(t, app, http.MethodGet, "/tasks/"+task.ID+"/comments", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[struct {
		TotalCount int `json:"total_count"`
	}](t, body).TotalCount)

	status, body = call(t, app, http.MethodPost, "/comments/"+comment.ID+"/resolve", nil, "bob")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[*models.Comment](t, body).Resolved)

	status, body = call(t, app, http.MethodPost, "/comments/missing/resolve", nil, "bob")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "comment_not_found", decode[problem](t, body).Type)
}

func TestAPIHandlers_CompleteWorkflowWithOpenTasks(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	createTask(t, app, workflow.ID, "Collect W-2")

	status, body := call(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/status", web.ChangeWorkflowStatusRequest{
		Status:          models.WorkflowStatusActive,
		ExpectedVersion: workflow.Version,
	}, "alice")
	require.Equal(t, http.StatusOK, status, string(body))

	active := decode[*models.Workflow](t, body)

	status, body = call(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/status", web.ChangeWorkflowStatusRequest{
		Status:          models.WorkflowStatusCompleted,
		ExpectedVersion: active.Version,
	}, "alice")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "open_tasks", decode[problem](t, body).Type)

	status, body = call(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/cancel", nil, "alice")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.WorkflowStatusArchived, decode[*models.Workflow](t, body).Status)
}

func TestAPIHandlers_AutomationRules(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")

	status, body := call(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/rules", web.AutomationRuleRequest{
		Name:            "notify partner",
		Trigger:         models.TriggerTaskCompleted,
		Actions:         []string{"notify_partner"},
		ExpectedVersion: workflow.Version,
	}, "alice")
	require.Equal(t, http.StatusCreated, status, string(body))

	updated := decode[*models.Workflow](t, body)
	require.Len(t, updated.AutomationRules, 1)
	assert.True(t, updated.AutomationRules[0].Active)

	inactive := false
	status, body = call(t, app, http.MethodPatch,
		"/workflows/"+workflow.ID+"/rules/"+updated.AutomationRules[0].ID, web.SetRuleActiveRequest{
			Active:          &inactive,
			ExpectedVersion: updated.Version,
		}, "alice")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.False(t, decode[*models.Workflow](t, body).AutomationRules[0].Active)
}

func TestAPIHandlers_CatchUp(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	workflow := createWorkflow(t, app, "org-1", "2025 Tax Return")
	task := createTask(t, app, workflow.ID, "Collect W-2")

	status, _ := transition(t, app, task, models.TaskStatusInProgress)
	require.Equal(t, http.StatusOK, status)

	status, body := call(t, app, http.MethodPost, "/sync/catch-up", broker.CatchUpRequest{
		Filter:   broker.Filter{WorkflowID: workflow.ID, EntityTypes: []events.EntityType{events.EntityTask}},
		LastSeen: map[string]int64{task.ID: task.Version},
	}, "")
	require.Equal(t, http.StatusOK, status, string(body))

	resp := decode[broker.CatchUpResponse](t, body)
	assert.Nil(t, resp.Snapshot)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, task.ID, resp.Events[0].EntityID)
	assert.Equal(t, task.Version+1, resp.Events[0].Version)

	status, body = call(t, app, http.MethodPost, "/sync/catch-up", broker.CatchUpRequest{
		Filter: broker.Filter{WorkflowID: workflow.ID},
	}, "")
	require.Equal(t, http.StatusOK, status, string(body))

	resp = decode[broker.CatchUpResponse](t, body)
	require.NotNil(t, resp.Snapshot)
	assert.Len(t, resp.Snapshot.Tasks, 1)

	status, _ = call(t, app, http.MethodPost, "/sync/catch-up", broker.CatchUpRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := call(t, app, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
