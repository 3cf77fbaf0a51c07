// Package web provides the HTTP command surface, the SSE event stream and the catch-up
// endpoint for workflows and tasks.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultHeartbeat = 15 * time.Second

type APIHandlers struct {
	registry  *services.Registry
	tasks     *services.TaskGraph
	comments  *services.Collaboration
	broker    *broker.Broker
	validator *validator.Validate
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewAPIHandlers(
	registry *services.Registry,
	tasks *services.TaskGraph,
	comments *services.Collaboration,
	eventBroker *broker.Broker,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		registry:  registry,
		tasks:     tasks,
		comments:  comments,
		broker:    eventBroker,
		validator: validator,
		logger:    logger.With("module", "web"),
		heartbeat: defaultHeartbeat,
	}
}

// SetHeartbeat changes how often idle event streams send a keep-alive comment.
func (h *APIHandlers) SetHeartbeat(interval time.Duration) {
	if interval > 0 {
		h.heartbeat = interval
	}
}

var errInvalidJSON = errors.New("invalid JSON format")

// parse decodes the JSON body into req and validates it.
func (h *APIHandlers) parse(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidJSON
	}

	return h.validator.Struct(req)
}

// actor returns the user on whose behalf the command runs.
func actor(c fiber.Ctx) (string, bool) {
	id := c.Get(ActorHeader)

	return id, id != ""
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.registry.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Taskcore API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Taskcore API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository":  repositoryCheck,
			"subscribers": h.broker.Subscribers(),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{
		OrganizationID: c.Query("organization_id"),
		Assignee:       c.Query("assignee"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	workflows, err := h.registry.ListWorkflows(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req CreateWorkflowRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.registry.CreateWorkflow(c.Context(), req.command(actorID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.registry.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req UpdateWorkflowRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.registry.UpdateWorkflow(c.Context(), c.Params("id"), req.patch(), actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ChangeWorkflowStatus(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req ChangeWorkflowStatusRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.registry.ChangeStatus(c.Context(), c.Params("id"), req.Status, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	cancelled, err := h.registry.CancelWorkflow(c.Context(), c.Params("id"), actorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cancelled)
}

func (h *APIHandlers) AddAutomationRule(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req AutomationRuleRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.registry.AddAutomationRule(c.Context(), c.Params("id"), req.rule(), actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) SetAutomationRuleActive(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req SetRuleActiveRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.registry.SetAutomationRuleActive(
		c.Context(), c.Params("id"), c.Params("ruleId"), *req.Active, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ListTasks(c fiber.Ctx) error {
	filter := services.TaskFilter{
		Status:   models.TaskStatus(c.Query("status")),
		Assignee: c.Query("assignee"),
		Priority: models.Priority(c.Query("priority")),
		Query:    c.Query("q"),
		Order:    services.TaskOrder(c.Query("order")),
	}

	tasks, err := h.registry.ListTasks(c.Context(), c.Params("id"), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (h *APIHandlers) GetRollup(c fiber.Ctx) error {
	rollup, err := h.registry.Rollup(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rollup)
}

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req CreateTaskRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.tasks.CreateTask(c.Context(), c.Params("id"), req.command(actorID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) CatchUp(c fiber.Ctx) error {
	var req broker.CatchUpRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	resp, err := h.broker.CatchUp(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

// expectedVersion reads the expected_version query parameter of bodiless commands.
func expectedVersion(c fiber.Ctx) (int64, error) {
	version, err := strconv.ParseInt(c.Query("expected_version"), 10, 64)
	if err != nil || version < 1 {
		return 0, services.ErrInvalidRequest
	}

	return version, nil
}
