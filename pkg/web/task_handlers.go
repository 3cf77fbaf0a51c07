package web

import (
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.tasks.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) TransitionTask(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req TransitionRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.TransitionStatus(c.Context(), c.Params("id"), services.TransitionRequest{
		Target:          req.Status,
		ActorID:         actorID,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AssignTask(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req AssignRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.Assign(c.Context(), c.Params("id"), req.Assignee, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AddChecklistItem(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req ChecklistItemRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.AddChecklistItem(c.Context(), c.Params("id"), req.Text, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) UpdateChecklistItem(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req CompletionRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.UpdateChecklist(
		c.Context(), c.Params("id"), c.Params("itemId"), *req.Completed, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AddSubTask(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req SubTaskRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.AddSubTask(c.Context(), c.Params("id"), req.Title, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) UpdateSubTask(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req CompletionRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.UpdateSubTask(
		c.Context(), c.Params("id"), c.Params("subTaskId"), *req.Completed, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AddDependency(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req DependencyRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.AddDependency(c.Context(), c.Params("id"), req.DependsOn, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) RemoveDependency(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, "expected_version query parameter must be a positive integer")
	}

	task, err := h.tasks.RemoveDependency(c.Context(), c.Params("id"), c.Params("dependsOn"), actorID, version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AddAttachment(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req AttachmentRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.AddAttachment(c.Context(), c.Params("id"), services.AttachmentRequest{
		Name:        req.Name,
		Reference:   req.Reference,
		ContentType: req.ContentType,
	}, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) RequestApproval(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req ApprovalRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.RequestApproval(c.Context(), c.Params("id"), req.ApproverID, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req DecisionRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.DecideApproval(
		c.Context(), c.Params("id"), c.Params("approvalId"), req.Decision, req.Comment, actorID, req.ExpectedVersion)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ClientResponse(c fiber.Ctx) error {
	var req ClientResponseRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	fired, err := h.tasks.NotifyClientResponse(c.Context(), c.Params("id"), req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"rules_fired": fired})
}

func (h *APIHandlers) ListComments(c fiber.Ctx) error {
	comments, err := h.comments.ListComments(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"comments":    comments,
		"total_count": len(comments),
	})
}

func (h *APIHandlers) AddComment(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req CommentRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	comment, err := h.comments.AddComment(c.Context(), c.Params("id"), actorID, req.Content)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *APIHandlers) ResolveComment(c fiber.Ctx) error {
	actorID, ok := actor(c)
	if !ok {
		return badRequest(c, ActorHeader+" header is required")
	}

	comment, err := h.comments.ResolveComment(c.Context(), c.Params("id"), actorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(comment)
}
