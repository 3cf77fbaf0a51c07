package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Post("/:id/status", h.ChangeWorkflowStatus)
	w.Post("/:id/cancel", h.CancelWorkflow)
	w.Post("/:id/rules", h.AddAutomationRule)
	w.Patch("/:id/rules/:ruleId", h.SetAutomationRuleActive)
	w.Get("/:id/tasks", h.ListTasks)
	w.Post("/:id/tasks", h.CreateTask)
	w.Get("/:id/rollup", h.GetRollup)
	w.Get("/:id/events", h.WorkflowEvents)

	router.Get("/organizations/:id/events", h.OrganizationEvents)
	router.Post("/sync/catch-up", h.CatchUp)

	t := router.Group("/tasks")
	t.Get("/:id", h.GetTask)
	t.Post("/:id/transition", h.TransitionTask)
	t.Post("/:id/assign", h.AssignTask)
	t.Post("/:id/checklist", h.AddChecklistItem)
	t.Patch("/:id/checklist/:itemId", h.UpdateChecklistItem)
	t.Post("/:id/subtasks", h.AddSubTask)
	t.Patch("/:id/subtasks/:subTaskId", h.UpdateSubTask)
	t.Post("/:id/dependencies", h.AddDependency)
	t.Delete("/:id/dependencies/:dependsOn", h.RemoveDependency)
	t.Post("/:id/attachments", h.AddAttachment)
	t.Post("/:id/approvals", h.RequestApproval)
	t.Post("/:id/approvals/:approvalId/decision", h.DecideApproval)
	t.Post("/:id/client-response", h.ClientResponse)
	t.Get("/:id/comments", h.ListComments)
	t.Post("/:id/comments", h.AddComment)

	router.Post("/comments/:id/resolve", h.ResolveComment)
	router.Get("/health", h.HealthCheck)
}
