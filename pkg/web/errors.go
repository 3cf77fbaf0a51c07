package web

import (
	"errors"

	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/persistence"
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// versionedProblem carries the stored version of the rejected entity so the client can
// reconcile and retry.
type versionedProblem struct {
	*problems.Problem
	CurrentVersion *int64 `json:"current_version,omitempty"`
}

// withVersion attaches the version carried by err, if any. Zero versions are omitted.
func withVersion(problem *problems.Problem, err error) versionedProblem {
	out := versionedProblem{Problem: problem}

	current, ok := services.CurrentVersion(err)
	if ok && current > 0 {
		out.CurrentVersion = &current
	}

	return out
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func notFoundType(err error) string {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return "workflow_not_found"
	case persistence.IsTaskNotFound(err):
		return "task_not_found"
	case persistence.IsCommentNotFound(err):
		return "comment_not_found"
	default:
		return "not_found"
	}
}

// ruleType names the domain rule a rejected command violated.
func ruleType(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidDependency):
		return "invalid_dependency"
	case errors.Is(err, services.ErrDependencyNotSatisfied):
		return "dependency_not_satisfied"
	case errors.Is(err, services.ErrApprovalsPending):
		return "approvals_pending"
	case errors.Is(err, services.ErrOpenTasks):
		return "open_tasks"
	case errors.Is(err, services.ErrWorkflowClosed):
		return "workflow_closed"
	default:
		return "invalid_transition"
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), errors.Is(err, broker.ErrInvalidFilter):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(notFoundType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(withVersion(problem, err))

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("version_conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(withVersion(problem, err))

	case services.IsRuleViolation(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType(ruleType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(withVersion(problem, err))

	case errors.Is(err, services.ErrExecutorClosed), errors.Is(err, broker.ErrBrokerClosed):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("unavailable").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		return internalError(c, err)
	}
}
