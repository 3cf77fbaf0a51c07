// Package automation decides which workflow rules fire for a trigger and hands the
// resulting actions to external executors. Action execution is fire-and-forget: its
// failures are logged and never reach the command that caused them.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// NotifyMentionAction is dispatched for every comment that mentions someone.
const NotifyMentionAction = "notify_mention"

// Subject is the document a rule condition is evaluated against.
type Subject struct {
	Trigger  models.RuleTrigger `json:"trigger"`
	Workflow *models.Workflow   `json:"workflow"`
	Task     *models.Task       `json:"task,omitempty"`
	Data     map[string]any     `json:"data,omitempty"`
}

// ActionRequest asks an external collaborator to perform one action.
type ActionRequest struct {
	ID             string             `json:"id"`
	RuleID         string             `json:"rule_id,omitempty"`
	RuleName       string             `json:"rule_name,omitempty"`
	Action         string             `json:"action"`
	Trigger        models.RuleTrigger `json:"trigger,omitempty"`
	WorkflowID     string             `json:"workflow_id"`
	OrganizationID string             `json:"organization_id"`
	TaskID         string             `json:"task_id,omitempty"`
	Data           map[string]any     `json:"data,omitempty"`
	RequestedAt    time.Time          `json:"requested_at"`
}

type Engine struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	wg         sync.WaitGroup
}

func NewEngine(logger *slog.Logger, dispatcher Dispatcher) *Engine {
	if dispatcher == nil {
		dispatcher = NewLogDispatcher(logger)
	}

	return &Engine{
		logger:     logger.With("module", "automation"),
		dispatcher: dispatcher,
	}
}

// Match returns one request per action of every active rule whose trigger and condition
// match the subject. A rule whose condition cannot be evaluated is logged and skipped.
func (e *Engine) Match(ctx context.Context, rules []*models.AutomationRule, subject Subject) []ActionRequest {
	requests := make([]ActionRequest, 0)

	for _, rule := range rules {
		if rule == nil || !rule.Active || rule.Trigger != subject.Trigger {
			continue
		}

		ok, err := conditionMatches(rule.Condition, subject)
		if err != nil {
			e.logger.WarnContext(ctx, "automation rule condition failed", "rule_id", rule.ID, "error", err)

			continue
		}

		if !ok {
			continue
		}

		for _, action := range rule.Actions {
			requests = append(requests, newRequest(rule, action, subject))
		}
	}

	return requests
}

func newRequest(rule *models.AutomationRule, action string, subject Subject) ActionRequest {
	request := ActionRequest{
		ID:          uuid.NewString(),
		Action:      action,
		Trigger:     subject.Trigger,
		Data:        subject.Data,
		RequestedAt: time.Now().UTC(),
	}

	if rule != nil {
		request.RuleID = rule.ID
		request.RuleName = rule.Name
	}

	if subject.Workflow != nil {
		request.WorkflowID = subject.Workflow.ID
		request.OrganizationID = subject.Workflow.OrganizationID
	}

	if subject.Task != nil {
		request.TaskID = subject.Task.ID
	}

	return request
}

func conditionMatches(condition map[string]any, subject Subject) (bool, error) {
	if len(condition) == 0 {
		return true, nil
	}

	schemaLoader := gojsonschema.NewGoLoader(condition)
	dataLoader := gojsonschema.NewGoLoader(subject)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return false, fmt.Errorf("invalid condition schema: %w", err)
	}

	return result.Valid(), nil
}

// ValidateCondition reports whether condition is a usable JSON Schema.
func ValidateCondition(condition map[string]any) error {
	if len(condition) == 0 {
		return nil
	}

	_, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(condition))
	if err != nil {
		return fmt.Errorf("invalid condition schema: %w", err)
	}

	return nil
}

// Fire matches the rules and dispatches the requests in the background.
func (e *Engine) Fire(ctx context.Context, rules []*models.AutomationRule, subject Subject) int {
	requests := e.Match(ctx, rules, subject)
	if len(requests) > 0 {
		e.logger.DebugContext(ctx, "automation rules fired", "trigger", subject.Trigger, "actions", describe(requests))
	}

	e.dispatch(ctx, requests)

	return len(requests)
}

// Notify dispatches an action that is not backed by a rule, such as a mention notification.
func (e *Engine) Notify(ctx context.Context, action string, subject Subject) {
	e.dispatch(ctx, []ActionRequest{newRequest(nil, action, subject)})
}

func (e *Engine) dispatch(ctx context.Context, requests []ActionRequest) {
	if len(requests) == 0 {
		return
	}

	// The command that fired the rules may already be done.
	ctx = context.WithoutCancel(ctx)

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		for _, request := range requests {
			err := e.dispatcher.Dispatch(ctx, request)
			if err != nil {
				e.logger.ErrorContext(ctx, "automation action failed",
					"action", request.Action,
					"rule_id", request.RuleID,
					"workflow_id", request.WorkflowID,
					"task_id", request.TaskID,
					"error", err)
			}
		}
	}()
}

// Wait blocks until every dispatched request has been handed off.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// describe renders requests for log lines.
func describe(requests []ActionRequest) string {
	names := make([]string, 0, len(requests))
	for _, request := range requests {
		names = append(names, request.Action)
	}

	return strings.Join(names, ",")
}
