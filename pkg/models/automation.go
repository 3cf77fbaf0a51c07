package models

// RuleTrigger names the situation an automation rule reacts to.
type RuleTrigger string

const (
	TriggerTaskCompleted  RuleTrigger = "task_completed"
	TriggerTaskOverdue    RuleTrigger = "task_overdue"
	TriggerApprovalNeeded RuleTrigger = "approval_needed"
	TriggerClientResponse RuleTrigger = "client_response"
)

// IsValid reports whether t is a known trigger.
func (t RuleTrigger) IsValid() bool {
	switch t {
	case TriggerTaskCompleted, TriggerTaskOverdue, TriggerApprovalNeeded, TriggerClientResponse:
		return true
	}

	return false
}

// AutomationRule is owned by a workflow. The core only decides whether a rule fires;
// its actions are executed by external collaborators.
type AutomationRule struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Trigger RuleTrigger `json:"trigger"   validate:"required,oneof=task_completed task_overdue approval_needed client_response"`
	// Condition is a JSON Schema matched against {trigger, workflow, task}. Empty matches everything.
	Condition map[string]any `json:"condition,omitempty"`
	Actions   []string       `json:"actions"   validate:"required,min=1,dive,required"`
	Active    bool           `json:"active"`
}
