// Package models defines the core domain models for collaborative task workflows.
package models

import (
	"slices"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Being set up, tasks may be added
	WorkflowStatusActive    WorkflowStatus = "active"    // Work in progress
	WorkflowStatusPaused    WorkflowStatus = "paused"    // Temporarily on hold
	WorkflowStatusCompleted WorkflowStatus = "completed" // Every task reached a terminal state
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Closed, read-only
)

// WorkflowType categorizes the engagement a workflow represents.
type WorkflowType string

const (
	WorkflowTypeTaxPreparation WorkflowType = "tax_preparation"
	WorkflowTypeAudit          WorkflowType = "audit"
	WorkflowTypeBookkeeping    WorkflowType = "bookkeeping"
	WorkflowTypeCustom         WorkflowType = "custom"
)

// Priority is shared by workflows and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Visibility controls who may list a workflow.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityTeam    Visibility = "team"
	VisibilityPrivate Visibility = "private"
)

var workflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusDraft:     {WorkflowStatusActive, WorkflowStatusArchived},
	WorkflowStatusActive:    {WorkflowStatusPaused, WorkflowStatusCompleted, WorkflowStatusArchived},
	WorkflowStatusPaused:    {WorkflowStatusActive, WorkflowStatusArchived},
	WorkflowStatusCompleted: {WorkflowStatusActive, WorkflowStatusArchived},
	WorkflowStatusArchived:  {},
}

// Workflow is a named collection of tasks for one client engagement.
//
// Progress is derived from the workflow's tasks and is never written by callers.
type Workflow struct {
	ID              string            `json:"id"`
	OrganizationID  string            `json:"organization_id"   validate:"required"`
	ClientID        string            `json:"client_id,omitempty"`
	Name            string            `json:"name"              validate:"required,min=3"`
	Description     string            `json:"description"`
	Type            WorkflowType      `json:"type"              validate:"required,oneof=tax_preparation audit bookkeeping custom"`
	Status          WorkflowStatus    `json:"status"`
	Assignee        string            `json:"assignee,omitempty"`
	Priority        Priority          `json:"priority"          validate:"omitempty,oneof=low normal high urgent"`
	Visibility      Visibility        `json:"visibility"        validate:"omitempty,oneof=public team private"`
	Progress        int               `json:"progress"`
	AutomationRules []*AutomationRule `json:"automation_rules"`
	StartDate       *time.Time        `json:"start_date,omitempty"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsValid reports whether s is a known workflow status.
func (s WorkflowStatus) IsValid() bool {
	_, ok := workflowTransitions[s]

	return ok
}

// CanTransitionTo reports whether the workflow state table allows from -> to.
func (s WorkflowStatus) CanTransitionTo(to WorkflowStatus) bool {
	return slices.Contains(workflowTransitions[s], to)
}

// AcceptsTasks reports whether new tasks may be created in a workflow with this status.
func (s WorkflowStatus) AcceptsTasks() bool {
	return s != WorkflowStatusArchived && s != WorkflowStatusCompleted
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}

	return false
}

// Rule returns the automation rule with the given ID, or nil.
func (w *Workflow) Rule(id string) *AutomationRule {
	for _, rule := range w.AutomationRules {
		if rule.ID == id {
			return rule
		}
	}

	return nil
}
