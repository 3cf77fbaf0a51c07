package models

import "time"

// ApprovalStatus is the decision state of an approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval is a sign-off requested from one approver on a task.
type Approval struct {
	ID          string         `json:"id"`
	ApproverID  string         `json:"approver_id"`
	Status      ApprovalStatus `json:"status"`
	Comment     string         `json:"comment,omitempty"`
	RequestedBy string         `json:"requested_by"`
	RequestedAt time.Time      `json:"requested_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// Comment is an immutable note on a task. Only Resolved may change after creation.
type Comment struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"task_id"`
	WorkflowID     string     `json:"workflow_id"`
	OrganizationID string     `json:"organization_id"`
	AuthorID       string     `json:"author_id"`
	Content        string     `json:"content"`
	Mentions       []string   `json:"mentions"`
	Resolved       bool       `json:"resolved"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
