package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// ApprovalActionRequest carries the comment for approve/reject.
type ApprovalActionRequest struct {
	Comment string `json:"comment"`
}

// ForwardRequest names the approver a pending instance is handed to.
type ForwardRequest struct {
	NextApproverID string `json:"next_approver_id"`
	Comment        string `json:"comment"`
}

// ApprovalResponse represents one approval instance.
type ApprovalResponse struct {
	ID           string                `json:"id"`
	TicketID     string                `json:"ticket_id"`
	StepOrder    int                   `json:"step_order"`
	StepName     string                `json:"step_name"`
	DepartmentID *string               `json:"department_id,omitempty"`
	ApproverID   *string               `json:"approver_id,omitempty"`
	ApproverName string                `json:"approver_name,omitempty"`
	Action       domain.ApprovalAction `json:"action"`
	Comments     string                `json:"comments,omitempty"`
	DecidedAt    *time.Time            `json:"decided_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// ApproverStatsResponse exposes workload counters.
type ApproverStatsResponse struct {
	PendingCount   int64 `json:"pending_count"`
	ProcessedCount int64 `json:"processed_count"`
	ApprovedCount  int64 `json:"approved_count"`
	RejectedCount  int64 `json:"rejected_count"`
}
