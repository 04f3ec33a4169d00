package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// StepApproverRequest pins one workflow step to a concrete approver.
// ApproverID may be the literal "any" to leave the step open.
type StepApproverRequest struct {
	StepOrder  int    `json:"step_order"`
	ApproverID string `json:"approver_id"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	FormTemplateID string                `json:"form_template_id"`
	DepartmentID   string                `json:"department_id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	FormData       map[string]any        `json:"form_data"`
	DueDate        *time.Time            `json:"due_date"`
	Approvers      []StepApproverRequest `json:"approvers"`
}

// UpdateTicketRequest carries requester-editable fields.
type UpdateTicketRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	FormData    map[string]any `json:"form_data"`
	DueDate     *time.Time     `json:"due_date"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string              `json:"id"`
	TicketCode     string              `json:"ticket_code"`
	FormTemplateID string              `json:"form_template_id"`
	DepartmentID   string              `json:"department_id"`
	Title          string              `json:"title"`
	Status         domain.TicketStatus `json:"status"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with the approval trail.
type TicketDetailResponse struct {
	ID             string              `json:"id"`
	TicketCode     string              `json:"ticket_code"`
	RequesterID    string              `json:"requester_id"`
	FormTemplateID string              `json:"form_template_id"`
	DepartmentID   string              `json:"department_id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	FormData       map[string]any      `json:"form_data"`
	Status         domain.TicketStatus `json:"status"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Approvals      []ApprovalResponse  `json:"approvals"`
	NextPending    *ApprovalResponse   `json:"next_pending,omitempty"`
}

// TicketHistoryResponse represents one audit trail entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ActorID    *string                 `json:"actor_id"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
