package events

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventApprovalApproved    EventType = "approval_approved"
	EventApprovalRejected    EventType = "approval_rejected"
	EventApprovalForwarded   EventType = "approval_forwarded"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketCode     string  `json:"ticket_code"`
	FormTemplateID string  `json:"form_template_id"`
	RequesterID    string  `json:"requester_id"`
	Title          string  `json:"title"`
	FirstApprover  *string `json:"first_approver,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// ApprovalActionPayload payload for approve/reject/forward events.
type ApprovalActionPayload struct {
	InstanceID    string                `json:"instance_id"`
	StepOrder     int                   `json:"step_order"`
	StepName      string                `json:"step_name"`
	Action        domain.ApprovalAction `json:"action"`
	Comment       string                `json:"comment,omitempty"`
	RequesterID   string                `json:"requester_id"`
	NextApprover  *string               `json:"next_approver,omitempty"`
	ForwardedToID *string               `json:"forwarded_to_id,omitempty"`
}
