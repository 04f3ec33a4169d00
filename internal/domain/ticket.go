package domain

import "time"

// TicketStatus enumerates lifecycle states for request tickets. Status is a
// function of the ticket's approval instances: PENDING until the first
// action, IN_PROGRESS while decided and undecided steps coexist, then
// terminal COMPLETED or REJECTED. CANCELLED is only reachable by the
// requester while the ticket is still PENDING.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusRejected   TicketStatus = "REJECTED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further approval actions can move the ticket.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusRejected || s == TicketStatusCancelled
}

// Ticket is the aggregate for employee requests submitted against a form
// template. Content fields are editable only while status is PENDING; status
// writes are owned by the approval engine.
type Ticket struct {
	ID             string
	TicketCode     string
	RequesterID    string
	FormTemplateID string
	DepartmentID   string
	Title          string
	Description    string
	FormData       map[string]any
	Status         TicketStatus
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
