package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus    TicketChangeType = "STATUS_CHANGE"
	ChangeTypeApproval  TicketChangeType = "APPROVAL_ACTION"
	ChangeTypeContent   TicketChangeType = "CONTENT_CHANGE"
	ChangeTypeCancelled TicketChangeType = "CANCELLED"
)

// TicketHistory is an immutable audit trail entry. ActorID is nil for
// system-generated rows such as cascade rejections.
type TicketHistory struct {
	ID         string
	TicketID   string
	ActorID    *string
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
