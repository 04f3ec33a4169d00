package domain

import "time"

// NotificationType enumerates notification triggers.
type NotificationType string

const (
	NotificationApprovalRequested NotificationType = "APPROVAL_REQUESTED"
	NotificationTicketApproved    NotificationType = "TICKET_APPROVED"
	NotificationTicketRejected    NotificationType = "TICKET_REJECTED"
	NotificationTicketForwarded   NotificationType = "TICKET_FORWARDED"
)

// Notification is a per-user inbox entry produced from engine events.
type Notification struct {
	ID        string
	UserID    string
	TicketID  string
	Type      NotificationType
	Message   string
	IsRead    bool
	CreatedAt time.Time
}
