package domain

import "time"

// ApprovalAction is the per-instance state. PENDING is the only non-terminal
// value; once an instance leaves PENDING it never changes again except via
// the cascade-rejection path, which itself only claims PENDING instances.
type ApprovalAction string

const (
	ActionPending ApprovalAction = "PENDING"
	ActionApprove ApprovalAction = "APPROVE"
	ActionReject  ApprovalAction = "REJECT"
	ActionForward ApprovalAction = "FORWARD"
)

// CascadeComment is recorded on instances force-rejected when an earlier
// instance of the same ticket is rejected.
const CascadeComment = "auto-rejected due to previous rejection"

// ApprovalInstance is one workflow step's live decision record for one
// ticket. ApproverID nil means any approver with department-level authority
// may claim it. StepOrder, StepName and DepartmentID are denormalized from
// the owning workflow step on reads.
type ApprovalInstance struct {
	ID             string
	TicketID       string
	WorkflowStepID string
	ApproverID     *string
	Action         ApprovalAction
	Comments       string
	DecidedAt      *time.Time
	CreatedAt      time.Time

	StepOrder    int
	StepName     string
	DepartmentID *string
	ApproverName string
}

// Decided reports whether the instance reached a terminal action.
func (a *ApprovalInstance) Decided() bool {
	return a.Action != ActionPending
}

// AssignedTo reports whether the instance is bound to the given user.
func (a *ApprovalInstance) AssignedTo(userID string) bool {
	return a.ApproverID != nil && *a.ApproverID == userID
}

// ApproverStats summarizes an approver's workload and decisions.
type ApproverStats struct {
	PendingCount   int64 `json:"pending_count"`
	ProcessedCount int64 `json:"processed_count"`
	ApprovedCount  int64 `json:"approved_count"`
	RejectedCount  int64 `json:"rejected_count"`
}
