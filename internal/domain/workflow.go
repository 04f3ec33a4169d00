package domain

import "time"

// StepPolicy is the explicit completion rule for a workflow step when the
// step holds multiple approval instances (parallel approvers).
type StepPolicy string

const (
	// StepPolicyAny completes the step on the first APPROVE.
	StepPolicyAny StepPolicy = "ANY"
	// StepPolicyAll requires every instance of the step to be APPROVE.
	StepPolicyAll StepPolicy = "ALL"
	// StepPolicyQuorum requires at least Quorum instances to be APPROVE.
	StepPolicyQuorum StepPolicy = "QUORUM"
)

// WorkflowStep is one position in a template's totally ordered approval
// sequence. A nil DepartmentID means any approver with signing authority may
// act. Steps are immutable once approval instances reference them.
type WorkflowStep struct {
	ID             string
	FormTemplateID string
	StepOrder      int
	DepartmentID   *string
	StepName       string
	Policy         StepPolicy
	Quorum         int
	CreatedAt      time.Time
}

// StepSatisfied evaluates the completion rule for one step given the
// instances currently attached to it. A FORWARD instance is superseded by
// the instance it spawned and never counts toward the rule. A step whose
// live set is a single instance completes iff that instance is APPROVE
// regardless of policy.
func StepSatisfied(policy StepPolicy, quorum int, instances []ApprovalInstance) bool {
	if len(instances) == 0 {
		return true
	}
	live := 0
	approved := 0
	for _, inst := range instances {
		if inst.Action == ActionForward {
			continue
		}
		live++
		if inst.Action == ActionApprove {
			approved++
		}
	}
	if live == 0 {
		return false
	}
	if live == 1 {
		return approved == 1
	}
	switch policy {
	case StepPolicyAll:
		return approved == live
	case StepPolicyQuorum:
		if quorum < 1 {
			quorum = 1
		}
		return approved >= quorum
	default:
		return approved >= 1
	}
}
