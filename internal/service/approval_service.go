package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// AnyApprover is the sentinel accepted in explicit approver maps meaning
// "leave the step unassigned, department-level eligibility applies".
const AnyApprover = "any"

// ApprovalService is the workflow engine: it instantiates per-ticket
// approval state from a template, processes approve/reject/forward actions
// with exactly-once claim semantics, and advances or terminates the ticket
// lifecycle.
type ApprovalService struct {
	approvals  repository.ApprovalRepository
	steps      repository.WorkflowStepRepository
	tickets    repository.TicketRepository
	users      repository.UserRepository
	history    repository.TicketHistoryRepository
	tx         repository.TxManager
	stats      *StatsCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ApprovalDependencies bundles collaborator requirements.
type ApprovalDependencies struct {
	ApprovalRepo repository.ApprovalRepository
	StepRepo     repository.WorkflowStepRepository
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	HistoryRepo  repository.TicketHistoryRepository
	TxManager    repository.TxManager
	StatsCache   *StatsCache
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewApprovalService constructs the engine.
func NewApprovalService(deps ApprovalDependencies) *ApprovalService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		approvals:  deps.ApprovalRepo,
		steps:      deps.StepRepo,
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		history:    deps.HistoryRepo,
		tx:         deps.TxManager,
		stats:      deps.StatsCache,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Instantiate creates one PENDING approval instance per workflow step of the
// ticket's template, in ascending step order. explicitApprovers is keyed by
// step order; a concrete user id binds the instance, the "any" sentinel or a
// missing key leaves it unassigned. Re-instantiating a ticket that already
// has instances is a no-op. An unresolvable approver id aborts the whole
// instantiation; no partial instance set is committed.
func (s *ApprovalService) Instantiate(ctx context.Context, ticket *domain.Ticket, explicitApprovers map[int]string) ([]domain.ApprovalInstance, error) {
	exists, err := s.approvals.ExistsByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if exists {
		return nil, nil
	}

	steps, err := s.steps.ListByTemplate(ctx, ticket.FormTemplateID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(steps) == 0 {
		// no workflow attached; the ticket stays PENDING without instances
		return nil, nil
	}

	instances := make([]domain.ApprovalInstance, 0, len(steps))
	for _, step := range steps {
		inst := domain.ApprovalInstance{
			TicketID:       ticket.ID,
			WorkflowStepID: step.ID,
			Action:         domain.ActionPending,
			StepOrder:      step.StepOrder,
			StepName:       step.StepName,
			DepartmentID:   step.DepartmentID,
		}
		if raw, ok := explicitApprovers[step.StepOrder]; ok && raw != "" && raw != AnyApprover {
			approver, err := s.users.GetByID(ctx, raw)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, apperrors.NewUnknownApprover("approver not found", map[string]any{
						"approver_id": raw,
						"step_order":  step.StepOrder,
					})
				}
				return nil, apperrors.MapError(err)
			}
			inst.ApproverID = &approver.ID
			inst.ApproverName = approver.Name
		}
		instances = append(instances, inst)
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for i := range instances {
			if err := s.approvals.Create(ctx, &instances[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return instances, nil
}

// Approve transitions the instance PENDING->APPROVE and re-evaluates the
// ticket lifecycle: IN_PROGRESS while later steps remain, COMPLETED when the
// last step's completion rule is satisfied.
func (s *ApprovalService) Approve(ctx context.Context, instanceID, comment, actingUserID string) error {
	inst, err := s.loadActionable(ctx, instanceID, actingUserID)
	if err != nil {
		return err
	}
	if err := s.checkOrdering(ctx, inst); err != nil {
		return err
	}

	var oldStatus, newStatus domain.TicketStatus
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		claimed, err := s.approvals.Claim(ctx, inst.ID, domain.ActionApprove, comment, &actingUserID)
		if err != nil {
			return err
		}
		if !claimed {
			return apperrors.NewAlreadyProcessed("approval already processed")
		}
		if err := s.recordApprovalAction(ctx, inst, domain.ActionApprove, comment, actingUserID); err != nil {
			return err
		}

		oldStatus, newStatus, err = s.advance(ctx, inst, actingUserID)
		return err
	})
	if err != nil {
		return apperrors.MapError(err)
	}

	var nextApprover *string
	if next, err := s.approvals.FirstPending(ctx, inst.TicketID); err == nil && next != nil {
		nextApprover = next.ApproverID
	}

	s.invalidateStats(ctx, actingUserID)
	s.publishAction(ctx, inst, events.EventApprovalApproved, domain.ActionApprove, comment, actingUserID, nextApprover, nil)
	s.publishStatusChange(ctx, inst.TicketID, actingUserID, oldStatus, newStatus, comment)
	return nil
}

// Reject transitions the instance PENDING->REJECT, terminates the ticket as
// REJECTED, and cascades rejection to every still-pending instance at this
// step or later (same-step siblings included).
func (s *ApprovalService) Reject(ctx context.Context, instanceID, reason, actingUserID string) error {
	inst, err := s.loadActionable(ctx, instanceID, actingUserID)
	if err != nil {
		return err
	}
	if err := s.checkOrdering(ctx, inst); err != nil {
		return err
	}

	var oldStatus domain.TicketStatus
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		claimed, err := s.approvals.Claim(ctx, inst.ID, domain.ActionReject, reason, &actingUserID)
		if err != nil {
			return err
		}
		if !claimed {
			return apperrors.NewAlreadyProcessed("approval already processed")
		}
		if err := s.recordApprovalAction(ctx, inst, domain.ActionReject, reason, actingUserID); err != nil {
			return err
		}

		ticket, err := s.tickets.GetByID(ctx, inst.TicketID)
		if err != nil {
			return err
		}
		oldStatus = ticket.Status
		if err := s.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusRejected); err != nil {
			return err
		}
		if err := s.recordStatusChange(ctx, ticket.ID, &actingUserID, oldStatus, domain.TicketStatusRejected, reason); err != nil {
			return err
		}

		return s.cascadeReject(ctx, inst)
	})
	if err != nil {
		return apperrors.MapError(err)
	}

	s.invalidateStats(ctx, actingUserID)
	s.publishAction(ctx, inst, events.EventApprovalRejected, domain.ActionReject, reason, actingUserID, nil, nil)
	s.publishStatusChange(ctx, inst.TicketID, actingUserID, oldStatus, domain.TicketStatusRejected, reason)
	return nil
}

// Forward transitions the instance PENDING->FORWARD and spawns a fresh
// PENDING instance at the same step bound to the target approver. Ticket
// status is untouched; the step stays open through the new instance.
func (s *ApprovalService) Forward(ctx context.Context, instanceID, nextApproverID, comment, actingUserID string) error {
	inst, err := s.loadActionable(ctx, instanceID, actingUserID)
	if err != nil {
		return err
	}

	next, err := s.users.GetByID(ctx, nextApproverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnknownApprover("next approver not found", map[string]any{"approver_id": nextApproverID})
		}
		return apperrors.MapError(err)
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		claimed, err := s.approvals.Claim(ctx, inst.ID, domain.ActionForward, comment, &actingUserID)
		if err != nil {
			return err
		}
		if !claimed {
			return apperrors.NewAlreadyProcessed("approval already processed")
		}

		spawned := domain.ApprovalInstance{
			TicketID:       inst.TicketID,
			WorkflowStepID: inst.WorkflowStepID,
			ApproverID:     &next.ID,
			Action:         domain.ActionPending,
		}
		if err := s.approvals.Create(ctx, &spawned); err != nil {
			return err
		}

		entry := &domain.TicketHistory{
			TicketID:   inst.TicketID,
			ActorID:    &actingUserID,
			ChangeType: domain.ChangeTypeApproval,
			OldValue: map[string]any{
				"action":     domain.ActionPending,
				"step_order": inst.StepOrder,
			},
			NewValue: map[string]any{
				"action":                  domain.ActionForward,
				"step_order":              inst.StepOrder,
				"comment":                 comment,
				"forwarded_to":            next.ID,
				"forwarded_to_department": next.DepartmentID,
			},
		}
		return s.history.Create(ctx, entry)
	})
	if err != nil {
		return apperrors.MapError(err)
	}

	s.invalidateStats(ctx, actingUserID)
	s.invalidateStats(ctx, next.ID)
	s.publishAction(ctx, inst, events.EventApprovalForwarded, domain.ActionForward, comment, actingUserID, nil, &next.ID)
	return nil
}

// GetInstance loads one approval instance; callers use it to resolve
// department-level eligibility before invoking the processor.
func (s *ApprovalService) GetInstance(ctx context.Context, instanceID string) (*domain.ApprovalInstance, error) {
	inst, err := s.approvals.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("approval instance", map[string]any{"instance_id": instanceID})
		}
		return nil, apperrors.MapError(err)
	}
	return inst, nil
}

// GetHistory returns the ticket's full approval trail ordered by step order,
// then creation order within a step. Pure read; never mutates state.
func (s *ApprovalService) GetHistory(ctx context.Context, ticketID string) ([]domain.ApprovalInstance, error) {
	list, err := s.approvals.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// GetNextPending returns the PENDING instance with the smallest step order,
// or nil when nothing awaits action.
func (s *ApprovalService) GetNextPending(ctx context.Context, ticketID string) (*domain.ApprovalInstance, error) {
	inst, err := s.approvals.FirstPending(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return inst, nil
}

// GetStats returns workload counters for an approver, served from the redis
// cache when fresh.
func (s *ApprovalService) GetStats(ctx context.Context, approverID string) (*domain.ApproverStats, error) {
	if s.stats != nil {
		if cached, ok := s.stats.Get(ctx, approverID); ok {
			return cached, nil
		}
	}
	stats, err := s.approvals.StatsForApprover(ctx, approverID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if s.stats != nil {
		s.stats.Set(ctx, approverID, stats)
	}
	return stats, nil
}

// ListForApprover returns an approver's dashboard listing.
func (s *ApprovalService) ListForApprover(ctx context.Context, approverID string, filter repository.ApprovalFilter) ([]domain.ApprovalInstance, error) {
	list, err := s.approvals.ListForApprover(ctx, approverID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// AvailableApprovers lists users who may act on an unassigned instance:
// active approvers of the step's department, or all active approvers when
// the step names no department.
func (s *ApprovalService) AvailableApprovers(ctx context.Context, instanceID string) ([]domain.User, error) {
	inst, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	approvers, err := s.users.ListApprovers(ctx, inst.DepartmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return approvers, nil
}

// loadActionable fetches the instance and runs the shared preconditions:
// the instance must exist, be PENDING, and the acting user must match the
// bound approver when one is set.
func (s *ApprovalService) loadActionable(ctx context.Context, instanceID, actingUserID string) (*domain.ApprovalInstance, error) {
	inst, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Decided() {
		return nil, apperrors.NewAlreadyProcessed("approval already processed")
	}
	if inst.ApproverID != nil && !inst.AssignedTo(actingUserID) {
		return nil, apperrors.NewNotAuthorized("not allowed to act on this approval")
	}
	return inst, nil
}

// checkOrdering rejects actions on a step while any earlier step still has a
// pending instance for the same ticket.
func (s *ApprovalService) checkOrdering(ctx context.Context, inst *domain.ApprovalInstance) error {
	pending, err := s.approvals.CountPendingBefore(ctx, inst.TicketID, inst.StepOrder)
	if err != nil {
		return apperrors.MapError(err)
	}
	if pending > 0 {
		return apperrors.NewPreviousStepPending("previous workflow steps are still pending")
	}
	return nil
}

// advance recomputes ticket status after a successful approve: IN_PROGRESS
// while any step remains open, COMPLETED once the final step's completion
// rule is satisfied.
func (s *ApprovalService) advance(ctx context.Context, inst *domain.ApprovalInstance, actingUserID string) (domain.TicketStatus, domain.TicketStatus, error) {
	step, err := s.steps.GetByID(ctx, inst.WorkflowStepID)
	if err != nil {
		return "", "", err
	}
	stepInstances, err := s.approvals.ListByStepOrder(ctx, inst.TicketID, inst.StepOrder)
	if err != nil {
		return "", "", err
	}
	satisfied := domain.StepSatisfied(step.Policy, step.Quorum, stepInstances)

	maxOrder, err := s.steps.MaxStepOrder(ctx, step.FormTemplateID)
	if err != nil {
		return "", "", err
	}

	newStatus := domain.TicketStatusInProgress
	if satisfied && inst.StepOrder >= maxOrder {
		newStatus = domain.TicketStatusCompleted
	}

	ticket, err := s.tickets.GetByID(ctx, inst.TicketID)
	if err != nil {
		return "", "", err
	}
	oldStatus := ticket.Status
	if oldStatus == newStatus {
		return oldStatus, newStatus, nil
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.ID, newStatus); err != nil {
		return "", "", err
	}
	if err := s.recordStatusChange(ctx, ticket.ID, &actingUserID, oldStatus, newStatus, ""); err != nil {
		return "", "", err
	}
	return oldStatus, newStatus, nil
}

// cascadeReject force-rejects every still-pending instance at the rejected
// step or later. Each write is its own conditional claim so a concurrent
// decision on a sibling instance is never silently overwritten.
func (s *ApprovalService) cascadeReject(ctx context.Context, inst *domain.ApprovalInstance) error {
	pending, err := s.approvals.ListPendingFrom(ctx, inst.TicketID, inst.StepOrder)
	if err != nil {
		return err
	}
	for i := range pending {
		claimed, err := s.approvals.Claim(ctx, pending[i].ID, domain.ActionReject, domain.CascadeComment, nil)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		entry := &domain.TicketHistory{
			TicketID:   inst.TicketID,
			ChangeType: domain.ChangeTypeApproval,
			OldValue: map[string]any{
				"action":     domain.ActionPending,
				"step_order": pending[i].StepOrder,
			},
			NewValue: map[string]any{
				"action":     domain.ActionReject,
				"step_order": pending[i].StepOrder,
				"comment":    domain.CascadeComment,
			},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *ApprovalService) recordApprovalAction(ctx context.Context, inst *domain.ApprovalInstance, action domain.ApprovalAction, comment, actingUserID string) error {
	entry := &domain.TicketHistory{
		TicketID:   inst.TicketID,
		ActorID:    &actingUserID,
		ChangeType: domain.ChangeTypeApproval,
		OldValue: map[string]any{
			"action":     domain.ActionPending,
			"step_order": inst.StepOrder,
		},
		NewValue: map[string]any{
			"action":     action,
			"step_order": inst.StepOrder,
			"step_name":  inst.StepName,
			"comment":    comment,
		},
	}
	return s.history.Create(ctx, entry)
}

func (s *ApprovalService) recordStatusChange(ctx context.Context, ticketID string, actorID *string, oldStatus, newStatus domain.TicketStatus, comment string) error {
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ActorID:    actorID,
		ChangeType: domain.ChangeTypeStatus,
		OldValue: map[string]any{
			"status": oldStatus,
		},
		NewValue: map[string]any{
			"status":  newStatus,
			"comment": comment,
		},
	}
	return s.history.Create(ctx, entry)
}

func (s *ApprovalService) invalidateStats(ctx context.Context, approverID string) {
	if s.stats != nil {
		s.stats.Invalidate(ctx, approverID)
	}
}

func (s *ApprovalService) publishAction(ctx context.Context, inst *domain.ApprovalInstance, eventType events.EventType, action domain.ApprovalAction, comment, actingUserID string, nextApprover, forwardedTo *string) {
	if s.dispatcher == nil {
		return
	}
	ticket, err := s.tickets.GetByID(ctx, inst.TicketID)
	if err != nil {
		s.logger.Warn("load ticket for event", zap.Error(err), zap.String("ticket_id", inst.TicketID))
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  inst.TicketID,
		ActorID:   actingUserID,
		Timestamp: time.Now(),
		Payload: events.ApprovalActionPayload{
			InstanceID:    inst.ID,
			StepOrder:     inst.StepOrder,
			StepName:      inst.StepName,
			Action:        action,
			Comment:       comment,
			RequesterID:   ticket.RequesterID,
			NextApprover:  nextApprover,
			ForwardedToID: forwardedTo,
		},
	})
}

func (s *ApprovalService) publishStatusChange(ctx context.Context, ticketID, actingUserID string, oldStatus, newStatus domain.TicketStatus, comment string) {
	if s.dispatcher == nil || oldStatus == newStatus {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticketID,
		ActorID:   actingUserID,
		Timestamp: time.Now(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Comment:   comment,
		},
	})
}
