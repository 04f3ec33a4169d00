package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

const cancelComment = "ticket cancelled by requester"

// TicketService coordinates the request lifecycle around the approval
// engine: creation from a form template, requester-side reads and edits,
// and cancellation.
type TicketService struct {
	tickets     repository.TicketRepository
	templates   repository.FormTemplateRepository
	steps       repository.WorkflowStepRepository
	departments repository.DepartmentRepository
	approvals   repository.ApprovalRepository
	history     repository.TicketHistoryRepository
	engine      *ApprovalService
	tx          repository.TxManager
	dispatcher  events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	TemplateRepo   repository.FormTemplateRepository
	StepRepo       repository.WorkflowStepRepository
	DepartmentRepo repository.DepartmentRepository
	ApprovalRepo   repository.ApprovalRepository
	HistoryRepo    repository.TicketHistoryRepository
	Engine         *ApprovalService
	TxManager      repository.TxManager
	Dispatcher     events.Dispatcher
}

// TicketCreateInput describes ticket creation payload. Approvers is keyed
// by step order; missing keys or the "any" sentinel leave the step open to
// the department's approvers.
type TicketCreateInput struct {
	FormTemplateID string
	DepartmentID   string
	Title          string
	Description    string
	FormData       map[string]any
	DueDate        *time.Time
	Approvers      map[int]string
}

// TicketUpdateInput carries requester-editable fields.
type TicketUpdateInput struct {
	Title       string
	Description string
	FormData    map[string]any
	DueDate     *time.Time
}

// TicketUserFilter describes requester listing filters.
type TicketUserFilter struct {
	Statuses    []domain.TicketStatus
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketDetail aggregates a ticket with its approval trail.
type TicketDetail struct {
	Ticket      *domain.Ticket
	Approvals   []domain.ApprovalInstance
	NextPending *domain.ApprovalInstance
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		templates:   deps.TemplateRepo,
		steps:       deps.StepRepo,
		departments: deps.DepartmentRepo,
		approvals:   deps.ApprovalRepo,
		history:     deps.HistoryRepo,
		engine:      deps.Engine,
		tx:          deps.TxManager,
		dispatcher:  deps.Dispatcher,
	}
}

// CreateTicket creates a ticket from an active form template and eagerly
// instantiates the template's approval workflow. Ticket row and approval
// instances commit atomically.
func (s *TicketService) CreateTicket(ctx context.Context, userID string, input TicketCreateInput) (*TicketDetail, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}

	tpl, err := s.templates.GetByID(ctx, input.FormTemplateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("form template", map[string]any{"form_template_id": input.FormTemplateID})
		}
		return nil, apperrors.MapError(err)
	}
	if !tpl.IsActive {
		return nil, apperrors.NewValidationError("form template is inactive", map[string]any{"form_template_id": tpl.ID})
	}

	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !dept.IsActive {
		return nil, apperrors.NewValidationError("department is inactive", map[string]any{"department_id": dept.ID})
	}

	ticket := &domain.Ticket{
		TicketCode:     generateTicketCode(),
		RequesterID:    userID,
		FormTemplateID: tpl.ID,
		DepartmentID:   dept.ID,
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		FormData:       input.FormData,
		Status:         domain.TicketStatusPending,
		DueDate:        input.DueDate,
	}
	if ticket.FormData == nil {
		ticket.FormData = map[string]any{}
	}

	var instances []domain.ApprovalInstance
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		instances, err = s.engine.Instantiate(ctx, ticket, input.Approvers)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishCreated(ctx, ticket, instances)
	return s.detailFor(ticket, instances), nil
}

// GetTicketForUser fetches a ticket with its approval trail. Requesters see
// their own tickets; admins see everything.
func (s *TicketService) GetTicketForUser(ctx context.Context, actor *domain.User, ticketID string) (*TicketDetail, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID != actor.ID && actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewNotAuthorized("not allowed to view this ticket")
	}
	approvals, err := s.engine.GetHistory(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	return s.detailFor(ticket, approvals), nil
}

// GetTicketByCode resolves a ticket by its external code, with the same
// visibility rule as GetTicketForUser.
func (s *TicketService) GetTicketByCode(ctx context.Context, actor *domain.User, code string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_code": code})
		}
		return nil, apperrors.MapError(err)
	}
	return s.GetTicketForUser(ctx, actor, ticket.ID)
}

// ListUserTickets returns paginated tickets for a requester.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, filter TicketUserFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		RequesterID: &userID,
		Statuses:    filter.Statuses,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	list, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// ListAllTickets is the admin-scope listing with arbitrary filters.
func (s *TicketService) ListAllTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	list, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// UpdateContent lets the requester amend an unstarted ticket. Once any
// approver has acted the request is frozen.
func (s *TicketService) UpdateContent(ctx context.Context, userID, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID != userID {
		return nil, apperrors.NewNotAuthorized("only the requester may edit this ticket")
	}
	if ticket.Status != domain.TicketStatusPending {
		return nil, apperrors.NewConflict("ticket can no longer be edited", map[string]any{"status": ticket.Status})
	}

	oldValue := map[string]any{
		"title":       ticket.Title,
		"description": ticket.Description,
		"form_data":   ticket.FormData,
	}
	if title := strings.TrimSpace(input.Title); title != "" {
		ticket.Title = title
	}
	ticket.Description = strings.TrimSpace(input.Description)
	if input.FormData != nil {
		ticket.FormData = input.FormData
	}
	if input.DueDate != nil {
		ticket.DueDate = input.DueDate
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.UpdateContent(ctx, ticket); err != nil {
			return err
		}
		entry := &domain.TicketHistory{
			TicketID:   ticket.ID,
			ActorID:    &userID,
			ChangeType: domain.ChangeTypeContent,
			OldValue:   oldValue,
			NewValue: map[string]any{
				"title":       ticket.Title,
				"description": ticket.Description,
				"form_data":   ticket.FormData,
			},
		}
		return s.history.Create(ctx, entry)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// CancelTicket withdraws an unstarted request. Every still-pending approval
// instance is closed through a conditional claim so a concurrent approver
// decision is never overwritten.
func (s *TicketService) CancelTicket(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID != userID {
		return nil, apperrors.NewNotAuthorized("only the requester may cancel this ticket")
	}
	if ticket.Status != domain.TicketStatusPending {
		return nil, apperrors.NewConflict("ticket can no longer be cancelled", map[string]any{"status": ticket.Status})
	}

	oldStatus := ticket.Status
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusCancelled); err != nil {
			return err
		}
		pending, err := s.approvals.ListPendingFrom(ctx, ticket.ID, 0)
		if err != nil {
			return err
		}
		for i := range pending {
			if _, err := s.approvals.Claim(ctx, pending[i].ID, domain.ActionReject, cancelComment, nil); err != nil {
				return err
			}
		}
		entry := &domain.TicketHistory{
			TicketID:   ticket.ID,
			ActorID:    &userID,
			ChangeType: domain.ChangeTypeCancelled,
			OldValue:   map[string]any{"status": oldStatus},
			NewValue:   map[string]any{"status": domain.TicketStatusCancelled},
		}
		return s.history.Create(ctx, entry)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket.Status = domain.TicketStatusCancelled

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  userID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: domain.TicketStatusCancelled,
			Comment:   cancelComment,
		},
	})
	return ticket, nil
}

// ListHistory returns the audit trail for a ticket the actor may view.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID != actor.ID && actor.Role == domain.RoleEmployee {
		return nil, apperrors.NewNotAuthorized("not allowed to view this ticket")
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) detailFor(ticket *domain.Ticket, approvals []domain.ApprovalInstance) *TicketDetail {
	detail := &TicketDetail{Ticket: ticket, Approvals: approvals}
	for i := range approvals {
		if approvals[i].Action == domain.ActionPending {
			if detail.NextPending == nil || approvals[i].StepOrder < detail.NextPending.StepOrder {
				detail.NextPending = &approvals[i]
			}
		}
	}
	return detail
}

func (s *TicketService) publishCreated(ctx context.Context, ticket *domain.Ticket, instances []domain.ApprovalInstance) {
	payload := events.TicketCreatedPayload{
		TicketCode:     ticket.TicketCode,
		FormTemplateID: ticket.FormTemplateID,
		RequesterID:    ticket.RequesterID,
		Title:          ticket.Title,
	}
	for i := range instances {
		if instances[i].Action == domain.ActionPending && instances[i].ApproverID != nil {
			payload.FirstApprover = instances[i].ApproverID
			break
		}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  ticket.RequesterID,
		Payload:  payload,
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketCode() string {
	return "REQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
