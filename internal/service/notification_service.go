package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// NotificationService projects engine events into per-user inbox entries.
type NotificationService struct {
	notifications repository.NotificationRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to engine events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventApprovalApproved, n.handleApprovalAction)
	n.dispatcher.Subscribe(events.EventApprovalRejected, n.handleApprovalAction)
	n.dispatcher.Subscribe(events.EventApprovalForwarded, n.handleApprovalForwarded)
}

// ListForUser returns a user's inbox.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	list, err := n.notifications.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// MarkRead flags a notification as read for its owner.
func (n *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := n.notifications.MarkRead(ctx, id, userID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	if payload.FirstApprover == nil {
		return nil
	}
	return n.store(ctx, &domain.Notification{
		UserID:   *payload.FirstApprover,
		TicketID: event.TicketID,
		Type:     domain.NotificationApprovalRequested,
		Message:  fmt.Sprintf("request %s awaits your approval", payload.TicketCode),
	})
}

func (n *NotificationService) handleApprovalAction(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovalActionPayload)
	if !ok {
		return nil
	}

	kind := domain.NotificationTicketApproved
	verb := "approved"
	if payload.Action == domain.ActionReject {
		kind = domain.NotificationTicketRejected
		verb = "rejected"
	}
	if err := n.store(ctx, &domain.Notification{
		UserID:   payload.RequesterID,
		TicketID: event.TicketID,
		Type:     kind,
		Message:  fmt.Sprintf("step %q %s your request", payload.StepName, verb),
	}); err != nil {
		return err
	}

	if payload.NextApprover != nil {
		return n.store(ctx, &domain.Notification{
			UserID:   *payload.NextApprover,
			TicketID: event.TicketID,
			Type:     domain.NotificationApprovalRequested,
			Message:  "a request reached your approval step",
		})
	}
	return nil
}

func (n *NotificationService) handleApprovalForwarded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovalActionPayload)
	if !ok {
		return nil
	}
	if err := n.store(ctx, &domain.Notification{
		UserID:   payload.RequesterID,
		TicketID: event.TicketID,
		Type:     domain.NotificationTicketForwarded,
		Message:  fmt.Sprintf("step %q of your request was forwarded", payload.StepName),
	}); err != nil {
		return err
	}
	if payload.ForwardedToID != nil {
		return n.store(ctx, &domain.Notification{
			UserID:   *payload.ForwardedToID,
			TicketID: event.TicketID,
			Type:     domain.NotificationApprovalRequested,
			Message:  "a request was forwarded to you for approval",
		})
	}
	return nil
}

func (n *NotificationService) store(ctx context.Context, notification *domain.Notification) error {
	if err := n.notifications.Create(ctx, notification); err != nil {
		n.logger.Warn("store notification",
			zap.Error(err),
			zap.String("user_id", notification.UserID),
			zap.String("ticket_id", notification.TicketID))
		return err
	}
	return nil
}
