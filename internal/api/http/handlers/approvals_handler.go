package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/dto"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/repository"
	"github.com/spec-kit/approval-service/internal/service"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// ApprovalsHandler exposes the approver-facing surface of the engine.
type ApprovalsHandler struct {
	engine *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(engine *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{engine: engine}
}

// List GET /approvals.
func (h *ApprovalsHandler) List(c *fiber.Ctx) error {
	var actions []domain.ApprovalAction
	if actionsStr := c.Query("action"); actionsStr != "" {
		for _, part := range strings.Split(actionsStr, ",") {
			actions = append(actions, domain.ApprovalAction(strings.TrimSpace(part)))
		}
	}
	return h.list(c, actions)
}

// ListPending GET /approvals/pending.
func (h *ApprovalsHandler) ListPending(c *fiber.Ctx) error {
	return h.list(c, []domain.ApprovalAction{domain.ActionPending})
}

// ListProcessed GET /approvals/processed.
func (h *ApprovalsHandler) ListProcessed(c *fiber.Ctx) error {
	return h.list(c, []domain.ApprovalAction{domain.ActionApprove, domain.ActionReject, domain.ActionForward})
}

func (h *ApprovalsHandler) list(c *fiber.Ctx, actions []domain.ApprovalAction) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := repository.ApprovalFilter{Actions: actions}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	list, err := h.engine.ListForApprover(c.Context(), principal.User.ID, filter)
	if err != nil {
		return err
	}
	items := make([]dto.ApprovalResponse, 0, len(list))
	for i := range list {
		items = append(items, approvalResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Stats GET /approvals/stats.
func (h *ApprovalsHandler) Stats(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	stats, err := h.engine.GetStats(c.Context(), principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ApproverStatsResponse{
		PendingCount:   stats.PendingCount,
		ProcessedCount: stats.ProcessedCount,
		ApprovedCount:  stats.ApprovedCount,
		RejectedCount:  stats.RejectedCount,
	}})
}

// Get GET /approvals/:id.
func (h *ApprovalsHandler) Get(c *fiber.Ctx) error {
	inst, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": approvalResponse(inst)})
}

// TicketTrail GET /approvals/ticket/:ticketId.
func (h *ApprovalsHandler) TicketTrail(c *fiber.Ctx) error {
	list, err := h.engine.GetHistory(c.Context(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	items := make([]dto.ApprovalResponse, 0, len(list))
	for i := range list {
		items = append(items, approvalResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Approve POST /approvals/:id/approve.
func (h *ApprovalsHandler) Approve(c *fiber.Ctx) error {
	principal, inst, req, err := h.prepareAction(c)
	if err != nil {
		return err
	}
	if err := h.engine.Approve(c.Context(), inst.ID, req.Comment, principal.User.ID); err != nil {
		return err
	}
	return h.respondWith(c, inst.ID)
}

// Reject POST /approvals/:id/reject.
func (h *ApprovalsHandler) Reject(c *fiber.Ctx) error {
	principal, inst, req, err := h.prepareAction(c)
	if err != nil {
		return err
	}
	if err := h.engine.Reject(c.Context(), inst.ID, req.Comment, principal.User.ID); err != nil {
		return err
	}
	return h.respondWith(c, inst.ID)
}

// Forward POST /approvals/:id/forward.
func (h *ApprovalsHandler) Forward(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ForwardRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.NextApproverID == "" {
		return apperrors.NewValidationError("next_approver_id required", nil)
	}

	inst, err := h.loadEligible(c, principal)
	if err != nil {
		return err
	}
	if err := h.engine.Forward(c.Context(), inst.ID, req.NextApproverID, req.Comment, principal.User.ID); err != nil {
		return err
	}
	return h.respondWith(c, inst.ID)
}

// AvailableApprovers GET /approvals/:id/approvers.
func (h *ApprovalsHandler) AvailableApprovers(c *fiber.Ctx) error {
	approvers, err := h.engine.AvailableApprovers(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(approvers))
	for i := range approvers {
		items = append(items, userResponse(&approvers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *ApprovalsHandler) prepareAction(c *fiber.Ctx) (*auth.Principal, *domain.ApprovalInstance, *dto.ApprovalActionRequest, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, nil, nil, apperrors.NewUnauthorized("authentication required")
	}
	req := &dto.ApprovalActionRequest{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return nil, nil, nil, apperrors.NewValidationError("invalid payload", nil)
		}
	}
	inst, err := h.loadEligible(c, principal)
	if err != nil {
		return nil, nil, nil, err
	}
	return principal, inst, req, nil
}

// loadEligible resolves the instance and applies department-level
// eligibility for unassigned instances. Instances bound to a specific
// approver are enforced inside the engine.
func (h *ApprovalsHandler) loadEligible(c *fiber.Ctx, principal *auth.Principal) (*domain.ApprovalInstance, error) {
	inst, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if inst.ApproverID == nil && !principal.User.CanApprove(inst.DepartmentID) {
		return nil, apperrors.NewNotAuthorized("not eligible for this approval step")
	}
	return inst, nil
}

func (h *ApprovalsHandler) respondWith(c *fiber.Ctx, instanceID string) error {
	inst, err := h.engine.GetInstance(c.Context(), instanceID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": approvalResponse(inst)})
}
