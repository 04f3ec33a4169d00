package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/dto"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/repository"
	"github.com/spec-kit/approval-service/internal/service"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// TicketsHandler manages requester-facing ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.FormTemplateID == "" || req.DepartmentID == "" || req.Title == "" {
		return apperrors.NewValidationError("form_template_id, department_id, title required", nil)
	}

	approvers := make(map[int]string, len(req.Approvers))
	for _, a := range req.Approvers {
		approvers[a.StepOrder] = a.ApproverID
	}
	detail, err := h.service.CreateTicket(c.Context(), principal.User.ID, service.TicketCreateInput{
		FormTemplateID: req.FormTemplateID,
		DepartmentID:   req.DepartmentID,
		Title:          req.Title,
		Description:    req.Description,
		FormData:       req.FormData,
		DueDate:        req.DueDate,
		Approvers:      approvers,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(detail)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter := parseUserTicketQuery(c)
	tickets, err := h.service.ListUserTickets(c.Context(), principal.User.ID, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	detail, err := h.service.GetTicketForUser(c.Context(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// GetTicketByCode GET /tickets/code/:code.
func (h *TicketsHandler) GetTicketByCode(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	detail, err := h.service.GetTicketByCode(c.Context(), principal.User, c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateContent(c.Context(), principal.User.ID, c.Params("id"), service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		FormData:    req.FormData,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CancelTicket POST /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.CancelTicket(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListAllTickets GET /admin/tickets.
func (h *TicketsHandler) ListAllTickets(c *fiber.Ctx) error {
	filter := repository.TicketFilter{}
	if requester := c.Query("requester_id"); requester != "" {
		filter.RequesterID = &requester
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	tickets, err := h.service.ListAllTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetHistory GET /tickets/:id/history.
func (h *TicketsHandler) GetHistory(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	entries, err := h.service.ListHistory(c.Context(), principal.User, c.Params("id"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

func parseUserTicketQuery(c *fiber.Ctx) service.TicketUserFilter {
	filter := service.TicketUserFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		TicketCode:     ticket.TicketCode,
		FormTemplateID: ticket.FormTemplateID,
		DepartmentID:   ticket.DepartmentID,
		Title:          ticket.Title,
		Status:         ticket.Status,
		DueDate:        ticket.DueDate,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	ticket := detail.Ticket
	approvals := make([]dto.ApprovalResponse, 0, len(detail.Approvals))
	for i := range detail.Approvals {
		approvals = append(approvals, approvalResponse(&detail.Approvals[i]))
	}
	resp := dto.TicketDetailResponse{
		ID:             ticket.ID,
		TicketCode:     ticket.TicketCode,
		RequesterID:    ticket.RequesterID,
		FormTemplateID: ticket.FormTemplateID,
		DepartmentID:   ticket.DepartmentID,
		Title:          ticket.Title,
		Description:    ticket.Description,
		FormData:       ticket.FormData,
		Status:         ticket.Status,
		DueDate:        ticket.DueDate,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		Approvals:      approvals,
	}
	if detail.NextPending != nil {
		next := approvalResponse(detail.NextPending)
		resp.NextPending = &next
	}
	return resp
}

func approvalResponse(inst *domain.ApprovalInstance) dto.ApprovalResponse {
	return dto.ApprovalResponse{
		ID:           inst.ID,
		TicketID:     inst.TicketID,
		StepOrder:    inst.StepOrder,
		StepName:     inst.StepName,
		DepartmentID: inst.DepartmentID,
		ApproverID:   inst.ApproverID,
		ApproverName: inst.ApproverName,
		Action:       inst.Action,
		Comments:     inst.Comments,
		DecidedAt:    inst.DecidedAt,
		CreatedAt:    inst.CreatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ActorID:    entry.ActorID,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}
