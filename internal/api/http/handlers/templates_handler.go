package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/dto"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/service"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// TemplatesHandler manages admin template endpoints.
type TemplatesHandler struct {
	service *service.TemplateService
}

// NewTemplatesHandler constructs handler.
func NewTemplatesHandler(templateService *service.TemplateService) *TemplatesHandler {
	return &TemplatesHandler{service: templateService}
}

// Create POST /templates.
func (h *TemplatesHandler) Create(c *fiber.Ctx) error {
	input, err := parseTemplateRequest(c)
	if err != nil {
		return err
	}
	tpl, err := h.service.CreateTemplate(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": templateResponse(tpl)})
}

// Update PUT /templates/:id.
func (h *TemplatesHandler) Update(c *fiber.Ctx) error {
	input, err := parseTemplateRequest(c)
	if err != nil {
		return err
	}
	tpl, err := h.service.UpdateTemplate(c.Context(), c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": templateResponse(tpl)})
}

// Deactivate POST /templates/:id/deactivate.
func (h *TemplatesHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.service.DeactivateTemplate(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deactivated": true}})
}

// Get GET /templates/:id.
func (h *TemplatesHandler) Get(c *fiber.Ctx) error {
	tpl, err := h.service.GetTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": templateResponse(tpl)})
}

// List GET /templates.
func (h *TemplatesHandler) List(c *fiber.Ctx) error {
	list, err := h.service.ListActiveTemplates(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.TemplateResponse, 0, len(list))
	for i := range list {
		items = append(items, templateResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTemplateRequest(c *fiber.Ctx) (service.TemplateInput, error) {
	var req dto.TemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return service.TemplateInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	steps := make([]service.StepInput, 0, len(req.Steps))
	for _, s := range req.Steps {
		policy := s.Policy
		if policy == "" {
			policy = domain.StepPolicyAny
		}
		steps = append(steps, service.StepInput{
			StepOrder:    s.StepOrder,
			StepName:     s.StepName,
			DepartmentID: s.DepartmentID,
			Policy:       policy,
			Quorum:       s.Quorum,
		})
	}
	return service.TemplateInput{
		Name:        req.Name,
		Description: req.Description,
		FormSchema:  req.FormSchema,
		IsActive:    req.IsActive,
		Steps:       steps,
	}, nil
}

func templateResponse(tpl *domain.FormTemplate) dto.TemplateResponse {
	steps := make([]dto.StepResponse, 0, len(tpl.Steps))
	for _, s := range tpl.Steps {
		steps = append(steps, dto.StepResponse{
			ID:           s.ID,
			StepOrder:    s.StepOrder,
			StepName:     s.StepName,
			DepartmentID: s.DepartmentID,
			Policy:       s.Policy,
			Quorum:       s.Quorum,
		})
	}
	return dto.TemplateResponse{
		ID:          tpl.ID,
		Name:        tpl.Name,
		Description: tpl.Description,
		FormSchema:  tpl.FormSchema,
		IsActive:    tpl.IsActive,
		Steps:       steps,
		CreatedAt:   tpl.CreatedAt,
		UpdatedAt:   tpl.UpdatedAt,
	}
}
