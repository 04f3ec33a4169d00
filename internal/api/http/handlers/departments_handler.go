package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// DepartmentsHandler manages admin department endpoints.
type DepartmentsHandler struct {
	departments repository.DepartmentRepository
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(departments repository.DepartmentRepository) *DepartmentsHandler {
	return &DepartmentsHandler{departments: departments}
}

type departmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

// Create POST /departments.
func (h *DepartmentsHandler) Create(c *fiber.Ctx) error {
	var req departmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	dept := &domain.Department{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
	}
	if req.IsActive != nil {
		dept.IsActive = *req.IsActive
	}
	if err := h.departments.Create(c.Context(), dept); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// Update PUT /departments/:id.
func (h *DepartmentsHandler) Update(c *fiber.Ctx) error {
	dept, err := h.departments.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("department", nil)
		}
		return apperrors.MapError(err)
	}
	var req departmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		dept.Name = name
	}
	dept.Description = strings.TrimSpace(req.Description)
	if req.IsActive != nil {
		dept.IsActive = *req.IsActive
	}
	if err := h.departments.Update(c.Context(), dept); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": departmentResponse(dept)})
}

// List GET /departments.
func (h *DepartmentsHandler) List(c *fiber.Ctx) error {
	list, err := h.departments.ListActive(c.Context())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]fiber.Map, 0, len(list))
	for i := range list {
		items = append(items, departmentResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func departmentResponse(dept *domain.Department) fiber.Map {
	return fiber.Map{
		"id":          dept.ID,
		"name":        dept.Name,
		"description": dept.Description,
		"is_active":   dept.IsActive,
		"created_at":  dept.CreatedAt,
		"updated_at":  dept.UpdatedAt,
	}
}
