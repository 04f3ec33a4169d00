package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/dto"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/service"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// UsersHandler exposes auth and account endpoints.
type UsersHandler struct {
	auth          *service.AuthService
	notifications *service.NotificationService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, notificationService *service.NotificationService) *UsersHandler {
	return &UsersHandler{auth: authService, notifications: notificationService}
}

// Register handles POST /auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}

	user, token, exp, err := h.auth.Register(c.Context(), service.RegisterInput{
		Name:         req.Name,
		Email:        req.Email,
		EmployeeCode: req.EmployeeCode,
		Password:     req.Password,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authResponse(user, token, exp)})
}

// Login handles POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, exp, err := h.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(user, token, exp)})
}

// ChangePassword handles POST /auth/password/change.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.NewPassword == "" {
		return apperrors.NewValidationError("new_password required", nil)
	}
	if err := h.auth.ChangePassword(c.Context(), principal.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}

// Me handles GET /me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": userResponse(principal.User)})
}

// Notifications handles GET /me/notifications.
func (h *UsersHandler) Notifications(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	unreadOnly := c.QueryBool("unread_only", false)
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)

	list, err := h.notifications.ListForUser(c.Context(), principal.User.ID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NotificationResponse{
			ID:        list[i].ID,
			TicketID:  list[i].TicketID,
			Type:      list[i].Type,
			Message:   list[i].Message,
			IsRead:    list[i].IsRead,
			CreatedAt: list[i].CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkNotificationRead handles POST /me/notifications/:id/read.
func (h *UsersHandler) MarkNotificationRead(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.notifications.MarkRead(c.Context(), c.Params("id"), principal.User.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"read": true}})
}

func authResponse(user *domain.User, token string, exp time.Time) dto.AuthResponse {
	return dto.AuthResponse{
		User:      userResponse(user),
		Token:     token,
		ExpiresAt: exp,
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		EmployeeCode: user.EmployeeCode,
		Role:         user.Role,
		DepartmentID: user.DepartmentID,
	}
}
