package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// RegisterRequest payload.
type RegisterRequest struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	EmployeeCode string  `json:"employee_code"`
	Password     string  `json:"password"`
	DepartmentID *string `json:"department_id"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UserResponse represents a platform user.
type UserResponse struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	EmployeeCode string      `json:"employee_code,omitempty"`
	Role         domain.Role `json:"role"`
	DepartmentID *string     `json:"department_id,omitempty"`
}

// AuthResponse wraps a user with its access token.
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// NotificationResponse represents one inbox entry.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	TicketID  string                  `json:"ticket_id"`
	Type      domain.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
}
