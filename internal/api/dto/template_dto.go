package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// StepRequest defines one workflow step in a template payload.
type StepRequest struct {
	StepOrder    int               `json:"step_order"`
	StepName     string            `json:"step_name"`
	DepartmentID *string           `json:"department_id"`
	Policy       domain.StepPolicy `json:"policy"`
	Quorum       int               `json:"quorum"`
}

// TemplateRequest payload for create/update.
type TemplateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	FormSchema  map[string]any `json:"form_schema"`
	IsActive    bool           `json:"is_active"`
	Steps       []StepRequest  `json:"steps"`
}

// StepResponse represents a workflow step.
type StepResponse struct {
	ID           string            `json:"id"`
	StepOrder    int               `json:"step_order"`
	StepName     string            `json:"step_name"`
	DepartmentID *string           `json:"department_id,omitempty"`
	Policy       domain.StepPolicy `json:"policy"`
	Quorum       int               `json:"quorum"`
}

// TemplateResponse represents a template with its workflow.
type TemplateResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	FormSchema  map[string]any `json:"form_schema"`
	IsActive    bool           `json:"is_active"`
	Steps       []StepResponse `json:"steps"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
