package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

// TemplateService manages form templates and their workflow definitions.
// A template's step list is frozen once any ticket has instantiated it.
type TemplateService struct {
	templates   repository.FormTemplateRepository
	steps       repository.WorkflowStepRepository
	departments repository.DepartmentRepository
	tx          repository.TxManager
}

// TemplateDependencies bundles collaborators for the template service.
type TemplateDependencies struct {
	TemplateRepo   repository.FormTemplateRepository
	StepRepo       repository.WorkflowStepRepository
	DepartmentRepo repository.DepartmentRepository
	TxManager      repository.TxManager
}

// StepInput describes one workflow step in a template definition.
type StepInput struct {
	StepOrder    int
	StepName     string
	DepartmentID *string
	Policy       domain.StepPolicy
	Quorum       int
}

// TemplateInput describes a template create/update payload.
type TemplateInput struct {
	Name        string
	Description string
	FormSchema  map[string]any
	IsActive    bool
	Steps       []StepInput
}

// NewTemplateService constructs the service.
func NewTemplateService(deps TemplateDependencies) *TemplateService {
	return &TemplateService{
		templates:   deps.TemplateRepo,
		steps:       deps.StepRepo,
		departments: deps.DepartmentRepo,
		tx:          deps.TxManager,
	}
}

// CreateTemplate persists a template together with its ordered steps.
// Templates without at least one step are rejected: every request needs a
// workflow to travel.
func (s *TemplateService) CreateTemplate(ctx context.Context, input TemplateInput) (*domain.FormTemplate, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	tpl := &domain.FormTemplate{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		FormSchema:  input.FormSchema,
		IsActive:    input.IsActive,
	}
	if tpl.FormSchema == nil {
		tpl.FormSchema = map[string]any{}
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.templates.Create(ctx, tpl); err != nil {
			return err
		}
		return s.createSteps(ctx, tpl, input.Steps)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tpl, nil
}

// UpdateTemplate replaces a template's metadata and step list. The step
// list is immutable once any ticket references it; metadata edits other
// than deactivation are refused too, so in-flight approvals keep their
// meaning.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, input TemplateInput) (*domain.FormTemplate, error) {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	live, err := s.steps.HasLiveInstances(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if live {
		return nil, apperrors.NewConflict("template is referenced by tickets and cannot be modified", map[string]any{"form_template_id": id})
	}
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	tpl.Name = strings.TrimSpace(input.Name)
	tpl.Description = strings.TrimSpace(input.Description)
	tpl.IsActive = input.IsActive
	if input.FormSchema != nil {
		tpl.FormSchema = input.FormSchema
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.templates.Update(ctx, tpl); err != nil {
			return err
		}
		if err := s.steps.DeleteByTemplate(ctx, tpl.ID); err != nil {
			return err
		}
		return s.createSteps(ctx, tpl, input.Steps)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tpl, nil
}

// DeactivateTemplate hides a template from new tickets. Existing tickets
// keep their instantiated workflow.
func (s *TemplateService) DeactivateTemplate(ctx context.Context, id string) error {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if !tpl.IsActive {
		return nil
	}
	tpl.IsActive = false
	if err := s.templates.Update(ctx, tpl); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// GetTemplate loads a template with its ordered steps.
func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*domain.FormTemplate, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("form template", map[string]any{"form_template_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	steps, err := s.steps.ListByTemplate(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	tpl.Steps = steps
	return tpl, nil
}

// ListActiveTemplates returns templates available for new tickets, each
// with its steps attached.
func (s *TemplateService) ListActiveTemplates(ctx context.Context) ([]domain.FormTemplate, error) {
	list, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for i := range list {
		steps, err := s.steps.ListByTemplate(ctx, list[i].ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		list[i].Steps = steps
	}
	return list, nil
}

func (s *TemplateService) validate(ctx context.Context, input TemplateInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("template name is required", nil)
	}
	if len(input.Steps) == 0 {
		return apperrors.NewValidationError("template requires at least one workflow step", nil)
	}

	seen := make(map[int]bool, len(input.Steps))
	for _, step := range input.Steps {
		if step.StepOrder <= 0 {
			return apperrors.NewValidationError("step order must be positive", map[string]any{"step_order": step.StepOrder})
		}
		if seen[step.StepOrder] {
			return apperrors.NewValidationError("duplicate step order", map[string]any{"step_order": step.StepOrder})
		}
		seen[step.StepOrder] = true

		if strings.TrimSpace(step.StepName) == "" {
			return apperrors.NewValidationError("step name is required", map[string]any{"step_order": step.StepOrder})
		}
		switch step.Policy {
		case domain.StepPolicyAny, domain.StepPolicyAll:
		case domain.StepPolicyQuorum:
			if step.Quorum < 1 {
				return apperrors.NewValidationError("quorum must be at least 1", map[string]any{"step_order": step.StepOrder})
			}
		default:
			return apperrors.NewValidationError("unknown step policy", map[string]any{"policy": step.Policy})
		}
		if step.DepartmentID != nil {
			if _, err := s.departments.GetByID(ctx, *step.DepartmentID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperrors.NewValidationError("unknown department for step", map[string]any{
						"step_order":    step.StepOrder,
						"department_id": *step.DepartmentID,
					})
				}
				return apperrors.MapError(err)
			}
		}
	}
	return nil
}

func (s *TemplateService) createSteps(ctx context.Context, tpl *domain.FormTemplate, inputs []StepInput) error {
	tpl.Steps = tpl.Steps[:0]
	for _, in := range inputs {
		quorum := in.Quorum
		if quorum < 1 {
			quorum = 1
		}
		step := domain.WorkflowStep{
			FormTemplateID: tpl.ID,
			StepOrder:      in.StepOrder,
			DepartmentID:   in.DepartmentID,
			StepName:       strings.TrimSpace(in.StepName),
			Policy:         in.Policy,
			Quorum:         quorum,
		}
		if err := s.steps.Create(ctx, &step); err != nil {
			return err
		}
		tpl.Steps = append(tpl.Steps, step)
	}
	return nil
}
