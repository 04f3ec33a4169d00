package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/approval-service/internal/domain"
)

// WorkflowStepRepository persists a template's ordered approval steps.
type WorkflowStepRepository interface {
	Create(ctx context.Context, step *domain.WorkflowStep) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowStep, error)
	ListByTemplate(ctx context.Context, templateID string) ([]domain.WorkflowStep, error)
	MaxStepOrder(ctx context.Context, templateID string) (int, error)
	HasLiveInstances(ctx context.Context, templateID string) (bool, error)
	DeleteByTemplate(ctx context.Context, templateID string) error
}

type workflowStepRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowStepRepository builds the repository.
func NewWorkflowStepRepository(pool *pgxpool.Pool) WorkflowStepRepository {
	return &workflowStepRepository{pool: pool}
}

const stepColumns = `id, form_template_id, step_order, department_id, step_name, policy, quorum, created_at`

func (r *workflowStepRepository) Create(ctx context.Context, step *domain.WorkflowStep) error {
	const query = `
        INSERT INTO workflow_steps (form_template_id, step_order, department_id, step_name, policy, quorum)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return querierFrom(ctx, r.pool).QueryRow(ctx, query,
		step.FormTemplateID,
		step.StepOrder,
		step.DepartmentID,
		step.StepName,
		step.Policy,
		step.Quorum,
	).Scan(&step.ID, &step.CreatedAt)
}

func (r *workflowStepRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowStep, error) {
	row := querierFrom(ctx, r.pool).QueryRow(ctx, `SELECT `+stepColumns+` FROM workflow_steps WHERE id=$1`, id)
	return scanStep(row)
}

func (r *workflowStepRepository) ListByTemplate(ctx context.Context, templateID string) ([]domain.WorkflowStep, error) {
	const query = `SELECT ` + stepColumns + ` FROM workflow_steps WHERE form_template_id=$1 ORDER BY step_order ASC`
	rows, err := querierFrom(ctx, r.pool).Query(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowStep
	for rows.Next() {
		var step domain.WorkflowStep
		if err := rows.Scan(
			&step.ID,
			&step.FormTemplateID,
			&step.StepOrder,
			&step.DepartmentID,
			&step.StepName,
			&step.Policy,
			&step.Quorum,
			&step.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, step)
	}
	return result, rows.Err()
}

func (r *workflowStepRepository) MaxStepOrder(ctx context.Context, templateID string) (int, error) {
	const query = `SELECT COALESCE(MAX(step_order), 0) FROM workflow_steps WHERE form_template_id=$1`
	var max int
	err := querierFrom(ctx, r.pool).QueryRow(ctx, query, templateID).Scan(&max)
	return max, err
}

// HasLiveInstances reports whether any ticket approval references a step of
// this template, which freezes the template's workflow definition.
func (r *workflowStepRepository) HasLiveInstances(ctx context.Context, templateID string) (bool, error) {
	const query = `
        SELECT EXISTS(
            SELECT 1 FROM ticket_approvals ta
            JOIN workflow_steps ws ON ws.id = ta.workflow_step_id
            WHERE ws.form_template_id=$1)`
	var exists bool
	err := querierFrom(ctx, r.pool).QueryRow(ctx, query, templateID).Scan(&exists)
	return exists, err
}

func (r *workflowStepRepository) DeleteByTemplate(ctx context.Context, templateID string) error {
	_, err := querierFrom(ctx, r.pool).Exec(ctx, `DELETE FROM workflow_steps WHERE form_template_id=$1`, templateID)
	return err
}

func scanStep(row pgx.Row) (*domain.WorkflowStep, error) {
	var step domain.WorkflowStep
	if err := row.Scan(
		&step.ID,
		&step.FormTemplateID,
		&step.StepOrder,
		&step.DepartmentID,
		&step.StepName,
		&step.Policy,
		&step.Quorum,
		&step.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &step, nil
}
