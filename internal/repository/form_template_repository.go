package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/approval-service/internal/domain"
)

// FormTemplateRepository manages form template persistence.
type FormTemplateRepository interface {
	Create(ctx context.Context, tpl *domain.FormTemplate) error
	Update(ctx context.Context, tpl *domain.FormTemplate) error
	GetByID(ctx context.Context, id string) (*domain.FormTemplate, error)
	ListActive(ctx context.Context) ([]domain.FormTemplate, error)
}

type formTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewFormTemplateRepository builds the repository.
func NewFormTemplateRepository(pool *pgxpool.Pool) FormTemplateRepository {
	return &formTemplateRepository{pool: pool}
}

func (r *formTemplateRepository) Create(ctx context.Context, tpl *domain.FormTemplate) error {
	const query = `
        INSERT INTO form_templates (name, description, form_schema, is_active)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return querierFrom(ctx, r.pool).QueryRow(ctx, query,
		tpl.Name,
		tpl.Description,
		tpl.FormSchema,
		tpl.IsActive,
	).Scan(&tpl.ID, &tpl.CreatedAt, &tpl.UpdatedAt)
}

func (r *formTemplateRepository) Update(ctx context.Context, tpl *domain.FormTemplate) error {
	const query = `
        UPDATE form_templates SET name=$1, description=$2, form_schema=$3, is_active=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := querierFrom(ctx, r.pool).Exec(ctx, query,
		tpl.Name,
		tpl.Description,
		tpl.FormSchema,
		tpl.IsActive,
		tpl.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *formTemplateRepository) GetByID(ctx context.Context, id string) (*domain.FormTemplate, error) {
	const query = `
        SELECT id, name, description, form_schema, is_active, created_at, updated_at
        FROM form_templates WHERE id=$1`
	var tpl domain.FormTemplate
	if err := querierFrom(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Description,
		&tpl.FormSchema,
		&tpl.IsActive,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *formTemplateRepository) ListActive(ctx context.Context) ([]domain.FormTemplate, error) {
	const query = `
        SELECT id, name, description, form_schema, is_active, created_at, updated_at
        FROM form_templates WHERE is_active = TRUE ORDER BY name ASC`
	rows, err := querierFrom(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FormTemplate
	for rows.Next() {
		var tpl domain.FormTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.FormSchema, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	return result, rows.Err()
}
