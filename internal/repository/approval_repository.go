package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/approval-service/internal/domain"
)

// ApprovalFilter narrows approver dashboard listings.
type ApprovalFilter struct {
	Actions      []domain.ApprovalAction
	DepartmentID *string
	SearchTerm   *string
	Limit        int
	Offset       int
}

// ApprovalRepository persists approval instances. Claim is the single
// concurrency-critical primitive: a conditional PENDING->terminal transition
// whose row count decides the race.
type ApprovalRepository interface {
	Create(ctx context.Context, inst *domain.ApprovalInstance) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalInstance, error)
	ExistsByTicket(ctx context.Context, ticketID string) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ApprovalInstance, error)
	FirstPending(ctx context.Context, ticketID string) (*domain.ApprovalInstance, error)
	CountPendingBefore(ctx context.Context, ticketID string, stepOrder int) (int64, error)
	ListByStepOrder(ctx context.Context, ticketID string, stepOrder int) ([]domain.ApprovalInstance, error)
	ListPendingFrom(ctx context.Context, ticketID string, stepOrder int) ([]domain.ApprovalInstance, error)
	Claim(ctx context.Context, id string, action domain.ApprovalAction, comments string, approverID *string) (bool, error)
	ListForApprover(ctx context.Context, approverID string, filter ApprovalFilter) ([]domain.ApprovalInstance, error)
	StatsForApprover(ctx context.Context, approverID string) (*domain.ApproverStats, error)
}

type approvalRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRepository instantiates the repository.
func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepository{pool: pool}
}

const approvalSelect = `
        SELECT ta.id, ta.ticket_id, ta.workflow_step_id, ta.approver_id, ta.action,
               ta.comments, ta.decided_at, ta.created_at,
               ws.step_order, ws.step_name, ws.department_id,
               COALESCE(u.name, '')
        FROM ticket_approvals ta
        JOIN workflow_steps ws ON ws.id = ta.workflow_step_id
        LEFT JOIN users u ON u.id = ta.approver_id`

func (r *approvalRepository) Create(ctx context.Context, inst *domain.ApprovalInstance) error {
	const query = `
        INSERT INTO ticket_approvals (ticket_id, workflow_step_id, approver_id, action, comments)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return querierFrom(ctx, r.pool).QueryRow(ctx, query,
		inst.TicketID,
		inst.WorkflowStepID,
		inst.ApproverID,
		inst.Action,
		inst.Comments,
	).Scan(&inst.ID, &inst.CreatedAt)
}

func (r *approvalRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalInstance, error) {
	row := querierFrom(ctx, r.pool).QueryRow(ctx, approvalSelect+` WHERE ta.id=$1`, id)
	return scanApproval(row)
}

func (r *approvalRepository) ExistsByTicket(ctx context.Context, ticketID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM ticket_approvals WHERE ticket_id=$1)`
	var exists bool
	err := querierFrom(ctx, r.pool).QueryRow(ctx, query, ticketID).Scan(&exists)
	return exists, err
}

func (r *approvalRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ApprovalInstance, error) {
	query := approvalSelect + ` WHERE ta.ticket_id=$1 ORDER BY ws.step_order ASC, ta.created_at ASC`
	rows, err := querierFrom(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

// FirstPending returns the PENDING instance with the smallest step order, or
// nil when every instance is decided.
func (r *approvalRepository) FirstPending(ctx context.Context, ticketID string) (*domain.ApprovalInstance, error) {
	query := approvalSelect + `
        WHERE ta.ticket_id=$1 AND ta.action=$2
        ORDER BY ws.step_order ASC, ta.created_at ASC
        LIMIT 1`
	row := querierFrom(ctx, r.pool).QueryRow(ctx, query, ticketID, domain.ActionPending)
	inst, err := scanApproval(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

func (r *approvalRepository) CountPendingBefore(ctx context.Context, ticketID string, stepOrder int) (int64, error) {
	const query = `
        SELECT COUNT(*)
        FROM ticket_approvals ta
        JOIN workflow_steps ws ON ws.id = ta.workflow_step_id
        WHERE ta.ticket_id=$1 AND ta.action=$2 AND ws.step_order < $3`
	var count int64
	err := querierFrom(ctx, r.pool).QueryRow(ctx, query, ticketID, domain.ActionPending, stepOrder).Scan(&count)
	return count, err
}

func (r *approvalRepository) ListByStepOrder(ctx context.Context, ticketID string, stepOrder int) ([]domain.ApprovalInstance, error) {
	query := approvalSelect + ` WHERE ta.ticket_id=$1 AND ws.step_order=$2 ORDER BY ta.created_at ASC`
	rows, err := querierFrom(ctx, r.pool).Query(ctx, query, ticketID, stepOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

func (r *approvalRepository) ListPendingFrom(ctx context.Context, ticketID string, stepOrder int) ([]domain.ApprovalInstance, error) {
	query := approvalSelect + `
        WHERE ta.ticket_id=$1 AND ta.action=$2 AND ws.step_order >= $3
        ORDER BY ws.step_order ASC, ta.created_at ASC`
	rows, err := querierFrom(ctx, r.pool).Query(ctx, query, ticketID, domain.ActionPending, stepOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

// Claim atomically transitions PENDING to the given terminal action. It
// reports false when another actor already won the race. A non-nil
// approverID binds previously unassigned instances to the acting user;
// cascade writes pass nil to leave assignment untouched.
func (r *approvalRepository) Claim(ctx context.Context, id string, action domain.ApprovalAction, comments string, approverID *string) (bool, error) {
	const query = `
        UPDATE ticket_approvals
        SET action=$2, comments=$3, approver_id=COALESCE($4, approver_id), decided_at=NOW()
        WHERE id=$1 AND action=$5`
	cmd, err := querierFrom(ctx, r.pool).Exec(ctx, query, id, action, comments, approverID, domain.ActionPending)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *approvalRepository) ListForApprover(ctx context.Context, approverID string, filter ApprovalFilter) ([]domain.ApprovalInstance, error) {
	args := []any{approverID}
	clauses := []string{"ta.approver_id=$1"}

	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			args = append(args, action)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("ta.action IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("ws.department_id=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		clauses = append(clauses, fmt.Sprintf(
			"ta.ticket_id IN (SELECT id FROM tickets WHERE LOWER(title) LIKE $%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY ta.created_at DESC LIMIT %d OFFSET %d`,
		approvalSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := querierFrom(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

func (r *approvalRepository) StatsForApprover(ctx context.Context, approverID string) (*domain.ApproverStats, error) {
	const query = `
        SELECT
            COUNT(*) FILTER (WHERE action=$2),
            COUNT(*) FILTER (WHERE action IN ($3,$4)),
            COUNT(*) FILTER (WHERE action=$3),
            COUNT(*) FILTER (WHERE action=$4)
        FROM ticket_approvals WHERE approver_id=$1`
	var stats domain.ApproverStats
	if err := querierFrom(ctx, r.pool).QueryRow(ctx, query,
		approverID,
		domain.ActionPending,
		domain.ActionApprove,
		domain.ActionReject,
	).Scan(&stats.PendingCount, &stats.ProcessedCount, &stats.ApprovedCount, &stats.RejectedCount); err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanApproval(row pgx.Row) (*domain.ApprovalInstance, error) {
	var inst domain.ApprovalInstance
	if err := row.Scan(
		&inst.ID,
		&inst.TicketID,
		&inst.WorkflowStepID,
		&inst.ApproverID,
		&inst.Action,
		&inst.Comments,
		&inst.DecidedAt,
		&inst.CreatedAt,
		&inst.StepOrder,
		&inst.StepName,
		&inst.DepartmentID,
		&inst.ApproverName,
	); err != nil {
		return nil, err
	}
	return &inst, nil
}

func scanApprovals(rows pgx.Rows) ([]domain.ApprovalInstance, error) {
	var result []domain.ApprovalInstance
	for rows.Next() {
		var inst domain.ApprovalInstance
		if err := rows.Scan(
			&inst.ID,
			&inst.TicketID,
			&inst.WorkflowStepID,
			&inst.ApproverID,
			&inst.Action,
			&inst.Comments,
			&inst.DecidedAt,
			&inst.CreatedAt,
			&inst.StepOrder,
			&inst.StepName,
			&inst.DepartmentID,
			&inst.ApproverName,
		); err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}
