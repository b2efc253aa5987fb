// Package postgres provides PostgreSQL implementation of the plans repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/plans"
	"github.com/bissquit/gym-subscriptions/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is implemented by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const planColumns = `id, trainer_id, title, description, duration, max_participants,
	current_participants, is_active, start_date, end_date, price, currency,
	created_at, updated_at`

// Repository implements plans.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreatePlan inserts a plan with zero participants.
func (r *Repository) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	query := `
		INSERT INTO plans (trainer_id, title, description, duration, max_participants,
			is_active, start_date, end_date, price, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, current_participants, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		plan.TrainerID,
		plan.Title,
		plan.Description,
		plan.Duration,
		plan.MaxParticipants,
		plan.IsActive,
		plan.StartDate,
		plan.EndDate,
		plan.Price,
		plan.Currency,
	).Scan(&plan.ID, &plan.CurrentParticipants, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if postgres.IsCheckViolation(err) {
			return fmt.Errorf("%w: %s", plans.ErrInvalidPlan, postgres.Constraint(err))
		}
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by its ID.
func (r *Repository) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	return getPlan(ctx, r.db, id, false)
}

// GetPlanForUpdateTx reads a plan inside tx and locks its row until tx ends.
func (r *Repository) GetPlanForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Plan, error) {
	return getPlan(ctx, tx, id, true)
}

func getPlan(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	plan, err := scanPlan(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidInput(err) {
			return nil, plans.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// AdjustParticipantsTx moves current_participants by delta inside tx.
// Returns plans.ErrPlanFull when the increment would exceed capacity.
// Decrements stop at zero.
func (r *Repository) AdjustParticipantsTx(ctx context.Context, tx pgx.Tx, id string, delta int) error {
	query := `
		UPDATE plans
		SET current_participants = GREATEST(current_participants + $2, 0), updated_at = NOW()
		WHERE id = $1 AND current_participants + $2 <= max_participants
	`
	tag, err := tx.Exec(ctx, query, id, delta)
	if err != nil {
		if postgres.IsCheckViolation(err) {
			return plans.ErrPlanFull
		}
		return fmt.Errorf("adjust participants: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if delta > 0 {
			return plans.ErrPlanFull
		}
		return plans.ErrPlanNotFound
	}
	return nil
}

// ListPlans retrieves plans ordered by start date.
func (r *Repository) ListPlans(ctx context.Context, filter plans.ListFilter) ([]domain.Plan, error) {
	var (
		conds []string
		args  []any
	)
	if filter.TrainerID != nil {
		args = append(args, *filter.TrainerID)
		conds = append(conds, fmt.Sprintf("trainer_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active AND end_date > NOW()")
	}

	query := `SELECT ` + planColumns + ` FROM plans`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_date, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if postgres.IsInvalidInput(err) {
			return []domain.Plan{}, nil
		}
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		result = append(result, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return result, nil
}

// UpdatePlan writes every client-editable column. current_participants is
// left untouched, and the capacity CHECK rejects a max below it.
func (r *Repository) UpdatePlan(ctx context.Context, plan *domain.Plan) error {
	query := `
		UPDATE plans
		SET title = $2, description = $3, duration = $4, max_participants = $5,
			is_active = $6, start_date = $7, end_date = $8, price = $9, currency = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING current_participants, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		plan.ID,
		plan.Title,
		plan.Description,
		plan.Duration,
		plan.MaxParticipants,
		plan.IsActive,
		plan.StartDate,
		plan.EndDate,
		plan.Price,
		plan.Currency,
	).Scan(&plan.CurrentParticipants, &plan.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return plans.ErrPlanNotFound
		case postgres.IsCheckViolation(err) && postgres.Constraint(err) == "plans_capacity_check":
			return plans.ErrCapacityBelowParticipants
		case postgres.IsCheckViolation(err):
			return fmt.Errorf("%w: %s", plans.ErrInvalidPlan, postgres.Constraint(err))
		}
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

// DeletePlan deletes a plan that no subscription references.
func (r *Repository) DeletePlan(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return plans.ErrPlanHasSubscriptions
		}
		return fmt.Errorf("delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return plans.ErrPlanNotFound
	}
	return nil
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(
		&p.ID,
		&p.TrainerID,
		&p.Title,
		&p.Description,
		&p.Duration,
		&p.MaxParticipants,
		&p.CurrentParticipants,
		&p.IsActive,
		&p.StartDate,
		&p.EndDate,
		&p.Price,
		&p.Currency,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
