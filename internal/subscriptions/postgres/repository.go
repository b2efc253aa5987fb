// Package postgres provides the PostgreSQL unit of work behind the subscription engine.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	notificationspg "github.com/bissquit/gym-subscriptions/internal/notifications/postgres"
	"github.com/bissquit/gym-subscriptions/internal/plans"
	planspg "github.com/bissquit/gym-subscriptions/internal/plans/postgres"
	"github.com/bissquit/gym-subscriptions/internal/pkg/postgres"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `s.id, s.trainee_id, s.trainer_id, s.plan_id, s.status, s.start_date, s.end_date,
	s.payment_amount, s.payment_currency, s.payment_method, s.payment_status, s.transaction_id,
	s.auto_renew, s.notifications_sent, s.created_at, s.updated_at, p.title`

const subscriptionFrom = ` FROM subscriptions s JOIN plans p ON p.id = s.plan_id`

// Repository implements subscriptions.Repository using PostgreSQL.
// Units of work run in READ COMMITTED and serialize writers with row locks.
type Repository struct {
	db            *pgxpool.Pool
	plans         *planspg.Repository
	notifications *notificationspg.Repository
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool, plans *planspg.Repository, notifications *notificationspg.Repository) *Repository {
	return &Repository{db: db, plans: plans, notifications: notifications}
}

// Begin starts a database transaction wrapped as a unit of work.
func (r *Repository) Begin(ctx context.Context) (subscriptions.UnitOfWork, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, mapError(fmt.Errorf("begin transaction: %w", err))
	}
	return &unitOfWork{tx: tx, repo: r}, nil
}

// GetSubscription retrieves a subscription by ID without locking it.
func (r *Repository) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	return getSubscription(ctx, r.db, id, false)
}

// ListSubscriptions retrieves subscriptions ordered by end date.
func (r *Repository) ListSubscriptions(ctx context.Context, filter subscriptions.ListFilter) ([]domain.Subscription, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.TraineeID != nil {
		add("s.trainee_id = $%d", *filter.TraineeID)
	}
	if filter.TrainerID != nil {
		add("s.trainer_id = $%d", *filter.TrainerID)
	}
	if filter.PlanID != nil {
		add("s.plan_id = $%d", *filter.PlanID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		add("s.status = ANY($%d)", statuses)
	}
	if filter.EndsFrom != nil {
		add("s.end_date >= $%d", *filter.EndsFrom)
	}
	if filter.EndsBefore != nil {
		add("s.end_date < $%d", *filter.EndsBefore)
	}

	query := `SELECT ` + subscriptionColumns + subscriptionFrom
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.end_date, s.id"
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
			return []domain.Subscription{}, nil
		}
		return nil, mapError(fmt.Errorf("list subscriptions: %w", err))
	}
	defer rows.Close()

	result := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		result = append(result, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate subscriptions: %w", err))
	}
	return result, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getSubscription(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + subscriptionFrom + ` WHERE s.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF s`
	}

	sub, err := scanSubscription(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidInput(err) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, mapError(fmt.Errorf("get subscription: %w", err))
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID,
		&s.TraineeID,
		&s.TrainerID,
		&s.PlanID,
		&s.Status,
		&s.StartDate,
		&s.EndDate,
		&s.Payment.Amount,
		&s.Payment.Currency,
		&s.Payment.Method,
		&s.Payment.Status,
		&s.Payment.TransactionID,
		&s.AutoRenew,
		&s.NotificationsSent,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.PlanTitle,
	)
	if err != nil {
		return nil, err
	}
	if s.NotificationsSent == nil {
		s.NotificationsSent = []domain.LedgerEntry{}
	}
	return &s, nil
}

// mapError translates driver errors into engine errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case postgres.IsTransient(err):
		return fmt.Errorf("%w: %w", subscriptions.ErrTransient, err)
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", subscriptions.ErrAlreadySubscribed, err)
	case postgres.IsCheckViolation(err) && postgres.Constraint(err) == "plans_capacity_check":
		return fmt.Errorf("%w: %w", plans.ErrPlanFull, err)
	}
	return err
}
