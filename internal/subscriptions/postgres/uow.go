package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
	"github.com/jackc/pgx/v5"
)

// unitOfWork binds the plan, subscription and notification stores to one transaction.
type unitOfWork struct {
	tx   pgx.Tx
	repo *Repository
}

func (u *unitOfWork) Plans() subscriptions.PlanStore {
	return planStore{u}
}

func (u *unitOfWork) Subscriptions() subscriptions.SubscriptionStore {
	return subscriptionStore{u}
}

func (u *unitOfWork) Notifications() subscriptions.NotificationSink {
	return notificationSink{u}
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

type planStore struct{ u *unitOfWork }

func (s planStore) GetPlanForUpdate(ctx context.Context, id string) (*domain.Plan, error) {
	plan, err := s.u.repo.plans.GetPlanForUpdateTx(ctx, s.u.tx, id)
	return plan, mapError(err)
}

func (s planStore) AdjustParticipants(ctx context.Context, id string, delta int) error {
	return mapError(s.u.repo.plans.AdjustParticipantsTx(ctx, s.u.tx, id, delta))
}

type subscriptionStore struct{ u *unitOfWork }

func (s subscriptionStore) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (trainee_id, trainer_id, plan_id, status, start_date, end_date,
			payment_amount, payment_currency, payment_method, payment_status, transaction_id,
			auto_renew, notifications_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := s.u.tx.QueryRow(ctx, query,
		sub.TraineeID,
		sub.TrainerID,
		sub.PlanID,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.Payment.Amount,
		sub.Payment.Currency,
		sub.Payment.Method,
		sub.Payment.Status,
		sub.Payment.TransactionID,
		sub.AutoRenew,
		ledger(sub),
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("create subscription: %w", err))
	}
	return nil
}

func (s subscriptionStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	return getSubscription(ctx, s.u.tx, id, false)
}

func (s subscriptionStore) GetSubscriptionForUpdate(ctx context.Context, id string) (*domain.Subscription, error) {
	return getSubscription(ctx, s.u.tx, id, true)
}

func (s subscriptionStore) HasOpenSubscription(ctx context.Context, traineeID, planID, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE trainee_id = $1 AND plan_id = $2 AND status IN ('active', 'pending')
				AND ($3 = '' OR id::text <> $3)
		)
	`
	var exists bool
	if err := s.u.tx.QueryRow(ctx, query, traineeID, planID, excludeID).Scan(&exists); err != nil {
		return false, mapError(fmt.Errorf("check open subscription: %w", err))
	}
	return exists, nil
}

func (s subscriptionStore) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $2, start_date = $3, end_date = $4, payment_status = $5, transaction_id = $6,
			auto_renew = $7, notifications_sent = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := s.u.tx.QueryRow(ctx, query,
		sub.ID,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.Payment.Status,
		sub.Payment.TransactionID,
		sub.AutoRenew,
		ledger(sub),
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscriptions.ErrSubscriptionNotFound
		}
		return mapError(fmt.Errorf("update subscription: %w", err))
	}
	return nil
}

// ledger never returns nil; the column is NOT NULL.
func ledger(sub *domain.Subscription) []domain.LedgerEntry {
	if sub.NotificationsSent == nil {
		return []domain.LedgerEntry{}
	}
	return sub.NotificationsSent
}

type notificationSink struct{ u *unitOfWork }

func (s notificationSink) Emit(ctx context.Context, recipientID, subscriptionID string, typ domain.NotificationType, title, message string) (*domain.SubscriptionNotification, error) {
	n := &domain.SubscriptionNotification{
		RecipientID:    recipientID,
		SubscriptionID: subscriptionID,
		Type:           typ,
		Title:          title,
		Message:        message,
	}
	if err := s.u.repo.notifications.CreateNotificationTx(ctx, s.u.tx, n); err != nil {
		return nil, mapError(err)
	}
	return n, nil
}
