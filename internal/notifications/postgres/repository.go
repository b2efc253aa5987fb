// Package postgres provides PostgreSQL implementation of the notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
	"github.com/bissquit/gym-subscriptions/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, recipient_id, subscription_id, type, title, message, read, created_at`

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateNotificationTx appends a notification inside tx.
func (r *Repository) CreateNotificationTx(ctx context.Context, tx pgx.Tx, n *domain.SubscriptionNotification) error {
	query := `
		INSERT INTO subscription_notifications (recipient_id, subscription_id, type, title, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, read, created_at
	`
	err := tx.QueryRow(ctx, query,
		n.RecipientID,
		n.SubscriptionID,
		n.Type,
		n.Title,
		n.Message,
	).Scan(&n.ID, &n.Read, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications retrieves a recipient's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, filter notifications.ListFilter) ([]domain.SubscriptionNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM subscription_notifications WHERE recipient_id = $1`
	args := []any{filter.RecipientID}

	if filter.SubscriptionID != nil {
		args = append(args, *filter.SubscriptionID)
		query += fmt.Sprintf(" AND subscription_id = $%d", len(args))
	}
	if filter.UnreadOnly {
		query += " AND NOT read"
	}
	query += " ORDER BY created_at DESC, id"
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
			return []domain.SubscriptionNotification{}, nil
		}
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SubscriptionNotification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}

// MarkAsRead flags a recipient's notification as read.
func (r *Repository) MarkAsRead(ctx context.Context, id, recipientID string) (*domain.SubscriptionNotification, error) {
	query := `
		UPDATE subscription_notifications SET read = TRUE
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns

	n, err := scanNotification(r.db.QueryRow(ctx, query, id, recipientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidInput(err) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("mark notification as read: %w", err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (*domain.SubscriptionNotification, error) {
	var n domain.SubscriptionNotification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.SubscriptionID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
