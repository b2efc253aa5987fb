package notifications

import (
	"context"

	"github.com/bissquit/gym-subscriptions/internal/domain"
)

// Repository defines the read side of the notification store.
// Notifications are written by the subscription engine inside its unit of work.
type Repository interface {
	ListNotifications(ctx context.Context, filter ListFilter) ([]domain.SubscriptionNotification, error)
	// MarkAsRead flags the notification as read when it belongs to recipientID.
	MarkAsRead(ctx context.Context, id, recipientID string) (*domain.SubscriptionNotification, error)
}

// ListFilter represents filter criteria for listing notifications.
type ListFilter struct {
	RecipientID    string
	SubscriptionID *string
	UnreadOnly     bool
	Limit          int
	Offset         int
}
