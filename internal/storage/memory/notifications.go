package memory

import (
	"context"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
)

// Notifications returns the store as a notifications.Repository.
func (s *Store) Notifications() notifications.Repository {
	return notificationRepository{s}
}

type notificationRepository struct{ s *Store }

func (r notificationRepository) ListNotifications(_ context.Context, f notifications.ListFilter) ([]domain.SubscriptionNotification, error) {
	result := make([]domain.SubscriptionNotification, 0)
	r.s.read(func(st *state) {
		// newest first
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.RecipientID != f.RecipientID {
				continue
			}
			if f.SubscriptionID != nil && n.SubscriptionID != *f.SubscriptionID {
				continue
			}
			if f.UnreadOnly && n.Read {
				continue
			}
			result = append(result, n)
		}
	})
	return page(result, f.Limit, f.Offset), nil
}

func (r notificationRepository) MarkAsRead(ctx context.Context, id, recipientID string) (*domain.SubscriptionNotification, error) {
	var marked domain.SubscriptionNotification
	err := r.s.write(ctx, func(st *state) error {
		for i := range st.notifications {
			n := &st.notifications[i]
			if n.ID == id && n.RecipientID == recipientID {
				n.Read = true
				marked = *n
				return nil
			}
		}
		return notifications.ErrNotificationNotFound
	})
	if err != nil {
		return nil, err
	}
	return &marked, nil
}
