// Package notifications stores, renders and serves subscription notifications.
package notifications

import (
	"context"
	"fmt"

	"github.com/bissquit/gym-subscriptions/internal/domain"
)

// Service implements the recipient-facing notification operations.
type Service struct {
	repo Repository
}

// NewService creates a new notification service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the actor's notifications, newest first.
func (s *Service) List(ctx context.Context, actor domain.Actor, filter ListFilter) ([]domain.SubscriptionNotification, error) {
	filter.RecipientID = actor.ID
	items, err := s.repo.ListNotifications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkAsRead flags one of the actor's notifications as read.
// Notifications of other recipients are reported as not found.
func (s *Service) MarkAsRead(ctx context.Context, actor domain.Actor, id string) (*domain.SubscriptionNotification, error) {
	n, err := s.repo.MarkAsRead(ctx, id, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("mark notification as read: %w", err)
	}
	notificationsRead.Inc()
	return n, nil
}
