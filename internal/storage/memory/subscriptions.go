package memory

import (
	"context"
	"slices"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/plans"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
)

// Subscriptions returns the store as a subscriptions.Repository.
func (s *Store) Subscriptions() subscriptions.Repository {
	return subscriptionRepository{s}
}

type subscriptionRepository struct{ s *Store }

func (r subscriptionRepository) Begin(ctx context.Context) (subscriptions.UnitOfWork, error) {
	if err := r.s.acquire(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	work := r.s.st.clone()
	r.s.mu.RUnlock()
	return &unitOfWork{s: r.s, st: work}, nil
}

func (r subscriptionRepository) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	var (
		sub *domain.Subscription
		err error
	)
	r.s.read(func(st *state) { sub, err = getSubscription(st, id) })
	return sub, err
}

func (r subscriptionRepository) ListSubscriptions(_ context.Context, f subscriptions.ListFilter) ([]domain.Subscription, error) {
	result := make([]domain.Subscription, 0)
	r.s.read(func(st *state) {
		for _, sub := range st.subscriptions {
			if matches(sub, f) {
				c := withPlanTitle(st, sub)
				result = append(result, *c)
			}
		}
	})
	sortSubscriptions(result)
	return page(result, f.Limit, f.Offset), nil
}

func matches(sub *domain.Subscription, f subscriptions.ListFilter) bool {
	switch {
	case f.TraineeID != nil && sub.TraineeID != *f.TraineeID:
		return false
	case f.TrainerID != nil && sub.TrainerID != *f.TrainerID:
		return false
	case f.PlanID != nil && sub.PlanID != *f.PlanID:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, sub.Status):
		return false
	case f.EndsFrom != nil && sub.EndDate.Before(*f.EndsFrom):
		return false
	case f.EndsBefore != nil && !sub.EndDate.Before(*f.EndsBefore):
		return false
	}
	return true
}

func getSubscription(st *state, id string) (*domain.Subscription, error) {
	sub, ok := st.subscriptions[id]
	if !ok {
		return nil, subscriptions.ErrSubscriptionNotFound
	}
	return withPlanTitle(st, sub), nil
}

func withPlanTitle(st *state, sub *domain.Subscription) *domain.Subscription {
	c := sub.Clone()
	if p, ok := st.plans[sub.PlanID]; ok {
		c.PlanTitle = p.Title
	}
	return c
}

// unitOfWork holds the writer slot until Commit or Rollback.
type unitOfWork struct {
	s    *Store
	st   *state
	done bool
}

func (u *unitOfWork) Plans() subscriptions.PlanStore                { return planStore{u} }
func (u *unitOfWork) Subscriptions() subscriptions.SubscriptionStore { return subscriptionStore{u} }
func (u *unitOfWork) Notifications() subscriptions.NotificationSink  { return notificationSink{u} }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	if err := ctx.Err(); err != nil {
		u.finish()
		return err
	}
	u.s.mu.Lock()
	u.s.st = u.st
	u.s.mu.Unlock()
	u.finish()
	return nil
}

func (u *unitOfWork) Rollback(context.Context) error {
	if !u.done {
		u.finish()
	}
	return nil
}

func (u *unitOfWork) finish() {
	u.done = true
	u.st = nil
	u.s.release()
}

type planStore struct{ u *unitOfWork }

func (p planStore) GetPlanForUpdate(_ context.Context, id string) (*domain.Plan, error) {
	plan, ok := p.u.st.plans[id]
	if !ok {
		return nil, plans.ErrPlanNotFound
	}
	return &plan, nil
}

func (p planStore) AdjustParticipants(_ context.Context, id string, delta int) error {
	plan, ok := p.u.st.plans[id]
	if !ok {
		return plans.ErrPlanNotFound
	}
	next := plan.CurrentParticipants + delta
	if next > plan.MaxParticipants {
		return plans.ErrPlanFull
	}
	plan.CurrentParticipants = max(next, 0)
	plan.UpdatedAt = p.u.s.now()
	p.u.st.plans[id] = plan
	return nil
}

type subscriptionStore struct{ u *unitOfWork }

func (s subscriptionStore) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	if _, ok := s.u.st.plans[sub.PlanID]; !ok {
		return plans.ErrPlanNotFound
	}
	if sub.Status.IsOpen() && hasOpen(s.u.st, sub.TraineeID, sub.PlanID, "") {
		return subscriptions.ErrAlreadySubscribed
	}

	now := s.u.s.now()
	sub.ID = newID()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.NotificationsSent == nil {
		sub.NotificationsSent = []domain.LedgerEntry{}
	}
	s.u.st.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s subscriptionStore) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	return getSubscription(s.u.st, id)
}

func (s subscriptionStore) GetSubscriptionForUpdate(_ context.Context, id string) (*domain.Subscription, error) {
	return getSubscription(s.u.st, id)
}

func (s subscriptionStore) HasOpenSubscription(_ context.Context, traineeID, planID, excludeID string) (bool, error) {
	return hasOpen(s.u.st, traineeID, planID, excludeID), nil
}

func (s subscriptionStore) UpdateSubscription(_ context.Context, sub *domain.Subscription) error {
	stored, ok := s.u.st.subscriptions[sub.ID]
	if !ok {
		return subscriptions.ErrSubscriptionNotFound
	}
	if sub.Status.IsOpen() && !stored.Status.IsOpen() && hasOpen(s.u.st, sub.TraineeID, sub.PlanID, sub.ID) {
		return subscriptions.ErrAlreadySubscribed
	}

	sub.UpdatedAt = s.u.s.now()
	updated := sub.Clone()
	updated.PlanTitle = ""
	s.u.st.subscriptions[sub.ID] = updated
	return nil
}

func hasOpen(st *state, traineeID, planID, excludeID string) bool {
	for id, sub := range st.subscriptions {
		if id != excludeID && sub.TraineeID == traineeID && sub.PlanID == planID && sub.Status.IsOpen() {
			return true
		}
	}
	return false
}

type notificationSink struct{ u *unitOfWork }

func (n notificationSink) Emit(_ context.Context, recipientID, subscriptionID string, typ domain.NotificationType, title, message string) (*domain.SubscriptionNotification, error) {
	if _, ok := n.u.st.subscriptions[subscriptionID]; !ok {
		return nil, subscriptions.ErrSubscriptionNotFound
	}
	note := domain.SubscriptionNotification{
		ID:             newID(),
		RecipientID:    recipientID,
		SubscriptionID: subscriptionID,
		Type:           typ,
		Title:          title,
		Message:        message,
		CreatedAt:      n.u.s.now(),
	}
	n.u.st.notifications = append(n.u.st.notifications, note)
	return &note, nil
}
