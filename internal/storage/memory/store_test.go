package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
	"github.com/bissquit/gym-subscriptions/internal/plans"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlan(t *testing.T, s *Store, maxParticipants int) *domain.Plan {
	t.Helper()
	now := time.Now()
	p := &domain.Plan{
		TrainerID:       "trainer-1",
		Title:           "yoga",
		MaxParticipants: maxParticipants,
		IsActive:        true,
		StartDate:       now,
		EndDate:         now.Add(90 * 24 * time.Hour),
		Currency:        domain.DefaultCurrency,
	}
	require.NoError(t, s.Plans().CreatePlan(context.Background(), p))
	return p
}

func newSubscription(planID, traineeID string) *domain.Subscription {
	now := time.Now()
	return &domain.Subscription{
		TraineeID: traineeID,
		TrainerID: "trainer-1",
		PlanID:    planID,
		Status:    domain.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   now.Add(30 * 24 * time.Hour),
		Payment:   domain.Payment{Method: domain.PaymentMethodPayPal, Status: domain.PaymentStatusPending},
	}
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := newPlan(t, s, 2)

	tests := []struct {
		name       string
		commit     bool
		wantSubs   int
		wantSeats  int
		wantNotice int
	}{
		{name: "rollback discards", commit: false, wantSubs: 0, wantSeats: 0, wantNotice: 0},
		{name: "commit publishes", commit: true, wantSubs: 1, wantSeats: 1, wantNotice: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uow, err := s.Subscriptions().Begin(ctx)
			require.NoError(t, err)

			sub := newSubscription(plan.ID, "trainee-"+tt.name)
			require.NoError(t, uow.Subscriptions().CreateSubscription(ctx, sub))
			require.NoError(t, uow.Plans().AdjustParticipants(ctx, plan.ID, 1))
			_, err = uow.Notifications().Emit(ctx, sub.TraineeID, sub.ID, domain.NotificationSubscriptionCreated, "t", "m")
			require.NoError(t, err)

			// uncommitted work is invisible to readers
			_, err = s.Subscriptions().GetSubscription(ctx, sub.ID)
			assert.ErrorIs(t, err, subscriptions.ErrSubscriptionNotFound)

			if tt.commit {
				require.NoError(t, uow.Commit(ctx))
			} else {
				require.NoError(t, uow.Rollback(ctx))
			}
			require.NoError(t, uow.Rollback(ctx), "rollback after finish is a no-op")

			subs, err := s.Subscriptions().ListSubscriptions(ctx, subscriptions.ListFilter{TraineeID: &sub.TraineeID})
			require.NoError(t, err)
			assert.Len(t, subs, tt.wantSubs)

			stored, err := s.Plans().GetPlan(ctx, plan.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeats, stored.CurrentParticipants)

			notes, err := s.Notifications().ListNotifications(ctx, notifications.ListFilter{RecipientID: sub.TraineeID})
			require.NoError(t, err)
			assert.Len(t, notes, tt.wantNotice)
		})
	}
}

func TestUnitOfWork_SingleWriter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Subscriptions().Begin(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Commit(ctx))

	second, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Rollback(ctx))
}

func TestUnitOfWork_CommitAfterCancelDiscards(t *testing.T) {
	s := NewStore()
	plan := newPlan(t, s, 1)

	ctx, cancel := context.WithCancel(context.Background())
	uow, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Plans().AdjustParticipants(ctx, plan.ID, 1))

	cancel()
	assert.ErrorIs(t, uow.Commit(ctx), context.Canceled)

	stored, err := s.Plans().GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CurrentParticipants)
}

func TestPlanStore_AdjustParticipants(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := newPlan(t, s, 1)

	uow, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback(ctx) }()

	assert.NoError(t, uow.Plans().AdjustParticipants(ctx, plan.ID, 1))
	assert.ErrorIs(t, uow.Plans().AdjustParticipants(ctx, plan.ID, 1), plans.ErrPlanFull)
	assert.NoError(t, uow.Plans().AdjustParticipants(ctx, plan.ID, -1))
	assert.NoError(t, uow.Plans().AdjustParticipants(ctx, plan.ID, -1), "decrement floors at zero")
	assert.ErrorIs(t, uow.Plans().AdjustParticipants(ctx, "missing", 1), plans.ErrPlanNotFound)

	locked, err := uow.Plans().GetPlanForUpdate(ctx, plan.ID)
	require.NoError(t, err)
	assert.Zero(t, locked.CurrentParticipants)
}

func TestSubscriptionStore_OneOpenPerTraineeAndPlan(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := newPlan(t, s, 5)

	uow, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback(ctx) }()

	first := newSubscription(plan.ID, "trainee-a")
	require.NoError(t, uow.Subscriptions().CreateSubscription(ctx, first))
	assert.ErrorIs(t, uow.Subscriptions().CreateSubscription(ctx, newSubscription(plan.ID, "trainee-a")), subscriptions.ErrAlreadySubscribed)

	first.Status = domain.SubscriptionStatusExpired
	require.NoError(t, uow.Subscriptions().UpdateSubscription(ctx, first))

	second := newSubscription(plan.ID, "trainee-a")
	require.NoError(t, uow.Subscriptions().CreateSubscription(ctx, second))

	// reopening the expired one would make two open subscriptions
	first.Status = domain.SubscriptionStatusActive
	assert.ErrorIs(t, uow.Subscriptions().UpdateSubscription(ctx, first), subscriptions.ErrAlreadySubscribed)

	open, err := uow.Subscriptions().HasOpenSubscription(ctx, "trainee-a", plan.ID, second.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestPlanRepository_Guards(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := newPlan(t, s, 2)

	uow, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Subscriptions().CreateSubscription(ctx, newSubscription(plan.ID, "trainee-a")))
	require.NoError(t, uow.Plans().AdjustParticipants(ctx, plan.ID, 1))
	require.NoError(t, uow.Commit(ctx))

	shrink := *plan
	shrink.MaxParticipants = 0
	assert.ErrorIs(t, s.Plans().UpdatePlan(ctx, &shrink), plans.ErrCapacityBelowParticipants)

	assert.ErrorIs(t, s.Plans().DeletePlan(ctx, plan.ID), plans.ErrPlanHasSubscriptions)
	assert.ErrorIs(t, s.Plans().DeletePlan(ctx, "missing"), plans.ErrPlanNotFound)
}

func TestNotificationRepository_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	plan := newPlan(t, s, 2)

	uow, err := s.Subscriptions().Begin(ctx)
	require.NoError(t, err)
	sub := newSubscription(plan.ID, "trainee-a")
	require.NoError(t, uow.Subscriptions().CreateSubscription(ctx, sub))
	note, err := uow.Notifications().Emit(ctx, sub.TraineeID, sub.ID, domain.NotificationSubscriptionCreated, "t", "m")
	require.NoError(t, err)
	require.NoError(t, uow.Commit(ctx))

	_, err = s.Notifications().MarkAsRead(ctx, note.ID, "trainee-b")
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)

	marked, err := s.Notifications().MarkAsRead(ctx, note.ID, sub.TraineeID)
	require.NoError(t, err)
	assert.True(t, marked.Read)

	unread, err := s.Notifications().ListNotifications(ctx, notifications.ListFilter{RecipientID: sub.TraineeID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}
