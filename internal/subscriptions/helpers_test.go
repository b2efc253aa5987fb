package subscriptions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
	"github.com/bissquit/gym-subscriptions/internal/storage/memory"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var (
	trainer = domain.Actor{ID: "trainer-1", Role: domain.RoleTrainer}
	alice   = domain.Actor{ID: "trainee-alice", Role: domain.RoleTrainee}
	bob     = domain.Actor{ID: "trainee-bob", Role: domain.RoleTrainee}
	admin   = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	store *memory.Store
	repo  subscriptions.Repository
	svc   *subscriptions.Service
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRepo(t, nil, subscriptions.DefaultConfig())
}

// newFixtureWithRepo builds the engine over the memory store. wrap, when set,
// decorates the subscriptions repository handed to the engine.
func newFixtureWithRepo(t *testing.T, wrap func(subscriptions.Repository) subscriptions.Repository, cfg subscriptions.Config) *fixture {
	t.Helper()

	renderer, err := notifications.NewRenderer()
	require.NoError(t, err)

	store := memory.NewStore()
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	repo := store.Subscriptions()
	if wrap != nil {
		repo = wrap(repo)
	}

	return &fixture{
		store: store,
		repo:  repo,
		svc:   subscriptions.NewService(repo, renderer, cfg, subscriptions.WithClock(clk.Now)),
		clock: clk,
	}
}

func (f *fixture) createPlan(t *testing.T, maxParticipants int) *domain.Plan {
	t.Helper()
	now := f.clock.Now()
	plan := &domain.Plan{
		TrainerID:       trainer.ID,
		Title:           "strength basics",
		MaxParticipants: maxParticipants,
		IsActive:        true,
		StartDate:       now.Add(-day),
		EndDate:         now.Add(180 * day),
		Price:           decimal.RequireFromString("59.00"),
		Currency:        "USD",
	}
	require.NoError(t, f.store.Plans().CreatePlan(context.Background(), plan))
	return plan
}

func (f *fixture) plan(t *testing.T, id string) *domain.Plan {
	t.Helper()
	p, err := f.store.Plans().GetPlan(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) subscription(t *testing.T, id string) *domain.Subscription {
	t.Helper()
	s, err := f.store.Subscriptions().GetSubscription(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *fixture) subscribe(t *testing.T, actor domain.Actor, planID string) *domain.Subscription {
	t.Helper()
	sub, err := f.svc.CreateSubscription(context.Background(), actor, subscriptions.CreateSubscriptionInput{
		PlanID:        planID,
		PaymentMethod: domain.PaymentMethodCreditCard,
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) notificationsOf(t *testing.T, recipientID string, typ domain.NotificationType) []domain.SubscriptionNotification {
	t.Helper()
	all, err := f.store.Notifications().ListNotifications(context.Background(), notifications.ListFilter{RecipientID: recipientID})
	require.NoError(t, err)

	var out []domain.SubscriptionNotification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// expireViaSweep moves the clock to the day before sub ends and runs a sweep.
func (f *fixture) expireViaSweep(t *testing.T, sub *domain.Subscription) {
	t.Helper()
	f.clock.Set(sub.EndDate.Add(-day))
	sweeper := subscriptions.NewSweeper(f.svc, subscriptions.ExpiryPolicy{Location: time.UTC}, 0)
	res, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Expired, 1)
	require.Equal(t, domain.SubscriptionStatusExpired, f.subscription(t, sub.ID).Status)
}
