package subscriptions_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunOnce(t *testing.T) {
	tests := []struct {
		name         string
		locker       *fakeLocker
		wantErr      error
		wantExpired  int
		wantAcquired int
	}{
		{name: "without locker", wantExpired: 1},
		{name: "lock acquired", locker: &fakeLocker{}, wantExpired: 1, wantAcquired: 1},
		{name: "lock held elsewhere", locker: &fakeLocker{held: true}, wantErr: subscriptions.ErrSweepInProgress},
		{name: "lock backend down", locker: &fakeLocker{err: errInjected}, wantErr: errInjected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			plan := f.createPlan(t, 2)
			sub := f.subscribe(t, alice, plan.ID)
			f.clock.Set(sub.EndDate.Add(-day))

			var locker subscriptions.Locker
			if tt.locker != nil {
				locker = tt.locker
			}
			scheduler := subscriptions.NewScheduler(subscriptions.DefaultSchedulerConfig(), newSweeper(f), locker, discardLogger())

			res, err := scheduler.RunOnce(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.SubscriptionStatusActive, f.subscription(t, sub.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpired, res.Expired)

			if tt.locker != nil {
				assert.Equal(t, tt.wantAcquired, tt.locker.acquired)
				assert.Equal(t, tt.locker.acquired, tt.locker.released, "lease released after the pass")
			}
		})
	}
}

func TestScheduler_StartRejectsSubSecondInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second, time.Millisecond, time.Second - time.Nanosecond} {
		t.Run(interval.String(), func(t *testing.T) {
			f := newFixture(t)
			cfg := subscriptions.DefaultSchedulerConfig()
			cfg.Interval = interval

			scheduler := subscriptions.NewScheduler(cfg, newSweeper(f), nil, discardLogger())
			assert.Error(t, scheduler.Start())
		})
	}
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	f := newFixture(t)
	plan := f.createPlan(t, 2)
	sub := f.subscribe(t, alice, plan.ID)
	f.clock.Set(sub.EndDate.Add(-day))

	cfg := subscriptions.DefaultSchedulerConfig()
	cfg.Interval = time.Second
	scheduler := subscriptions.NewScheduler(cfg, newSweeper(f), &fakeLocker{}, discardLogger())
	require.NoError(t, scheduler.Start())

	assert.Eventually(t, func() bool {
		s, err := f.store.Subscriptions().GetSubscription(context.Background(), sub.ID)
		return err == nil && s.Status == domain.SubscriptionStatusExpired
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))
	assert.Len(t, f.notificationsOf(t, alice.ID, domain.NotificationSubscriptionExpired), 1)
}

func TestScheduler_StopCancelsRunningPass(t *testing.T) {
	repo := &faultyRepository{
		listEntered: make(chan struct{}),
		listRelease: make(chan struct{}),
	}
	f := newFixtureWithRepo(t, func(r subscriptions.Repository) subscriptions.Repository {
		repo.Repository = r
		return repo
	}, subscriptions.DefaultConfig())

	cfg := subscriptions.DefaultSchedulerConfig()
	cfg.Interval = time.Second
	scheduler := subscriptions.NewScheduler(cfg, newSweeper(f), nil, discardLogger())
	require.NoError(t, scheduler.Start())

	select {
	case <-repo.listEntered:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := scheduler.Stop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(repo.listRelease)
}
