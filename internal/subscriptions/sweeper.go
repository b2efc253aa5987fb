package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
	"github.com/bissquit/gym-subscriptions/internal/pkg/ctxlog"
	"golang.org/x/time/rate"
)

// expirationLedgerMessage is recorded with every expiration ledger entry.
const expirationLedgerMessage = "Expiration notification sent"

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper expires due subscriptions and notifies their trainees, at most
// once per expiration.
type Sweeper struct {
	svc     *Service
	policy  ExpiryPolicy
	limiter *rate.Limiter

	mu sync.Mutex
}

// NewSweeper creates a sweeper. ratePerSecond caps how many subscriptions
// are expired per second; zero or less means unlimited.
func NewSweeper(svc *Service, policy ExpiryPolicy, ratePerSecond float64) *Sweeper {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Sweeper{
		svc:     svc,
		policy:  policy,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run performs one sweep pass over active subscriptions.
//
// Each due subscription is re-read under lock and expired in its own unit of
// work, so a failure affects only that record. Run returns ErrSweepInProgress
// without doing anything when another pass of this sweeper is running.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	if !s.mu.TryLock() {
		recordSweep(SweepResult{}, ErrSweepInProgress, 0)
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.run(ctx)
	recordSweep(result, err, time.Since(start))
	return result, err
}

func (s *Sweeper) run(ctx context.Context) (SweepResult, error) {
	logger := ctxlog.FromContext(ctx)
	var result SweepResult

	now := s.svc.now()
	from, to := s.policy.Window(now)
	candidates, err := s.svc.repo.ListSubscriptions(ctx, ListFilter{
		Statuses:   []domain.SubscriptionStatus{domain.SubscriptionStatusActive},
		EndsFrom:   &from,
		EndsBefore: &to,
	})
	if err != nil {
		return result, fmt.Errorf("list active subscriptions: %w", err)
	}

	for i := range candidates {
		c := &candidates[i]
		result.Scanned++

		if !s.policy.HasExpired(c.EndDate, now) || c.HasLedgerEntry(domain.LedgerEntryExpiration) {
			result.Skipped++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("sweep interrupted: %w", err)
		}

		expired, err := s.expire(ctx, c.ID, now)
		switch {
		case err != nil:
			result.Failed++
			logger.Error("failed to expire subscription", "subscription_id", c.ID, "error", err)
			if ctx.Err() != nil {
				return result, fmt.Errorf("sweep interrupted: %w", ctx.Err())
			}
		case expired:
			result.Expired++
			logger.Info("subscription expired", "subscription_id", c.ID, "end_date", c.EndDate)
		default:
			result.Skipped++
		}
	}

	return result, nil
}

// expire flips one subscription to expired. It reports false when the locked
// row is no longer due, e.g. because a concurrent pass already expired it.
func (s *Sweeper) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	expired := false
	err := s.svc.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		peek, err := uow.Subscriptions().GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		plan, err := uow.Plans().GetPlanForUpdate(ctx, peek.PlanID)
		if err != nil {
			return err
		}
		sub, err := uow.Subscriptions().GetSubscriptionForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if sub.Status != domain.SubscriptionStatusActive ||
			!s.policy.HasExpired(sub.EndDate, now) ||
			sub.HasLedgerEntry(domain.LedgerEntryExpiration) {
			return nil
		}

		if err := s.svc.emit(ctx, uow, sub, plan.Title, domain.NotificationSubscriptionExpired); err != nil {
			return err
		}
		sub.Status = domain.SubscriptionStatusExpired
		sub.AppendLedgerEntry(domain.LedgerEntryExpiration, now, expirationLedgerMessage)
		if err := uow.Subscriptions().UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := uow.Plans().AdjustParticipants(ctx, plan.ID, -1); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	if expired {
		notifications.RecordEmitted(domain.NotificationSubscriptionExpired)
	}
	return expired, nil
}
