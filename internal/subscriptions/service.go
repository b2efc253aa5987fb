// Package subscriptions implements the subscription lifecycle engine:
// capacity-bounded creation, cancellation, renewal and the expiration sweep.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
	"github.com/bissquit/gym-subscriptions/internal/pkg/ctxlog"
)

// MessageRenderer renders notification titles and messages.
type MessageRenderer interface {
	Render(typ domain.NotificationType, data notifications.MessageData) (title, message string, err error)
}

// Config contains engine settings.
type Config struct {
	// MinPeriod is the shortest subscription window accepted at creation.
	MinPeriod time.Duration
	// RenewalPeriod is the length of the window a renewal starts.
	RenewalPeriod time.Duration
	// StoreTimeout bounds each unit of work. Zero disables the bound.
	StoreTimeout time.Duration
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		MinPeriod:     30 * 24 * time.Hour,
		RenewalPeriod: 30 * 24 * time.Hour,
		StoreTimeout:  5 * time.Second,
	}
}

// Service implements the subscription engine operations.
type Service struct {
	repo     Repository
	renderer MessageRenderer
	cfg      Config
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new subscription engine.
func NewService(repo Repository, renderer MessageRenderer, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		renderer: renderer,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSubscriptionInput holds data for creating a subscription.
// A zero StartDate means now; a zero EndDate means StartDate plus the minimum period.
type CreateSubscriptionInput struct {
	PlanID        string
	PaymentMethod domain.PaymentMethod
	StartDate     time.Time
	EndDate       time.Time
}

// CreateSubscription enrolls the trainee actor in a plan and takes one seat.
func (s *Service) CreateSubscription(ctx context.Context, actor domain.Actor, input CreateSubscriptionInput) (*domain.Subscription, error) {
	sub, err := s.createSubscription(ctx, actor, input)
	recordOperation("create", err)
	return sub, err
}

func (s *Service) createSubscription(ctx context.Context, actor domain.Actor, input CreateSubscriptionInput) (*domain.Subscription, error) {
	if actor.Role != domain.RoleTrainee {
		return nil, ErrForbidden
	}
	if !input.PaymentMethod.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, input.PaymentMethod)
	}

	start, end := input.StartDate, input.EndDate
	if start.IsZero() {
		start = s.now()
	}
	if end.IsZero() {
		end = start.Add(s.cfg.MinPeriod)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start date must be before end date", ErrInvalidDateRange)
	}
	if end.Sub(start) < s.cfg.MinPeriod {
		return nil, fmt.Errorf("%w: subscription must last at least %d days", ErrInvalidDateRange, days(s.cfg.MinPeriod))
	}
	// The sweep only expires subscriptions ending tomorrow, so an end date
	// closer than a day would never be expired.
	if end.Before(s.now().Add(24 * time.Hour)) {
		return nil, fmt.Errorf("%w: end date must be at least a day ahead", ErrInvalidDateRange)
	}

	var sub *domain.Subscription
	err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		plan, err := uow.Plans().GetPlanForUpdate(ctx, input.PlanID)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return ErrPlanInactive
		}
		if start.After(plan.EndDate) {
			return ErrPlanExpired
		}

		open, err := uow.Subscriptions().HasOpenSubscription(ctx, actor.ID, plan.ID, "")
		if err != nil {
			return err
		}
		if open {
			return ErrAlreadySubscribed
		}
		if !plan.HasAvailableSpots() {
			return ErrPlanFull
		}

		sub = &domain.Subscription{
			TraineeID: actor.ID,
			TrainerID: plan.TrainerID,
			PlanID:    plan.ID,
			Status:    domain.SubscriptionStatusActive,
			StartDate: start,
			EndDate:   end,
			Payment: domain.Payment{
				Amount:   plan.Price,
				Currency: plan.Currency,
				Method:   input.PaymentMethod,
				Status:   domain.PaymentStatusPending,
			},
			NotificationsSent: []domain.LedgerEntry{},
			PlanTitle:         plan.Title,
		}
		if err := uow.Subscriptions().CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := uow.Plans().AdjustParticipants(ctx, plan.ID, 1); err != nil {
			return err
		}
		return s.emit(ctx, uow, sub, plan.Title, domain.NotificationSubscriptionCreated)
	})
	if err != nil {
		return nil, err
	}

	notifications.RecordEmitted(domain.NotificationSubscriptionCreated)
	ctxlog.FromContext(ctx).Info("subscription created",
		"subscription_id", sub.ID,
		"plan_id", sub.PlanID,
		"trainee_id", sub.TraineeID,
	)
	return sub, nil
}

// CancelSubscription cancels the trainee actor's open subscription and frees its seat.
func (s *Service) CancelSubscription(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	sub, err := s.cancelSubscription(ctx, actor, id)
	recordOperation("cancel", err)
	return sub, err
}

func (s *Service) cancelSubscription(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	if actor.Role != domain.RoleTrainee {
		return nil, ErrForbidden
	}

	var sub *domain.Subscription
	err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		sub, err = lockSubscription(ctx, uow, id)
		if err != nil {
			return err
		}
		if sub.TraineeID != actor.ID || !sub.Status.IsOpen() {
			return ErrSubscriptionNotFound
		}

		sub.Status = domain.SubscriptionStatusCancelled
		sub.AutoRenew = false
		if err := uow.Subscriptions().UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return uow.Plans().AdjustParticipants(ctx, sub.PlanID, -1)
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("subscription cancelled", "subscription_id", sub.ID, "plan_id", sub.PlanID)
	return sub, nil
}

// UpdateAutoRenewal sets the auto-renew flag. Only the trainer who owns the
// subscription may change it.
func (s *Service) UpdateAutoRenewal(ctx context.Context, actor domain.Actor, id string, autoRenew bool) (*domain.Subscription, error) {
	sub, err := s.updateAutoRenewal(ctx, actor, id, autoRenew)
	recordOperation("auto_renew", err)
	return sub, err
}

func (s *Service) updateAutoRenewal(ctx context.Context, actor domain.Actor, id string, autoRenew bool) (*domain.Subscription, error) {
	if actor.Role != domain.RoleTrainer {
		return nil, ErrForbidden
	}

	var sub *domain.Subscription
	err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		sub, err = uow.Subscriptions().GetSubscriptionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.TrainerID != actor.ID {
			return ErrSubscriptionNotFound
		}
		sub.AutoRenew = autoRenew
		return uow.Subscriptions().UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RenewSubscription moves an expired subscription back to active with a
// fresh window starting now. The seat released on expiry is taken again, so
// renewal fails with ErrPlanFull when the plan filled up in the meantime.
func (s *Service) RenewSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.renew(ctx, id, func(*domain.Subscription) error { return nil })
	recordOperation("renew", err)
	return sub, err
}

// RenewOwnSubscription renews on behalf of an actor: the trainee who owns the
// subscription, or an admin or gym owner.
func (s *Service) RenewOwnSubscription(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	sub, err := s.renew(ctx, id, func(sub *domain.Subscription) error {
		if actor.Role.CanOversee() || (actor.Role == domain.RoleTrainee && sub.TraineeID == actor.ID) {
			return nil
		}
		return ErrSubscriptionNotFound
	})
	recordOperation("renew", err)
	return sub, err
}

func (s *Service) renew(ctx context.Context, id string, authorize func(*domain.Subscription) error) (*domain.Subscription, error) {
	var sub *domain.Subscription
	err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		peek, err := uow.Subscriptions().GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(peek); err != nil {
			return err
		}

		plan, err := uow.Plans().GetPlanForUpdate(ctx, peek.PlanID)
		if err != nil {
			return err
		}
		sub, err = uow.Subscriptions().GetSubscriptionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != domain.SubscriptionStatusExpired {
			return fmt.Errorf("%w: cannot renew a %s subscription", ErrInvalidStateTransition, sub.Status)
		}

		now := s.now()
		if !plan.IsActive {
			return ErrPlanInactive
		}
		if plan.HasEnded(now) {
			return ErrPlanExpired
		}
		open, err := uow.Subscriptions().HasOpenSubscription(ctx, sub.TraineeID, sub.PlanID, sub.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrAlreadySubscribed
		}
		if !plan.HasAvailableSpots() {
			return ErrPlanFull
		}

		sub.Status = domain.SubscriptionStatusActive
		sub.StartDate = now
		sub.EndDate = now.Add(s.cfg.RenewalPeriod)
		sub.DropLedgerEntries(domain.LedgerEntryExpiration)
		sub.AppendLedgerEntry(domain.LedgerEntryRenewal, now, "Renewal notification sent")
		sub.PlanTitle = plan.Title

		if err := uow.Subscriptions().UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := uow.Plans().AdjustParticipants(ctx, plan.ID, 1); err != nil {
			return err
		}
		return s.emit(ctx, uow, sub, plan.Title, domain.NotificationSubscriptionRenewed)
	})
	if err != nil {
		return nil, err
	}

	notifications.RecordEmitted(domain.NotificationSubscriptionRenewed)
	ctxlog.FromContext(ctx).Info("subscription renewed", "subscription_id", sub.ID, "end_date", sub.EndDate)
	return sub, nil
}

// ListSubscriptions lists the subscriptions visible to actor. Trainees see
// their own, trainers the ones on their plans, admins and gym owners all.
func (s *Service) ListSubscriptions(ctx context.Context, actor domain.Actor, filter ListFilter) ([]domain.Subscription, error) {
	switch {
	case actor.Role == domain.RoleTrainee:
		filter.TraineeID = &actor.ID
	case actor.Role == domain.RoleTrainer:
		filter.TrainerID = &actor.ID
	case actor.Role.CanOversee():
	default:
		return nil, ErrForbidden
	}

	subs, err := s.repo.ListSubscriptions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// GetSubscription returns a subscription visible to actor.
func (s *Service) GetSubscription(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, sub) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func canView(actor domain.Actor, sub *domain.Subscription) bool {
	switch actor.Role {
	case domain.RoleTrainee:
		return sub.TraineeID == actor.ID
	case domain.RoleTrainer:
		return sub.TrainerID == actor.ID
	}
	return actor.Role.CanOversee()
}

// lockSubscription locks the plan row and then the subscription row.
// Every writer takes the locks in this order.
func lockSubscription(ctx context.Context, uow UnitOfWork, id string) (*domain.Subscription, error) {
	peek, err := uow.Subscriptions().GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := uow.Plans().GetPlanForUpdate(ctx, peek.PlanID); err != nil {
		return nil, err
	}
	return uow.Subscriptions().GetSubscriptionForUpdate(ctx, id)
}

func (s *Service) emit(ctx context.Context, uow UnitOfWork, sub *domain.Subscription, planTitle string, typ domain.NotificationType) error {
	title, message, err := s.renderer.Render(typ, notifications.MessageData{
		PlanTitle: planTitle,
		StartDate: sub.StartDate,
		EndDate:   sub.EndDate,
		Now:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", typ, err)
	}
	if _, err := uow.Notifications().Emit(ctx, sub.TraineeID, sub.ID, typ, title, message); err != nil {
		return fmt.Errorf("emit %s: %w", typ, err)
	}
	return nil
}

// inUnitOfWork runs fn in a unit of work bounded by the store timeout.
// The unit commits when fn returns nil and is rolled back otherwise.
func (s *Service) inUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}

	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return transient(fmt.Errorf("begin unit of work: %w", err))
	}
	defer func() {
		if err := uow.Rollback(context.WithoutCancel(ctx)); err != nil {
			ctxlog.FromContext(ctx).Error("failed to rollback unit of work", "error", err)
		}
	}()

	if err := fn(ctx, uow); err != nil {
		return transient(err)
	}
	if err := uow.Commit(ctx); err != nil {
		return transient(fmt.Errorf("commit unit of work: %w", err))
	}
	return nil
}

// transient marks timeouts as ErrTransient so callers know a retry is safe.
func transient(err error) error {
	if errors.Is(err, ErrTransient) || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
