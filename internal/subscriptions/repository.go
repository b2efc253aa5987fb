package subscriptions

import (
	"context"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
)

// PlanStore is the plan side of a unit of work.
type PlanStore interface {
	// GetPlanForUpdate reads the plan and holds it against concurrent
	// writers until the unit of work ends.
	GetPlanForUpdate(ctx context.Context, id string) (*domain.Plan, error)
	// AdjustParticipants moves the seat counter by delta. An increment that
	// would exceed capacity fails with ErrPlanFull; the counter never drops below zero.
	AdjustParticipants(ctx context.Context, id string, delta int) error
}

// SubscriptionStore is the subscription side of a unit of work.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	GetSubscriptionForUpdate(ctx context.Context, id string) (*domain.Subscription, error)
	// HasOpenSubscription reports whether the trainee holds an active or
	// pending subscription to the plan, ignoring excludeID.
	HasOpenSubscription(ctx context.Context, traineeID, planID, excludeID string) (bool, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error
}

// NotificationSink appends notifications within a unit of work.
type NotificationSink interface {
	Emit(ctx context.Context, recipientID, subscriptionID string, typ domain.NotificationType, title, message string) (*domain.SubscriptionNotification, error)
}

// UnitOfWork groups store operations that commit or abort together.
// Rollback after Commit is a no-op.
type UnitOfWork interface {
	Plans() PlanStore
	Subscriptions() SubscriptionStore
	Notifications() NotificationSink
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository opens units of work and serves lock-free reads.
type Repository interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, filter ListFilter) ([]domain.Subscription, error)
}

// ListFilter represents filter criteria for listing subscriptions.
// EndsFrom is inclusive and EndsBefore exclusive. A zero Limit means no limit.
type ListFilter struct {
	TraineeID  *string
	TrainerID  *string
	PlanID     *string
	Statuses   []domain.SubscriptionStatus
	EndsFrom   *time.Time
	EndsBefore *time.Time
	Limit      int
	Offset     int
}
