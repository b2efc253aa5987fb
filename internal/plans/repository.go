package plans

import (
	"context"

	"github.com/bissquit/gym-subscriptions/internal/domain"
)

// Repository defines the interface for plan data operations.
//
// UpdatePlan never writes current_participants; the seat counter belongs to
// the subscription engine.
type Repository interface {
	CreatePlan(ctx context.Context, plan *domain.Plan) error
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)
	ListPlans(ctx context.Context, filter ListFilter) ([]domain.Plan, error)
	UpdatePlan(ctx context.Context, plan *domain.Plan) error
	DeletePlan(ctx context.Context, id string) error
}

// ListFilter represents filter criteria for listing plans.
type ListFilter struct {
	TrainerID  *string
	ActiveOnly bool
	Limit      int
	Offset     int
}
