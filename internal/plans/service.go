// Package plans manages trainer-led plans and their seat capacity.
package plans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/shopspring/decimal"
)

// Service implements plan business logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new plan service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreatePlanInput contains data for creating a plan.
type CreatePlanInput struct {
	Title           string
	Description     string
	Duration        string
	MaxParticipants int
	StartDate       time.Time
	EndDate         time.Time
	Price           decimal.Decimal
	Currency        string
}

// UpdatePlanInput contains the fields to change; nil fields are kept.
type UpdatePlanInput struct {
	Title           *string
	Description     *string
	Duration        *string
	MaxParticipants *int
	IsActive        *bool
	StartDate       *time.Time
	EndDate         *time.Time
	Price           *decimal.Decimal
	Currency        *string
}

// CreatePlan creates a plan owned by the calling trainer.
func (s *Service) CreatePlan(ctx context.Context, actor domain.Actor, input CreatePlanInput) (*domain.Plan, error) {
	if actor.Role != domain.RoleTrainer {
		return nil, ErrForbidden
	}
	if !input.StartDate.After(s.now()) {
		return nil, fmt.Errorf("%w: start date must be in the future", ErrInvalidPlan)
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	plan := &domain.Plan{
		TrainerID:       actor.ID,
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		Duration:        input.Duration,
		MaxParticipants: input.MaxParticipants,
		IsActive:        true,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Price:           input.Price,
		Currency:        currency,
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return plan, nil
}

// GetPlan returns a plan by ID.
func (s *Service) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// ListPlans lists plans. Trainers only see their own plans.
func (s *Service) ListPlans(ctx context.Context, actor domain.Actor, filter ListFilter) ([]domain.Plan, error) {
	if actor.Role == domain.RoleTrainer {
		filter.TrainerID = &actor.ID
	}
	plans, err := s.repo.ListPlans(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// UpdatePlan applies input to a plan owned by the calling trainer.
func (s *Service) UpdatePlan(ctx context.Context, actor domain.Actor, id string, input UpdatePlanInput) (*domain.Plan, error) {
	plan, err := s.ownedPlan(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		plan.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		plan.Description = *input.Description
	}
	if input.Duration != nil {
		plan.Duration = *input.Duration
	}
	if input.MaxParticipants != nil {
		plan.MaxParticipants = *input.MaxParticipants
	}
	if input.IsActive != nil {
		plan.IsActive = *input.IsActive
	}
	if input.StartDate != nil {
		plan.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		plan.EndDate = *input.EndDate
	}
	if input.Price != nil {
		plan.Price = *input.Price
	}
	if input.Currency != nil {
		plan.Currency = strings.ToUpper(strings.TrimSpace(*input.Currency))
	}

	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	// the store re-checks this against the locked row
	if plan.MaxParticipants < plan.CurrentParticipants {
		return nil, ErrCapacityBelowParticipants
	}

	if err := s.repo.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return plan, nil
}

// DeletePlan deletes a plan owned by the calling trainer.
// Plans referenced by any subscription cannot be deleted.
func (s *Service) DeletePlan(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := s.ownedPlan(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeletePlan(ctx, id); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func (s *Service) ownedPlan(ctx context.Context, actor domain.Actor, id string) (*domain.Plan, error) {
	if actor.Role != domain.RoleTrainer {
		return nil, ErrForbidden
	}
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if plan.TrainerID != actor.ID {
		return nil, ErrForbidden
	}
	return plan, nil
}

func validatePlan(p *domain.Plan) error {
	switch {
	case p.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidPlan)
	case p.MaxParticipants < 1:
		return fmt.Errorf("%w: max participants must be at least 1", ErrInvalidPlan)
	case !p.StartDate.Before(p.EndDate):
		return fmt.Errorf("%w: start date must be before end date", ErrInvalidPlan)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidPlan)
	case len(p.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidPlan)
	}
	return nil
}
