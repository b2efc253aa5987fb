package memory

import (
	"context"
	"sort"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/plans"
)

// Plans returns the store as a plans.Repository.
func (s *Store) Plans() plans.Repository {
	return planRepository{s}
}

type planRepository struct{ s *Store }

func (r planRepository) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	return r.s.write(ctx, func(st *state) error {
		now := r.s.now()
		plan.ID = newID()
		plan.CurrentParticipants = 0
		plan.CreatedAt = now
		plan.UpdatedAt = now
		st.plans[plan.ID] = *plan
		return nil
	})
}

func (r planRepository) GetPlan(_ context.Context, id string) (*domain.Plan, error) {
	var (
		plan domain.Plan
		ok   bool
	)
	r.s.read(func(st *state) { plan, ok = st.plans[id] })
	if !ok {
		return nil, plans.ErrPlanNotFound
	}
	return &plan, nil
}

func (r planRepository) ListPlans(_ context.Context, filter plans.ListFilter) ([]domain.Plan, error) {
	now := r.s.now()
	result := make([]domain.Plan, 0)
	r.s.read(func(st *state) {
		for _, p := range st.plans {
			if filter.TrainerID != nil && p.TrainerID != *filter.TrainerID {
				continue
			}
			if filter.ActiveOnly && (!p.IsActive || !p.EndDate.After(now)) {
				continue
			}
			result = append(result, p)
		}
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func (r planRepository) UpdatePlan(ctx context.Context, plan *domain.Plan) error {
	return r.s.write(ctx, func(st *state) error {
		stored, ok := st.plans[plan.ID]
		if !ok {
			return plans.ErrPlanNotFound
		}
		if plan.MaxParticipants < stored.CurrentParticipants {
			return plans.ErrCapacityBelowParticipants
		}

		updated := *plan
		updated.CurrentParticipants = stored.CurrentParticipants
		updated.CreatedAt = stored.CreatedAt
		updated.UpdatedAt = r.s.now()
		st.plans[plan.ID] = updated

		plan.CurrentParticipants = updated.CurrentParticipants
		plan.UpdatedAt = updated.UpdatedAt
		return nil
	})
}

func (r planRepository) DeletePlan(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.plans[id]; !ok {
			return plans.ErrPlanNotFound
		}
		for _, sub := range st.subscriptions {
			if sub.PlanID == id {
				return plans.ErrPlanHasSubscriptions
			}
		}
		delete(st.plans, id)
		return nil
	})
}
