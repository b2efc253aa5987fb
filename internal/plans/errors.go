package plans

import "errors"

// Domain errors for plans.
var (
	ErrPlanNotFound              = errors.New("plan not found")
	ErrPlanFull                  = errors.New("plan is full")
	ErrForbidden                 = errors.New("forbidden")
	ErrInvalidPlan               = errors.New("invalid plan")
	ErrCapacityBelowParticipants = errors.New("max participants is below current participants")
	ErrPlanHasSubscriptions      = errors.New("plan has subscriptions")
)
