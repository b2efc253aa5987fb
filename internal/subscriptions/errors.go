package subscriptions

import (
	"errors"
	"fmt"

	"github.com/bissquit/gym-subscriptions/internal/plans"
)

// Domain errors for the subscription engine.
var (
	ErrForbidden              = errors.New("forbidden")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidDateRange       = fmt.Errorf("%w: invalid date range", ErrInvalidInput)
	ErrPlanExpired            = errors.New("plan has ended")
	ErrPlanInactive           = errors.New("plan is not active")
	ErrAlreadySubscribed      = errors.New("already subscribed to this plan")
	ErrInvalidStateTransition = errors.New("invalid subscription state transition")
	ErrTransient              = errors.New("transient store failure, retry")
	ErrSweepInProgress        = errors.New("expiration sweep already running")
)

// Plan errors shared with the plans module, so callers can match either name.
var (
	ErrPlanNotFound = plans.ErrPlanNotFound
	ErrPlanFull     = plans.ErrPlanFull
)
