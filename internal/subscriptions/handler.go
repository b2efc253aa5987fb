package subscriptions

import (
	"context"
	"net/http"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTransient, Status: http.StatusServiceUnavailable, Message: "temporarily unavailable, retry"},
	{Error: ErrForbidden, Status: http.StatusForbidden, Message: "not allowed for this role"},
	{Error: ErrPlanNotFound, Status: http.StatusNotFound, Message: "plan not found"},
	{Error: ErrSubscriptionNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
	{Error: ErrInvalidInput, Status: http.StatusBadRequest},
	{Error: ErrPlanFull, Status: http.StatusConflict, Message: "plan is full"},
	{Error: ErrPlanExpired, Status: http.StatusConflict, Message: "plan has ended"},
	{Error: ErrPlanInactive, Status: http.StatusConflict, Message: "plan is not active"},
	{Error: ErrAlreadySubscribed, Status: http.StatusConflict, Message: "already subscribed to this plan"},
	{Error: ErrInvalidStateTransition, Status: http.StatusConflict},
	{Error: ErrSweepInProgress, Status: http.StatusConflict, Message: "expiration sweep already running"},
}

// SweepRunner runs one expiration sweep pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) (SweepResult, error)
}

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers subscription routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.ListSubscriptions)
		r.Get("/{id}", h.GetSubscription)
		r.With(httputil.RequireRole(domain.RoleTrainee)).Post("/{id}", h.CreateSubscription)
		r.With(httputil.RequireRole(domain.RoleTrainee)).Put("/{id}/cancel", h.CancelSubscription)
		r.With(httputil.RequireRole(domain.RoleTrainer)).Put("/{id}/auto-renew", h.UpdateAutoRenewal)
		r.Put("/{id}/renew", h.RenewSubscription)
	})
}

// RegisterAdminRoutes registers operator routes. The caller restricts roles.
func (h *Handler) RegisterAdminRoutes(r chi.Router, runner SweepRunner) {
	r.Post("/admin/subscriptions/sweep", func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.RunOnce(r.Context())
		if err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		httputil.Success(w, http.StatusOK, result)
	})
}

// CreateSubscriptionRequest represents the request body for subscribing to a plan.
type CreateSubscriptionRequest struct {
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=credit_card paypal bank_transfer crypto"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

// UpdateAutoRenewalRequest represents the request body for toggling auto-renewal.
type UpdateAutoRenewalRequest struct {
	AutoRenew *bool `json:"auto_renew" validate:"required"`
}

// CreateSubscription handles POST /subscriptions/{planId}.
// The route shares the {id} parameter with the sibling routes; here it names a plan.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	var req CreateSubscriptionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := CreateSubscriptionInput{
		PlanID:        chi.URLParam(r, "id"),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	}
	if req.StartDate != nil {
		input.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		input.EndDate = *req.EndDate
	}

	sub, err := h.service.CreateSubscription(r.Context(), actor, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /subscriptions.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	limit, offset, err := httputil.ParsePaging(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := ListFilter{Limit: limit, Offset: offset}
	if v := q.Get("status"); v != "" {
		status := domain.SubscriptionStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Statuses = []domain.SubscriptionStatus{status}
	}
	if v := q.Get("plan_id"); v != "" {
		filter.PlanID = &v
	}
	for param, dst := range map[string]**time.Time{"ends_from": &filter.EndsFrom, "ends_before": &filter.EndsBefore} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid "+param+", expected RFC 3339")
			return
		}
		*dst = &t
	}

	subs, err := h.service.ListSubscriptions(r.Context(), actor, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Page(w, subs, limit, offset)
}

// GetSubscription handles GET /subscriptions/{id}.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	sub, err := h.service.GetSubscription(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// CancelSubscription handles PUT /subscriptions/{id}/cancel.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	sub, err := h.service.CancelSubscription(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// UpdateAutoRenewal handles PUT /subscriptions/{id}/auto-renew.
func (h *Handler) UpdateAutoRenewal(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	var req UpdateAutoRenewalRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sub, err := h.service.UpdateAutoRenewal(r.Context(), actor, chi.URLParam(r, "id"), *req.AutoRenew)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// RenewSubscription handles PUT /subscriptions/{id}/renew.
func (h *Handler) RenewSubscription(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	sub, err := h.service.RenewOwnSubscription(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}
