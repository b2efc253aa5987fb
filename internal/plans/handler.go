package plans

import (
	"net/http"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrPlanNotFound, Status: http.StatusNotFound, Message: "plan not found"},
	{Error: ErrForbidden, Status: http.StatusForbidden, Message: "only the owning trainer can manage this plan"},
	{Error: ErrInvalidPlan, Status: http.StatusBadRequest},
	{Error: ErrCapacityBelowParticipants, Status: http.StatusConflict},
	{Error: ErrPlanHasSubscriptions, Status: http.StatusConflict, Message: "plan has subscriptions and cannot be deleted"},
}

// Handler handles HTTP requests for the plans module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new plans handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers plan routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.Get("/", h.ListPlans)
		r.Post("/", h.CreatePlan)
		r.Get("/{id}", h.GetPlan)
		r.Patch("/{id}", h.UpdatePlan)
		r.Delete("/{id}", h.DeletePlan)
	})
}

// CreatePlanRequest represents the request body for creating a plan.
type CreatePlanRequest struct {
	Title           string          `json:"title" validate:"required,min=1,max=255"`
	Description     string          `json:"description" validate:"max=5000"`
	Duration        string          `json:"duration" validate:"max=100"`
	MaxParticipants int             `json:"max_participants" validate:"required,min=1"`
	StartDate       time.Time       `json:"start_date" validate:"required"`
	EndDate         time.Time       `json:"end_date" validate:"required"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
}

// UpdatePlanRequest represents the request body for updating a plan.
// current_participants is not accepted.
type UpdatePlanRequest struct {
	Title           *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Description     *string          `json:"description" validate:"omitempty,max=5000"`
	Duration        *string          `json:"duration" validate:"omitempty,max=100"`
	MaxParticipants *int             `json:"max_participants" validate:"omitempty,min=1"`
	IsActive        *bool            `json:"is_active"`
	StartDate       *time.Time       `json:"start_date"`
	EndDate         *time.Time       `json:"end_date"`
	Price           *decimal.Decimal `json:"price"`
	Currency        *string          `json:"currency" validate:"omitempty,len=3,alpha"`
}

// CreatePlan handles POST /plans.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	var req CreatePlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), actor, CreatePlanInput{
		Title:           req.Title,
		Description:     req.Description,
		Duration:        req.Duration,
		MaxParticipants: req.MaxParticipants,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Price:           req.Price,
		Currency:        req.Currency,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, plan)
}

// GetPlan handles GET /plans/{id}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, plan)
}

// ListPlans handles GET /plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	limit, offset, err := httputil.ParsePaging(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := ListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	if trainerID := r.URL.Query().Get("trainer_id"); trainerID != "" {
		filter.TrainerID = &trainerID
	}

	plans, err := h.service.ListPlans(r.Context(), actor, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Page(w, plans, limit, offset)
}

// UpdatePlan handles PATCH /plans/{id}.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	var req UpdatePlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	plan, err := h.service.UpdatePlan(r.Context(), actor, chi.URLParam(r, "id"), UpdatePlanInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, plan)
}

// DeletePlan handles DELETE /plans/{id}.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	if err := h.service.DeletePlan(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
