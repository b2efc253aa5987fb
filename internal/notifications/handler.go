package notifications

import (
	"net/http"

	"github.com/bissquit/gym-subscriptions/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
}

// Handler handles HTTP requests for subscription notifications.
type Handler struct {
	service *Service
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/subscription-notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Put("/{id}/read", h.MarkAsRead)
	})
}

// List handles GET /subscription-notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	limit, offset, err := httputil.ParsePaging(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := ListFilter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	if id := r.URL.Query().Get("subscription_id"); id != "" {
		filter.SubscriptionID = &id
	}

	items, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Page(w, items, limit, offset)
}

// MarkAsRead handles PUT /subscription-notifications/{id}/read.
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := httputil.GetActor(r.Context())

	n, err := h.service.MarkAsRead(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}
