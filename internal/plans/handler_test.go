package plans_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/pkg/httputil"
	"github.com/bissquit/gym-subscriptions/internal/plans"
	"github.com/bissquit/gym-subscriptions/internal/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens map[string]domain.Actor

func (t tokens) ValidateToken(_ context.Context, token string) (domain.Actor, error) {
	if actor, ok := t[token]; ok {
		return actor, nil
	}
	return domain.Actor{}, errors.New("unknown token")
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(httputil.AuthMiddleware(tokens{
		"coach":   {ID: "coach-1", Role: domain.RoleTrainer},
		"other":   {ID: "coach-2", Role: domain.RoleTrainer},
		"trainee": {ID: "trainee-1", Role: domain.RoleTrainee},
	}))
	plans.NewHandler(plans.NewService(memory.NewStore().Plans())).RegisterRoutes(r)
	return r
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func TestHandler_PlanLifecycle(t *testing.T) {
	h := newRouter()
	start := time.Now().Add(24 * time.Hour).UTC()
	valid := map[string]any{
		"title":            "Kettlebell club",
		"max_participants": 8,
		"start_date":       start,
		"end_date":         start.Add(60 * 24 * time.Hour),
		"price":            "25.00",
	}

	status, _ := call(t, h, http.MethodPost, "/plans", "trainee", valid)
	assert.Equal(t, http.StatusForbidden, status)

	past := map[string]any{
		"title":            "Too late",
		"max_participants": 8,
		"start_date":       time.Now().Add(-time.Hour),
		"end_date":         start,
	}
	status, _ = call(t, h, http.MethodPost, "/plans", "coach", past)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := call(t, h, http.MethodPost, "/plans", "coach", valid)
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		Data domain.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	plan := created.Data
	assert.Equal(t, "coach-1", plan.TrainerID)
	assert.Equal(t, domain.DefaultCurrency, plan.Currency)
	assert.Zero(t, plan.CurrentParticipants)

	tests := []struct {
		name       string
		method     string
		token      string
		body       any
		wantStatus int
	}{
		{name: "get", method: http.MethodGet, token: "trainee", wantStatus: http.StatusOK},
		{name: "patch by other trainer", method: http.MethodPatch, token: "other", body: map[string]any{"title": "mine"}, wantStatus: http.StatusForbidden},
		{name: "patch zero capacity", method: http.MethodPatch, token: "coach", body: map[string]any{"max_participants": 0}, wantStatus: http.StatusBadRequest},
		{name: "patch", method: http.MethodPatch, token: "coach", body: map[string]any{"max_participants": 10, "is_active": false}, wantStatus: http.StatusOK},
		{name: "delete by trainee", method: http.MethodDelete, token: "trainee", wantStatus: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, token: "coach", wantStatus: http.StatusNoContent},
		{name: "get deleted", method: http.MethodGet, token: "coach", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, h, tt.method, "/plans/"+plan.ID, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestHandler_ListPlans(t *testing.T) {
	h := newRouter()
	start := time.Now().Add(24 * time.Hour).UTC()
	for _, token := range []string{"coach", "coach", "other"} {
		status, _ := call(t, h, http.MethodPost, "/plans", token, map[string]any{
			"title":            "Plan of " + token,
			"max_participants": 3,
			"start_date":       start,
			"end_date":         start.Add(30 * 24 * time.Hour),
		})
		require.Equal(t, http.StatusCreated, status)
	}

	tests := []struct {
		name      string
		token     string
		query     string
		wantCount int
	}{
		{name: "trainer sees own", token: "coach", wantCount: 2},
		{name: "trainer filter ignored", token: "other", query: "?trainer_id=coach-1", wantCount: 1},
		{name: "trainee sees all", token: "trainee", wantCount: 3},
		{name: "trainee filters by trainer", token: "trainee", query: "?trainer_id=coach-2", wantCount: 1},
		{name: "paging", token: "trainee", query: "?limit=2&offset=2", wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, h, http.MethodGet, "/plans"+tt.query, tt.token, nil)
			require.Equal(t, http.StatusOK, status)
			var page struct {
				Data []domain.Plan `json:"data"`
			}
			require.NoError(t, json.Unmarshal(body, &page))
			assert.Len(t, page.Data, tt.wantCount)
		})
	}
}
