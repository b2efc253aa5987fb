package testutil_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/gym-subscriptions/api"
	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(t *testing.T, status int, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func subscription() *domain.Subscription {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Subscription{
		ID:        "sub-1",
		TraineeID: "trainee-1",
		TrainerID: "trainer-1",
		PlanID:    "plan-1",
		Status:    domain.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   now.Add(30 * 24 * time.Hour),
		Payment: domain.Payment{
			Amount:   decimal.RequireFromString("59.00"),
			Currency: "USD",
			Method:   domain.PaymentMethodPayPal,
			Status:   domain.PaymentStatusPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOpenAPIValidator_CheckResponse(t *testing.T) {
	v, err := testutil.LoadOpenAPIValidator(api.OpenAPISpec)
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		path    string
		resp    func(t *testing.T) *http.Response
		wantErr bool
	}{
		{
			name:   "subscription with empty ledger",
			method: http.MethodGet,
			path:   "/api/v1/subscriptions/sub-1",
			resp: func(t *testing.T) *http.Response {
				return jsonResponse(t, http.StatusOK, map[string]any{"data": subscription().Clone()})
			},
		},
		{
			name:   "subscription with null ledger",
			method: http.MethodGet,
			path:   "/api/v1/subscriptions/sub-1",
			resp: func(t *testing.T) *http.Response {
				return jsonResponse(t, http.StatusOK, map[string]any{"data": subscription()})
			},
			wantErr: true,
		},
		{
			name:   "error envelope",
			method: http.MethodGet,
			path:   "/api/v1/plans/plan-1",
			resp: func(t *testing.T) *http.Response {
				return jsonResponse(t, http.StatusNotFound, map[string]any{"error": map[string]any{"message": "plan not found"}})
			},
		},
		{
			name:   "bare error message",
			method: http.MethodGet,
			path:   "/api/v1/plans/plan-1",
			resp: func(t *testing.T) *http.Response {
				return jsonResponse(t, http.StatusNotFound, map[string]any{"message": "plan not found"})
			},
			wantErr: true,
		},
		{
			name:   "undocumented status",
			method: http.MethodGet,
			path:   "/api/v1/plans/plan-1",
			resp: func(t *testing.T) *http.Response {
				return jsonResponse(t, http.StatusTeapot, map[string]any{})
			},
			wantErr: true,
		},
		{
			name:   "undocumented route",
			method: http.MethodGet,
			path:   "/api/v1/coaches",
			resp: func(t *testing.T) *http.Response {
				return jsonResponse(t, http.StatusOK, map[string]any{})
			},
			wantErr: true,
		},
		{
			name:   "health check is skipped",
			method: http.MethodGet,
			path:   "/healthz",
			resp: func(*testing.T) *http.Response {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://gym.test"+tt.path, nil)
			resp := tt.resp(t)

			err := v.CheckResponse(req, resp)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			// the body stays readable for the caller
			_, err = io.ReadAll(resp.Body)
			assert.NoError(t, err)
		})
	}
}
