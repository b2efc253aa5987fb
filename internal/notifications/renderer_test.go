package notifications

import (
	"testing"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	assert.Len(t, r.templates, 4)
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	data := MessageData{
		PlanTitle: "morning HIIT",
		StartDate: now,
		EndDate:   now.Add(72*time.Hour + time.Minute),
		Now:       now,
	}

	tests := []struct {
		typ       domain.NotificationType
		wantTitle string
		contains  []string
	}{
		{
			typ:       domain.NotificationSubscriptionCreated,
			wantTitle: "Subscription Confirmed",
			contains:  []string{"Your subscription to Morning HIIT has been successfully created.", "Jun 4, 2026"},
		},
		{
			typ:       domain.NotificationSubscriptionExpiring,
			wantTitle: "Subscription Expiring Soon",
			contains:  []string{"will expire in 4 days"},
		},
		{
			typ:       domain.NotificationSubscriptionExpired,
			wantTitle: "Subscription Expired",
			contains:  []string{"Morning HIIT has expired"},
		},
		{
			typ:       domain.NotificationSubscriptionRenewed,
			wantTitle: "Subscription Renewed",
			contains:  []string{"successfully renewed until Jun 4, 2026"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			title, msg, err := r.Render(tt.typ, data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, title)
			for _, s := range tt.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestRenderer_UnknownType(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render("subscription_paused", MessageData{})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, daysLeft(now.Add(-time.Hour), now))
	assert.Equal(t, 1, daysLeft(now.Add(time.Hour), now))
	assert.Equal(t, 1, daysLeft(now.Add(24*time.Hour), now))
	assert.Equal(t, 2, daysLeft(now.Add(25*time.Hour), now))
}
