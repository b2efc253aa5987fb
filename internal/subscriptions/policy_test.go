package subscriptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryPolicy_HasExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	policy := ExpiryPolicy{Location: time.UTC}

	tests := []struct {
		name string
		end  time.Time
		want bool
	}{
		{name: "start of tomorrow", end: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), want: true},
		{name: "end of tomorrow", end: time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC), want: true},
		{name: "later today", end: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), want: false},
		{name: "already ended", end: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC), want: false},
		{name: "day after tomorrow", end: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), want: false},
		{name: "less than 24h away but tomorrow", end: now.Add(9 * time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.HasExpired(tt.end, now))
		})
	}
}

func TestExpiryPolicy_UsesLocationCalendar(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC on Mar 10 is already Mar 11 in Tokyo, so tomorrow there is Mar 12.
	now := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 12, 9, 0, 0, 0, loc)

	assert.True(t, ExpiryPolicy{Location: loc}.HasExpired(end, now))
	assert.False(t, ExpiryPolicy{Location: time.UTC}.HasExpired(end, now))
}

func TestExpiryPolicy_NilLocationIsUTC(t *testing.T) {
	now := time.Date(2026, 12, 31, 8, 0, 0, 0, time.UTC)
	from, to := ExpiryPolicy{}.Window(now)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC), to)
}
