package subscriptions

import "time"

// ExpiryPolicy decides which active subscriptions the sweep expires.
//
// A subscription is due when its end date falls on tomorrow's calendar day
// in Location. The sweep therefore flips it one day ahead of its end date,
// which doubles as the advance notice to the trainee. Subscriptions whose end
// day has already passed are not due.
type ExpiryPolicy struct {
	Location *time.Location
}

// HasExpired reports whether a subscription ending at end is due at now.
func (p ExpiryPolicy) HasExpired(end, now time.Time) bool {
	from, to := p.Window(now)
	return !end.Before(from) && end.Before(to)
}

// Window returns the half-open range [from, to) covering tomorrow in Location.
func (p ExpiryPolicy) Window(now time.Time) (from, to time.Time) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	from = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	to = time.Date(y, m, d+2, 0, 0, 0, 0, loc)
	return from, to
}
