package http

import "time"

// rateLimiter caps the number of events one connection may submit per
// minute using a fixed window that rolls over inline. It is owned by a
// single connection's read loop and must not be shared across
// goroutines. A zero or negative limit disables limiting.
type rateLimiter struct {
	limit       int
	counter     int
	windowStart time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r.limit <= 0 {
		return true
	}
	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
