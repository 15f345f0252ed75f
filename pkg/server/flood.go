package server

import (
	"time"

	"golang.org/x/time/rate"
)

// floodLimiter throttles one connection's inbound lines: burst lines are
// allowed at once, refilled evenly over interval. A nil limiter allows
// everything.
type floodLimiter struct {
	lim *rate.Limiter
	now func() time.Time
}

func newFloodLimiter(burst int, interval time.Duration, now func() time.Time) *floodLimiter {
	if burst <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &floodLimiter{
		lim: rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst),
		now: now,
	}
}

func (fl *floodLimiter) allow() bool {
	if fl == nil {
		return true
	}
	return fl.lim.AllowN(fl.now(), 1)
}
