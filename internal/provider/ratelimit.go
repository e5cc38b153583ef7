package provider

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket for throttling backend calls. It never waits:
// a request without a token fails fast and the user gets the fallback.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter returns nil when perMinute is not positive, meaning unlimited.
func NewLimiter(perMinute float64, burst int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	every := time.Duration(float64(time.Minute) / perMinute)
	return &Limiter{bucket: rate.NewLimiter(rate.Every(every), burst)}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.bucket.Allow()
}
