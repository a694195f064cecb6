// Package ratelimiter throttles how fast the dispatcher accepts connections.
//
// It wraps golang.org/x/time/rate with a token bucket. A nil *RateLimiter is
// valid and means "unlimited", so callers can hold one unconditionally.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket limiting accepted connections per second.
//
// Thread safety:
// All methods are safe for concurrent use, including on a nil receiver.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with the
// given burst.
//
// Parameters:
//   - requestsPerSecond: Sustained rate. Zero disables limiting and New returns nil.
//   - burst: Bucket capacity. Zero defaults to requestsPerSecond.
//
// Example:
//
//	// 500 connections/s sustained, bursts of 1000
//	limiter := ratelimiter.New(500, 1000)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return nil
	}

	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool {
	return r != nil
}

// Allow consumes a token if one is available and never waits.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns:
//   - nil if a token was acquired (always, when unlimited)
//   - the context error if ctx finished first
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Limit returns the sustained rate, or 0 when unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}

// Burst returns the bucket capacity, or 0 when unlimited.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}
