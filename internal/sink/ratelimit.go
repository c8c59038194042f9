package sink

import (
	"context"

	"golang.org/x/time/rate"
)

// newLimiter builds the per-sink token bucket of SPEC_FULL.md §4.9/§5:
// capacity and refill both equal to rps, burst capped at one second's worth
// of tokens. Retries consume a token but are never refunded.
func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		rps = 1
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}

// acquire blocks for one token, or returns ctx.Err() if cancelled first.
func acquire(ctx context.Context, l *rate.Limiter) error {
	return l.Wait(ctx)
}
