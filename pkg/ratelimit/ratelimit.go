package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter bounds the outbound request rate. A single instance is shared by
// every caller hitting the exchange, so concurrent REST calls and stream
// bootstraps draw from one budget.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing perSecond requests with a burst of the same
// size, matching the exchange's fixed per-second quota.
func New(perSecond int) *Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// Acquire blocks until a request slot frees or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
