package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls outbound throughput per scope. Cost is the weight of
// one operation, for example the number of recipients in a gateway call.
type RateLimiter interface {
	Allow(ctx context.Context, scope string, cost int) (bool, error)
	Wait(ctx context.Context, scope string, cost int) error
}

var _ RateLimiter = (*LocalLimiter)(nil)

// LocalLimiter is an in-process token bucket. Scopes share one bucket.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter allows one unit of cost per interval with the given burst.
// A non-positive interval disables limiting.
func NewLocalLimiter(interval time.Duration, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &LocalLimiter{limiter: rate.NewLimiter(limit, burst)}
}

func (l *LocalLimiter) Allow(_ context.Context, _ string, cost int) (bool, error) {
	if l == nil || l.limiter == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	return l.limiter.AllowN(time.Now(), l.clamp(cost)), nil
}

func (l *LocalLimiter) Wait(ctx context.Context, _ string, cost int) error {
	if l == nil || l.limiter == nil {
		return fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return l.limiter.WaitN(ctx, l.clamp(cost))
}

// clamp keeps oversized operations admissible once the bucket is full.
func (l *LocalLimiter) clamp(cost int) int {
	if cost < 1 {
		return 1
	}
	return min(cost, l.limiter.Burst())
}
