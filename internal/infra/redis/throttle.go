package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 10
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
)

// Oversized costs are admitted into an empty window so a large batch cannot starve.
// Rejected calls leave the window untouched.
var throttleScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 and current + cost > limit then
  return 0
end
current = redis.call("INCRBY", KEYS[1], cost)
if current == cost then
  redis.call("EXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

var _ ratelimit.RateLimiter = (*GatewayThrottle)(nil)

// GatewayThrottle is a fixed one-second window limiter shared by every
// instance talking to the SMS gateway. Cost counts recipients.
type GatewayThrottle struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewGatewayThrottle(client *goredis.Client, limitPerSec int) (*GatewayThrottle, error) {
	return newGatewayThrottle(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newGatewayThrottle(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*GatewayThrottle, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &GatewayThrottle{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (g *GatewayThrottle) Allow(ctx context.Context, scope string, cost int) (bool, error) {
	if g == nil || g.client == nil {
		return false, fmt.Errorf("gateway throttle is not initialized")
	}

	normalizedScope := strings.ToLower(strings.TrimSpace(scope))
	if normalizedScope == "" {
		return false, fmt.Errorf("throttle scope is required")
	}
	if cost < 1 {
		cost = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("sms:throttle:%s:%d", normalizedScope, g.now().UTC().Unix())
	result, err := throttleScript.Run(ctx, g.client, []string{key}, g.limitPerSec, cost, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate gateway throttle: %w", err)
	}

	return result == 1, nil
}

func (g *GatewayThrottle) Wait(ctx context.Context, scope string, cost int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := g.Allow(ctx, scope, cost)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := g.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
