package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

const (
	usageKeyPrefix = "sms:usage:"
	usageTotalKey  = "total"
	usageKeyTTL    = 48 * time.Hour
)

// ARGV: count, category field, limit (negative for none), ttl seconds.
var incrementScript = goredis.NewScript(`
local count = tonumber(ARGV[1])
local limit = tonumber(ARGV[3])
local total = tonumber(redis.call("HGET", KEYS[1], "total") or "0")
if limit >= 0 and total + count > limit then
  return 0
end
redis.call("HINCRBY", KEYS[1], "total", count)
redis.call("HINCRBY", KEYS[1], ARGV[2], count)
redis.call("EXPIRE", KEYS[1], ARGV[4])
return 1
`)

var decrementScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local count = tonumber(ARGV[1])
for _, field in ipairs({"total", ARGV[2]}) do
  local value = tonumber(redis.call("HGET", KEYS[1], field) or "0") - count
  if value < 0 then
    value = 0
  end
  redis.call("HSET", KEYS[1], field, value)
end
return 1
`)

var _ repository.UsageCounterStore = (*UsageCounter)(nil)

// UsageCounter keeps one hash per day: a "total" field plus one field per category.
type UsageCounter struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewUsageCounter(client *goredis.Client) (*UsageCounter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &UsageCounter{client: client, ttl: usageKeyTTL}, nil
}

func (u *UsageCounter) IncrementIfBelow(ctx context.Context, day string, count int, category domain.Category, limit int) (bool, error) {
	if limit < 0 {
		limit = 0
	}
	return u.increment(ctx, day, count, category, limit)
}

func (u *UsageCounter) Increment(ctx context.Context, day string, count int, category domain.Category) error {
	_, err := u.increment(ctx, day, count, category, -1)
	return err
}

func (u *UsageCounter) Decrement(ctx context.Context, day string, count int, category domain.Category) error {
	if err := validateCategory(category); err != nil {
		return err
	}
	if count <= 0 {
		return nil
	}

	err := decrementScript.Run(ctx, u.client, []string{usageKey(day)}, count, string(category)).Err()
	if err != nil {
		return fmt.Errorf("failed to decrement usage counter: %w", err)
	}
	return nil
}

func (u *UsageCounter) Get(ctx context.Context, day string) (*domain.UsageCounter, error) {
	fields, err := u.client.HGetAll(ctx, usageKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counter: %w", err)
	}

	usage := &domain.UsageCounter{
		Date:        day,
		PerCategory: make(map[domain.Category]int, len(domain.Categories)),
	}
	for _, category := range domain.Categories {
		usage.PerCategory[category] = 0
	}
	for field, raw := range fields {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid usage counter field %q: %w", field, err)
		}
		if field == usageTotalKey {
			usage.TotalSent = value
			continue
		}
		if category := domain.Category(field); category.IsValid() {
			usage.PerCategory[category] = value
		}
	}
	return usage, nil
}

func (u *UsageCounter) increment(ctx context.Context, day string, count int, category domain.Category, limit int) (bool, error) {
	if err := validateCategory(category); err != nil {
		return false, err
	}
	if count <= 0 {
		return true, nil
	}

	result, err := incrementScript.Run(ctx, u.client, []string{usageKey(day)},
		count, string(category), limit, int(u.ttl.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return result == 1, nil
}

func usageKey(day string) string {
	return usageKeyPrefix + day
}

func validateCategory(category domain.Category) error {
	if !category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", domain.ErrValidation, category)
	}
	return nil
}
