package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"go.uber.org/zap"
)

const usageDayLayout = "2006-01-02"

// Reservation is quota taken ahead of a gateway call. Release hands it back
// when the call did not deliver.
type Reservation struct {
	Day      string
	Count    int
	Category domain.Category
}

// QuotaGuard enforces the daily send limit. A limit of zero or less disables it.
type QuotaGuard struct {
	counter  repository.UsageCounterStore
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewQuotaGuard(counter repository.UsageCounterStore, location *time.Location, logger *zap.Logger) (*QuotaGuard, error) {
	if counter == nil {
		return nil, fmt.Errorf("usage counter store is required")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QuotaGuard{
		counter:  counter,
		location: location,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Today is the current usage day in the configured timezone.
func (g *QuotaGuard) Today() string {
	return g.now().In(g.location).Format(usageDayLayout)
}

// CanSend reports whether count more messages fit under limit today. The answer
// is advisory; Reserve is the authoritative check.
func (g *QuotaGuard) CanSend(ctx context.Context, count, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if count > limit {
		return false, nil
	}

	usage, err := g.counter.Get(ctx, g.Today())
	if err != nil {
		return false, fmt.Errorf("failed to read sms usage: %w", err)
	}
	return usage.TotalSent+count <= limit, nil
}

// Reserve atomically takes count from today's quota. It returns false, and
// changes nothing, when the reservation would exceed limit. Without a limit
// nothing is reserved and successful sends are counted with RecordSent.
func (g *QuotaGuard) Reserve(ctx context.Context, count int, category domain.Category, limit int) (Reservation, bool, error) {
	res := Reservation{Day: g.Today(), Count: count, Category: category}
	if count <= 0 || limit <= 0 {
		return Reservation{Day: res.Day, Category: category}, true, nil
	}

	ok, err := g.counter.IncrementIfBelow(ctx, res.Day, count, category, limit)
	if err != nil {
		return Reservation{}, false, fmt.Errorf("failed to reserve sms quota: %w", err)
	}
	if !ok {
		return Reservation{}, false, nil
	}
	return res, true, nil
}

// Release returns a reservation to the day it was taken from.
func (g *QuotaGuard) Release(ctx context.Context, res Reservation) error {
	if res.Count <= 0 {
		return nil
	}
	if err := g.counter.Decrement(ctx, res.Day, res.Count, res.Category); err != nil {
		return fmt.Errorf("failed to release sms quota: %w", err)
	}

	g.logger.Debug("sms quota released",
		zap.String("day", res.Day),
		zap.Int("count", res.Count),
		zap.String("category", res.Category.String()),
	)
	return nil
}

// RecordSent counts delivered messages without checking the limit.
func (g *QuotaGuard) RecordSent(ctx context.Context, count int, category domain.Category) error {
	if count <= 0 {
		return nil
	}
	if err := g.counter.Increment(ctx, g.Today(), count, category); err != nil {
		return fmt.Errorf("failed to record sms usage: %w", err)
	}
	return nil
}

// Usage returns today's counter. Days without sends report zero.
func (g *QuotaGuard) Usage(ctx context.Context) (*domain.UsageCounter, error) {
	usage, err := g.counter.Get(ctx, g.Today())
	if err != nil {
		return nil, fmt.Errorf("failed to read sms usage: %w", err)
	}
	return usage, nil
}
