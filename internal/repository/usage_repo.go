package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"gorm.io/gorm"
)

// UsageCounterStore keeps per-day send counters. Every method is a single
// statement, so concurrent callers in any number of processes stay consistent.
type UsageCounterStore interface {
	// IncrementIfBelow adds count to the day's total and category counters only if
	// the new total stays within limit. It reports whether the increment happened.
	IncrementIfBelow(ctx context.Context, day string, count int, category domain.Category, limit int) (bool, error)
	Increment(ctx context.Context, day string, count int, category domain.Category) error
	Decrement(ctx context.Context, day string, count int, category domain.Category) error
	Get(ctx context.Context, day string) (*domain.UsageCounter, error)
}

type GormUsageCounter struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormUsageCounter(db *gorm.DB) *GormUsageCounter {
	return &GormUsageCounter{db: db, now: time.Now}
}

func (r *GormUsageCounter) IncrementIfBelow(ctx context.Context, day string, count int, category domain.Category, limit int) (bool, error) {
	column, err := usageColumn(category)
	if err != nil {
		return false, err
	}
	if count <= 0 {
		return true, nil
	}
	// The insert branch is not guarded by the WHERE clause below.
	if count > limit {
		return false, nil
	}

	now := r.now().UTC()
	statement := fmt.Sprintf(`INSERT INTO sms_usage_counters (usage_date, total_sent, %[1]s, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (usage_date) DO UPDATE SET
	total_sent = sms_usage_counters.total_sent + excluded.total_sent,
	%[1]s = sms_usage_counters.%[1]s + excluded.%[1]s,
	updated_at = excluded.updated_at
WHERE sms_usage_counters.total_sent + excluded.total_sent <= ?`, column)

	result := r.db.WithContext(ctx).Exec(statement, day, count, count, now, now, limit)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormUsageCounter) Increment(ctx context.Context, day string, count int, category domain.Category) error {
	column, err := usageColumn(category)
	if err != nil {
		return err
	}
	if count <= 0 {
		return nil
	}

	now := r.now().UTC()
	statement := fmt.Sprintf(`INSERT INTO sms_usage_counters (usage_date, total_sent, %[1]s, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (usage_date) DO UPDATE SET
	total_sent = sms_usage_counters.total_sent + excluded.total_sent,
	%[1]s = sms_usage_counters.%[1]s + excluded.%[1]s,
	updated_at = excluded.updated_at`, column)

	return r.db.WithContext(ctx).Exec(statement, day, count, count, now, now).Error
}

// Decrement subtracts count from the day's counters without going below zero.
func (r *GormUsageCounter) Decrement(ctx context.Context, day string, count int, category domain.Category) error {
	column, err := usageColumn(category)
	if err != nil {
		return err
	}
	if count <= 0 {
		return nil
	}

	statement := fmt.Sprintf(`UPDATE sms_usage_counters SET
	total_sent = CASE WHEN total_sent >= ? THEN total_sent - ? ELSE 0 END,
	%[1]s = CASE WHEN %[1]s >= ? THEN %[1]s - ? ELSE 0 END,
	updated_at = ?
WHERE usage_date = ?`, column)

	return r.db.WithContext(ctx).Exec(statement, count, count, count, count, r.now().UTC(), day).Error
}

// Get returns the day's counters. A day without sends yields a zero counter.
func (r *GormUsageCounter) Get(ctx context.Context, day string) (*domain.UsageCounter, error) {
	var model UsageCounterModel
	err := r.db.WithContext(ctx).First(&model, "usage_date = ?", day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usageModelToDomain(&UsageCounterModel{UsageDate: day}), nil
	}
	if err != nil {
		return nil, err
	}
	return usageModelToDomain(&model), nil
}

func usageColumn(category domain.Category) (string, error) {
	column, ok := usageColumns[category]
	if !ok {
		return "", fmt.Errorf("%w: invalid category %q", domain.ErrValidation, category)
	}
	return column, nil
}
