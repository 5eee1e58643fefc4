package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
)

func newTestQuotaGuard(t *testing.T, store *memUsageStore) *QuotaGuard {
	t.Helper()

	guard, err := NewQuotaGuard(store, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewQuotaGuard() error = %v", err)
	}
	guard.now = func() time.Time { return testNow }
	return guard
}

func TestQuotaGuardCanSend(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		sent  int
		count int
		limit int
		want  bool
	}{
		{name: "room left", sent: 1, count: 1, limit: 2, want: true},
		{name: "exactly at limit", sent: 0, count: 2, limit: 2, want: true},
		{name: "would exceed", sent: 1, count: 3, limit: 2, want: false},
		{name: "count alone exceeds", sent: 0, count: 5, limit: 4, want: false},
		{name: "limit disabled", sent: 5000, count: 10, limit: 0, want: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newMemUsageStore()
			store.set(testDay, tc.sent)
			guard := newTestQuotaGuard(t, store)

			got, err := guard.CanSend(context.Background(), tc.count, tc.limit)
			if err != nil {
				t.Fatalf("CanSend() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("CanSend(%d, %d) with %d sent = %v, want %v", tc.count, tc.limit, tc.sent, got, tc.want)
			}
		})
	}
}

func TestQuotaGuardReserveAndRelease(t *testing.T) {
	t.Parallel()

	store := newMemUsageStore()
	guard := newTestQuotaGuard(t, store)
	ctx := context.Background()

	res, ok, err := guard.Reserve(ctx, 2, domain.CategoryComplianceAlert, 3)
	if err != nil || !ok {
		t.Fatalf("Reserve() = %v, %v, want ok", ok, err)
	}
	if res.Day != testDay || res.Count != 2 || res.Category != domain.CategoryComplianceAlert {
		t.Fatalf("reservation = %+v", res)
	}

	if _, ok, err := guard.Reserve(ctx, 2, domain.CategoryComplianceAlert, 3); err != nil || ok {
		t.Fatalf("second Reserve() = %v, %v, want rejected", ok, err)
	}
	if total := store.total(testDay); total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}

	if err := guard.Release(ctx, res); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	usage, err := guard.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.TotalSent != 0 || usage.CategorySum() != usage.TotalSent {
		t.Fatalf("usage = %+v, want empty", usage)
	}
}

func TestQuotaGuardReserveWithoutLimitTakesNothing(t *testing.T) {
	t.Parallel()

	store := newMemUsageStore()
	guard := newTestQuotaGuard(t, store)

	for i := 0; i < 3; i++ {
		res, ok, err := guard.Reserve(context.Background(), 100, domain.CategoryTest, 0)
		if err != nil || !ok {
			t.Fatalf("Reserve() = %v, %v, want ok", ok, err)
		}
		if res.Count != 0 {
			t.Fatalf("reservation count = %d, want 0", res.Count)
		}
		if err := guard.Release(context.Background(), res); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
	}
	if total := store.total(testDay); total != 0 {
		t.Fatalf("total = %d, want 0", total)
	}
}

func TestQuotaGuardConcurrentReserve(t *testing.T) {
	t.Parallel()

	store := newMemUsageStore()
	guard := newTestQuotaGuard(t, store)

	var (
		mu      sync.Mutex
		granted int
		wg      sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := guard.Reserve(context.Background(), 1, domain.CategoryMaintenanceReminder, 15)
			if err != nil {
				t.Errorf("Reserve() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 15 {
		t.Fatalf("granted = %d, want 15", granted)
	}
	if total := store.total(testDay); total != 15 {
		t.Fatalf("total = %d, want 15", total)
	}
}

func TestQuotaGuardRecordSent(t *testing.T) {
	t.Parallel()

	store := newMemUsageStore()
	guard := newTestQuotaGuard(t, store)

	if err := guard.RecordSent(context.Background(), 3, domain.CategoryHighPriorityTicket); err != nil {
		t.Fatalf("RecordSent() error = %v", err)
	}
	if err := guard.RecordSent(context.Background(), 0, domain.CategoryHighPriorityTicket); err != nil {
		t.Fatalf("RecordSent(0) error = %v", err)
	}

	usage, err := guard.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.TotalSent != 3 || usage.PerCategory[domain.CategoryHighPriorityTicket] != 3 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestQuotaGuardTodayUsesLocation(t *testing.T) {
	t.Parallel()

	colombo := time.FixedZone("Asia/Colombo", 5*3600+1800)
	guard, err := NewQuotaGuard(newMemUsageStore(), colombo, nil)
	if err != nil {
		t.Fatalf("NewQuotaGuard() error = %v", err)
	}
	guard.now = func() time.Time { return time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC) }

	if got := guard.Today(); got != "2026-03-11" {
		t.Fatalf("Today() = %s, want 2026-03-11", got)
	}
}

func TestQuotaGuardStoreErrors(t *testing.T) {
	t.Parallel()

	errStore := errors.New("store down")
	guard, err := NewQuotaGuard(&failingUsageStore{err: errStore}, time.UTC, nil)
	if err != nil {
		t.Fatalf("NewQuotaGuard() error = %v", err)
	}

	if _, err := guard.CanSend(context.Background(), 1, 10); !errors.Is(err, errStore) {
		t.Fatalf("CanSend() error = %v, want %v", err, errStore)
	}
	if _, _, err := guard.Reserve(context.Background(), 1, domain.CategoryTest, 10); !errors.Is(err, errStore) {
		t.Fatalf("Reserve() error = %v, want %v", err, errStore)
	}
	if err := guard.Release(context.Background(), Reservation{Day: testDay, Count: 1, Category: domain.CategoryTest}); !errors.Is(err, errStore) {
		t.Fatalf("Release() error = %v, want %v", err, errStore)
	}
}

func TestNewQuotaGuardRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewQuotaGuard(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

type failingUsageStore struct {
	err error
}

func (f *failingUsageStore) IncrementIfBelow(context.Context, string, int, domain.Category, int) (bool, error) {
	return false, f.err
}

func (f *failingUsageStore) Increment(context.Context, string, int, domain.Category) error {
	return f.err
}

func (f *failingUsageStore) Decrement(context.Context, string, int, domain.Category) error {
	return f.err
}

func (f *failingUsageStore) Get(context.Context, string) (*domain.UsageCounter, error) {
	return nil, f.err
}
