package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"go.uber.org/zap"
)

func TestSchedulerRunOnceDispatchesPerItem(t *testing.T) {
	t.Parallel()

	var complianceCutoff, maintenanceCutoff time.Time
	equipment := &fakeEquipmentRepo{
		complianceDueFn: func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
			complianceCutoff = cutoff
			return []domain.EquipmentAlert{
				testAlert("eq-1", dateOf(2026, 3, 15)),
				testAlert("eq-2", dateOf(2026, 3, 1)),
			}, nil
		},
		maintenanceDueFn: func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
			maintenanceCutoff = cutoff
			return []domain.EquipmentAlert{testAlert("eq-3", dateOf(2026, 3, 12))}, nil
		},
	}

	var mu sync.Mutex
	var requests []domain.NotificationRequest
	notifier := &fakeNotifier{
		sendFn: func(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult {
			mu.Lock()
			defer mu.Unlock()
			requests = append(requests, req)
			return domain.DispatchResult{Outcome: domain.OutcomeSent, Success: true, RecipientCount: len(req.Recipients)}
		},
	}
	scheduler := newTestScheduler(t, equipment, notifier)

	report, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if want := dateOf(2026, 4, 9); !complianceCutoff.Equal(want) {
		t.Fatalf("compliance cutoff = %s, want %s", complianceCutoff, want)
	}
	if want := dateOf(2026, 3, 17); !maintenanceCutoff.Equal(want) {
		t.Fatalf("maintenance cutoff = %s, want %s", maintenanceCutoff, want)
	}

	if report.Compliance != (ScanReport{Found: 2, Sent: 2}) {
		t.Fatalf("compliance report = %+v", report.Compliance)
	}
	if report.Maintenance != (ScanReport{Found: 1, Sent: 1}) {
		t.Fatalf("maintenance report = %+v", report.Maintenance)
	}

	if len(requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(requests))
	}
	first := requests[0]
	if first.Category != domain.CategoryComplianceAlert {
		t.Fatalf("category = %s, want compliance_alert", first.Category)
	}
	if len(first.Recipients) != 2 || first.Recipients[0].UserID != "client-eq-1" || first.Recipients[1].UserID != "vendor-eq-1" {
		t.Fatalf("recipients = %+v", first.Recipients)
	}
	if first.RelatedEntity == nil || first.RelatedEntity.Type != "equipment" || first.RelatedEntity.ID != "eq-1" {
		t.Fatalf("related entity = %+v", first.RelatedEntity)
	}
	if !strings.Contains(first.Message, "in 5 days") {
		t.Fatalf("message = %q, want days until expiry", first.Message)
	}
	if !strings.Contains(requests[1].Message, "expired on 2026-03-01 (9 days ago)") {
		t.Fatalf("message = %q, want overdue wording", requests[1].Message)
	}
	if requests[2].Category != domain.CategoryMaintenanceReminder {
		t.Fatalf("category = %s, want maintenance_reminder", requests[2].Category)
	}
}

func TestSchedulerItemFailuresDoNotAbortScan(t *testing.T) {
	t.Parallel()

	equipment := &fakeEquipmentRepo{
		complianceDueFn: func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
			noContacts := testAlert("eq-empty", dateOf(2026, 3, 20))
			noContacts.Client = nil
			noContacts.Vendor = nil
			return []domain.EquipmentAlert{
				testAlert("eq-panic", dateOf(2026, 3, 20)),
				testAlert("eq-fail", dateOf(2026, 3, 20)),
				noContacts,
				testAlert("eq-ok", dateOf(2026, 3, 20)),
			}, nil
		},
	}

	var sentIDs []string
	notifier := &fakeNotifier{
		sendFn: func(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult {
			switch req.RelatedEntity.ID {
			case "eq-panic":
				panic("template exploded")
			case "eq-fail":
				return domain.DispatchResult{Outcome: domain.OutcomeFailed, Err: domain.ErrDeliveryFailed}
			}
			sentIDs = append(sentIDs, req.RelatedEntity.ID)
			return domain.DispatchResult{Outcome: domain.OutcomeSent, Success: true}
		},
	}
	scheduler := newTestScheduler(t, equipment, notifier)

	report, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	want := ScanReport{Found: 4, Sent: 1, Skipped: 1, Failed: 2}
	if report.Compliance != want {
		t.Fatalf("compliance report = %+v, want %+v", report.Compliance, want)
	}
	if len(sentIDs) != 1 || sentIDs[0] != "eq-ok" {
		t.Fatalf("sent = %v, want [eq-ok]", sentIDs)
	}
}

func TestSchedulerScanErrorDoesNotStopOtherScan(t *testing.T) {
	t.Parallel()

	equipment := &fakeEquipmentRepo{
		complianceDueFn: func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
			return nil, errors.New("db down")
		},
		maintenanceDueFn: func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
			return []domain.EquipmentAlert{testAlert("eq-1", dateOf(2026, 3, 10))}, nil
		},
	}
	scheduler := newTestScheduler(t, equipment, &fakeNotifier{})

	report, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Compliance != (ScanReport{}) {
		t.Fatalf("compliance report = %+v, want empty", report.Compliance)
	}
	if report.Maintenance.Sent != 1 {
		t.Fatalf("maintenance report = %+v, want one sent", report.Maintenance)
	}
}

func TestSchedulerRejectsOverlappingRuns(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	equipment := &fakeEquipmentRepo{
		complianceDueFn: func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
			once.Do(func() {
				close(entered)
				<-release
			})
			return nil, nil
		},
	}
	scheduler := newTestScheduler(t, equipment, &fakeNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := scheduler.RunOnce(context.Background())
		done <- err
	}()
	<-entered

	if _, err := scheduler.RunOnce(context.Background()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("overlapping RunOnce() error = %v, want ErrConflict", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}

	if _, err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() after completion error = %v", err)
	}
}

func TestSchedulerStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	scheduler := newTestScheduler(t, &fakeEquipmentRepo{}, &fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	t.Parallel()

	settings := &fakeSettings{}
	if _, err := NewScheduler(nil, &fakeNotifier{}, settings, "", 0, nil, nil); err == nil {
		t.Fatal("expected error for nil equipment repository")
	}
	if _, err := NewScheduler(&fakeEquipmentRepo{}, nil, settings, "", 0, nil, nil); err == nil {
		t.Fatal("expected error for nil notifier")
	}
	if _, err := NewScheduler(&fakeEquipmentRepo{}, &fakeNotifier{}, settings, "every day", 0, nil, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewScheduler() error = %v, want validation error", err)
	}

	scheduler, err := NewScheduler(&fakeEquipmentRepo{}, &fakeNotifier{}, settings, "  ", 0, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if scheduler.spec != defaultSchedulerSpec {
		t.Fatalf("spec = %q, want %q", scheduler.spec, defaultSchedulerSpec)
	}
}

func TestAlertMessages(t *testing.T) {
	t.Parallel()

	alert := domain.EquipmentAlert{
		Name:         "CO2 Extinguisher",
		SerialNumber: "FX-100",
		Location:     "Warehouse B",
		DueDate:      dateOf(2026, 3, 10),
	}

	testCases := []struct {
		name    string
		message func(domain.EquipmentAlert, int) string
		days    int
		want    string
	}{
		{name: "compliance upcoming", message: complianceMessage, days: 3, want: "FireSafe: compliance for CO2 Extinguisher (S/N FX-100) at Warehouse B expires on 2026-03-10 (in 3 days)."},
		{name: "compliance today", message: complianceMessage, days: 0, want: "FireSafe: compliance for CO2 Extinguisher (S/N FX-100) at Warehouse B expires today (2026-03-10)."},
		{name: "compliance expired", message: complianceMessage, days: -2, want: "FireSafe: compliance for CO2 Extinguisher (S/N FX-100) at Warehouse B expired on 2026-03-10 (2 days ago). Please arrange recertification."},
		{name: "maintenance upcoming", message: maintenanceMessage, days: 7, want: "FireSafe: maintenance for CO2 Extinguisher (S/N FX-100) at Warehouse B is due on 2026-03-10 (in 7 days)."},
		{name: "maintenance overdue", message: maintenanceMessage, days: -1, want: "FireSafe: maintenance for CO2 Extinguisher (S/N FX-100) at Warehouse B is overdue since 2026-03-10 (1 days)."},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.message(alert, tc.days); got != tc.want {
				t.Fatalf("message = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()

	colombo := time.FixedZone("Asia/Colombo", 5*3600+1800)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, colombo)

	if got := daysBetween(today, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)); got != 5 {
		t.Fatalf("daysBetween() = %d, want 5", got)
	}
	if got := daysBetween(today, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)); got != 0 {
		t.Fatalf("daysBetween() = %d, want 0", got)
	}
	if got := daysBetween(today, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)); got != -10 {
		t.Fatalf("daysBetween() = %d, want -10", got)
	}
}

func newTestScheduler(t *testing.T, equipment *fakeEquipmentRepo, notifier *fakeNotifier) *Scheduler {
	t.Helper()

	settings := &fakeSettings{
		settingsFn: func(ctx context.Context) (domain.Settings, error) {
			return domain.Settings{Enabled: true, ComplianceThresholdDays: 30, MaintenanceThresholdDays: 7}, nil
		},
	}
	scheduler, err := NewScheduler(equipment, notifier, settings, "0 8 * * *", 0, time.UTC, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return testNow }
	return scheduler
}

func dateOf(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func testAlert(id string, due time.Time) domain.EquipmentAlert {
	return domain.EquipmentAlert{
		EquipmentID:  id,
		Name:         "Extinguisher " + id,
		SerialNumber: "SN-" + id,
		Location:     "Block A",
		DueDate:      due,
		Client:       &domain.Contact{UserID: "client-" + id, PhoneNumber: "0771234567", UserType: domain.UserTypeClient},
		Vendor:       &domain.Contact{UserID: "vendor-" + id, PhoneNumber: "0772222222", UserType: domain.UserTypeVendor},
	}
}

type fakeEquipmentRepo struct {
	complianceDueFn  func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error)
	maintenanceDueFn func(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error)
}

func (f *fakeEquipmentRepo) ComplianceDue(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
	if f.complianceDueFn != nil {
		return f.complianceDueFn(ctx, cutoff)
	}
	return []domain.EquipmentAlert{}, nil
}

func (f *fakeEquipmentRepo) MaintenanceDue(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
	if f.maintenanceDueFn != nil {
		return f.maintenanceDueFn(ctx, cutoff)
	}
	return []domain.EquipmentAlert{}, nil
}

type fakeNotifier struct {
	sendFn func(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult
}

func (f *fakeNotifier) Send(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult {
	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return domain.DispatchResult{Outcome: domain.OutcomeSent, Success: true, RecipientCount: len(req.Recipients)}
}
