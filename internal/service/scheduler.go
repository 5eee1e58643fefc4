package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"github.com/kursadbilgin/firesafe-notify/internal/ratelimit"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultSchedulerSpec = "0 8 * * *"

	scanCompliance  = "compliance"
	scanMaintenance = "maintenance"

	schedulerScope = "scheduler"
	relatedEquip   = "equipment"
)

// Notifier dispatches one notification request.
type Notifier interface {
	Send(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult
}

// ScanReport counts the outcome of one scan.
type ScanReport struct {
	Found   int `json:"found"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RunReport summarizes one scheduler run.
type RunReport struct {
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt"`
	Compliance  ScanReport `json:"compliance"`
	Maintenance ScanReport `json:"maintenance"`
}

// Scheduler scans equipment for upcoming compliance expiry and maintenance and
// notifies the client and vendor of each item. It runs on a cron schedule and on demand.
type Scheduler struct {
	equipment repository.EquipmentRepository
	notifier  Notifier
	settings  SettingsProvider
	spacing   ratelimit.RateLimiter
	spec      string
	location  *time.Location
	logger    *zap.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
	now       func() time.Time

	running sync.Mutex
}

func NewScheduler(
	equipment repository.EquipmentRepository,
	notifier Notifier,
	settings SettingsProvider,
	spec string,
	sendInterval time.Duration,
	location *time.Location,
	logger *zap.Logger,
) (*Scheduler, error) {
	if equipment == nil {
		return nil, fmt.Errorf("equipment repository is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings provider is required")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = defaultSchedulerSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("%w: invalid scheduler spec %q: %v", domain.ErrValidation, spec, err)
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		equipment: equipment,
		notifier:  notifier,
		settings:  settings,
		spacing:   ratelimit.NewLocalLimiter(sendInterval, 1),
		spec:      spec,
		location:  location,
		logger:    logger,
		tracer:    observability.Tracer(nil),
		now:       time.Now,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Scheduler) SetTracerProvider(tp trace.TracerProvider) {
	if s == nil {
		return
	}
	s.tracer = observability.Tracer(tp)
}

// Start runs RunOnce on the cron schedule until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c := cron.New(cron.WithLocation(s.location))
	if _, err := c.AddFunc(s.spec, func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("failed to register scheduler job: %w", err)
	}

	c.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.spec),
		zap.String("timezone", s.location.String()),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	ctx = observability.WithTrigger(ctx, observability.TriggerScheduler)
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run completed",
		zap.Int("complianceSent", report.Compliance.Sent),
		zap.Int("complianceFailed", report.Compliance.Failed),
		zap.Int("maintenanceSent", report.Maintenance.Sent),
		zap.Int("maintenanceFailed", report.Maintenance.Failed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
}

// RunOnce performs both scans. It returns domain.ErrConflict while another run
// is in progress. A scan that cannot load its items is logged and the other
// scan still runs.
func (s *Scheduler) RunOnce(ctx context.Context) (RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.running.TryLock() {
		return RunReport{}, fmt.Errorf("%w: scheduler run already in progress", domain.ErrConflict)
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, "scheduler.run")

	settings, err := s.settings.Settings(ctx)
	if err != nil {
		observability.EndSpan(span, err)
		return RunReport{}, err
	}

	report := RunReport{StartedAt: s.now()}
	today := s.today()

	report.Compliance = s.scan(ctx, scanCompliance, today, settings.ComplianceThresholdDays, s.equipment.ComplianceDue, complianceMessage)
	report.Maintenance = s.scan(ctx, scanMaintenance, today, settings.MaintenanceThresholdDays, s.equipment.MaintenanceDue, maintenanceMessage)

	report.FinishedAt = s.now()
	observability.EndSpan(span, nil,
		attribute.Int("scheduler.compliance.sent", report.Compliance.Sent),
		attribute.Int("scheduler.compliance.failed", report.Compliance.Failed),
		attribute.Int("scheduler.maintenance.sent", report.Maintenance.Sent),
		attribute.Int("scheduler.maintenance.failed", report.Maintenance.Failed),
	)
	return report, nil
}

func (s *Scheduler) scan(
	ctx context.Context,
	name string,
	today time.Time,
	thresholdDays int,
	load func(context.Context, time.Time) ([]domain.EquipmentAlert, error),
	message func(domain.EquipmentAlert, int) string,
) ScanReport {
	var report ScanReport
	logger := s.logger.With(zap.String("scan", name))

	cutoff := today.AddDate(0, 0, thresholdDays)
	alerts, err := load(ctx, cutoff)
	if err != nil {
		logger.Error("failed to load equipment for scan", zap.Error(err))
		s.metrics.IncSchedulerItem(name, "scan_error")
		return report
	}
	report.Found = len(alerts)

	category := domain.CategoryComplianceAlert
	if name == scanMaintenance {
		category = domain.CategoryMaintenanceReminder
	}

	for _, alert := range alerts {
		if ctx.Err() != nil {
			logger.Warn("scan interrupted", zap.Int("remaining", report.Found-report.Sent-report.Skipped-report.Failed))
			break
		}

		days := daysBetween(today, alert.DueDate)
		result, err := s.processItem(ctx, alert, category, message(alert, days))
		outcome := "failed"
		switch {
		case err != nil:
			report.Failed++
			logger.Error("failed to process equipment alert",
				zap.String("equipmentId", alert.EquipmentID),
				zap.Error(err),
			)
		case result.Outcome == domain.OutcomeSent:
			report.Sent++
			outcome = "sent"
		case result.Outcome == domain.OutcomeFailed:
			report.Failed++
			logger.Warn("equipment alert not delivered",
				zap.String("equipmentId", alert.EquipmentID),
				zap.Error(result.Err),
			)
		default:
			report.Skipped++
			outcome = "skipped"
		}
		s.metrics.IncSchedulerItem(name, outcome)
	}

	return report
}

// processItem dispatches one alert. A panic is reported as an error so the
// remaining items still run.
func (s *Scheduler) processItem(
	ctx context.Context,
	alert domain.EquipmentAlert,
	category domain.Category,
	message string,
) (result domain.DispatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing equipment %s: %v", alert.EquipmentID, r)
		}
	}()

	recipients := alert.Recipients()
	if len(recipients) == 0 {
		return domain.DispatchResult{Outcome: domain.OutcomeNoEligible, Err: domain.ErrNoEligibleRecipients}, nil
	}

	if err := s.spacing.Wait(ctx, schedulerScope, 1); err != nil {
		return domain.DispatchResult{}, err
	}

	return s.notifier.Send(ctx, domain.NotificationRequest{
		Recipients:    recipients,
		Message:       message,
		Category:      category,
		RelatedEntity: &domain.RelatedEntity{Type: relatedEquip, ID: alert.EquipmentID},
	}), nil
}

func (s *Scheduler) today() time.Time {
	now := s.now().In(s.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
}

// daysBetween counts calendar days from today to the due date, which is read
// as a plain date. It is negative when the date has passed.
func daysBetween(today, due time.Time) int {
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, today.Location())
	return int(math.Round(dueDay.Sub(today).Hours() / 24))
}

func describeEquipment(alert domain.EquipmentAlert) string {
	var b strings.Builder
	b.WriteString(alert.Name)
	if alert.SerialNumber != "" {
		b.WriteString(" (S/N ")
		b.WriteString(alert.SerialNumber)
		b.WriteString(")")
	}
	if alert.Location != "" {
		b.WriteString(" at ")
		b.WriteString(alert.Location)
	}
	return b.String()
}

func complianceMessage(alert domain.EquipmentAlert, days int) string {
	due := alert.DueDate.Format("2006-01-02")
	switch {
	case days < 0:
		return fmt.Sprintf("FireSafe: compliance for %s expired on %s (%d days ago). Please arrange recertification.", describeEquipment(alert), due, -days)
	case days == 0:
		return fmt.Sprintf("FireSafe: compliance for %s expires today (%s).", describeEquipment(alert), due)
	default:
		return fmt.Sprintf("FireSafe: compliance for %s expires on %s (in %d days).", describeEquipment(alert), due, days)
	}
}

func maintenanceMessage(alert domain.EquipmentAlert, days int) string {
	due := alert.DueDate.Format("2006-01-02")
	switch {
	case days < 0:
		return fmt.Sprintf("FireSafe: maintenance for %s is overdue since %s (%d days).", describeEquipment(alert), due, -days)
	case days == 0:
		return fmt.Sprintf("FireSafe: maintenance for %s is due today (%s).", describeEquipment(alert), due)
	default:
		return fmt.Sprintf("FireSafe: maintenance for %s is due on %s (in %d days).", describeEquipment(alert), due, days)
	}
}
