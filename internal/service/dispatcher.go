package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/gateway"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"github.com/kursadbilgin/firesafe-notify/internal/ratelimit"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// maxSendAttempts bounds gateway calls per dispatch. Only an auth failure
	// on a non-final attempt leads to another one.
	maxSendAttempts = 2

	throttleScope       = "gateway"
	statusNotEnabled    = "not enabled"
	statusQuotaExceeded = "daily sms limit reached"
	statusNoEligible    = "no eligible recipients"
	recordWriteTimeout  = 10 * time.Second
)

// CredentialSource hands out gateway bearer values.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
	Clear()
}

// MessageSender submits one message to the gateway.
type MessageSender interface {
	Send(ctx context.Context, token string, req gateway.SendRequest) (*gateway.SendResponse, error)
}

type target struct {
	recipient domain.Recipient
	phone     string
}

// Dispatcher runs one notification request end to end and always answers with
// a DispatchResult. Delivery failures never surface as errors.
type Dispatcher struct {
	settings    SettingsProvider
	filter      *RecipientFilter
	quota       *QuotaGuard
	credentials CredentialSource
	sender      MessageSender
	deliveries  repository.DeliveryRepository
	throttle    ratelimit.RateLimiter
	countryCode string
	logger      *zap.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

// NewDispatcher builds a dispatcher. credentials and sender may be nil when the
// gateway is not configured; every dispatch then ends as disabled.
func NewDispatcher(
	settings SettingsProvider,
	filter *RecipientFilter,
	quota *QuotaGuard,
	credentials CredentialSource,
	sender MessageSender,
	deliveries repository.DeliveryRepository,
	countryCode string,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings provider is required")
	}
	if filter == nil {
		return nil, fmt.Errorf("recipient filter is required")
	}
	if quota == nil {
		return nil, fmt.Errorf("quota guard is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		settings:    settings,
		filter:      filter,
		quota:       quota,
		credentials: credentials,
		sender:      sender,
		deliveries:  deliveries,
		countryCode: countryCode,
		logger:      logger,
		tracer:      observability.Tracer(nil),
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetTracerProvider replaces the global tracer provider for this dispatcher.
func (d *Dispatcher) SetTracerProvider(tp trace.TracerProvider) {
	if d == nil {
		return
	}
	d.tracer = observability.Tracer(tp)
}

// SetThrottle makes every gateway call wait on limiter first.
func (d *Dispatcher) SetThrottle(limiter ratelimit.RateLimiter) {
	if d == nil {
		return
	}
	d.throttle = limiter
}

// Send dispatches req to its eligible recipients.
func (d *Dispatcher) Send(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult {
	if ctx == nil {
		ctx = context.Background()
	}

	category := req.Category.String()
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("category", category))

	ctx, span := d.tracer.Start(ctx, "sms.dispatch", trace.WithAttributes(
		attribute.String("sms.category", category),
		attribute.Int("sms.requested_recipients", len(req.Recipients)),
	))

	d.metrics.IncDispatchInFlight(category)
	defer d.metrics.DecDispatchInFlight(category)

	result := d.dispatch(ctx, req, logger)
	d.metrics.IncDispatch(category, result.Outcome.String())

	var spanErr error
	if result.Outcome == domain.OutcomeFailed {
		spanErr = result.Err
	}
	observability.EndSpan(span, spanErr,
		attribute.String("sms.outcome", result.Outcome.String()),
		attribute.Int("sms.recipient_count", result.RecipientCount),
	)

	fields := []zap.Field{
		zap.String("outcome", result.Outcome.String()),
		zap.Int("recipientCount", result.RecipientCount),
	}
	switch result.Outcome {
	case domain.OutcomeSent:
		logger.Info("sms dispatched", fields...)
	case domain.OutcomeFailed:
		logger.Error("sms dispatch failed", append(fields, zap.Error(result.Err))...)
	default:
		logger.Info("sms dispatch skipped", append(fields, zap.String("reason", result.StatusMessage))...)
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, req domain.NotificationRequest, logger *zap.Logger) domain.DispatchResult {
	if err := req.Validate(); err != nil {
		return failedResult(err, 0)
	}

	settings, err := d.settings.Settings(ctx)
	if err != nil {
		return failedResult(err, 0)
	}
	if !settings.Enabled || d.credentials == nil || d.sender == nil {
		return domain.DispatchResult{
			Outcome:       domain.OutcomeDisabled,
			StatusMessage: statusNotEnabled,
			Err:           domain.ErrNotConfigured,
		}
	}

	ok, err := d.quota.CanSend(ctx, len(req.Recipients), settings.DailyLimit)
	if err != nil {
		return failedResult(err, 0)
	}
	if !ok {
		return quotaExceededResult()
	}

	eligible, err := d.filter.Filter(ctx, req.Recipients, req.Category)
	if err != nil {
		return failedResult(err, 0)
	}

	targets := make([]target, 0, len(eligible))
	for _, r := range eligible {
		phone := NormalizePhone(r.PhoneNumber, d.countryCode)
		if phone == "" {
			logger.Warn("recipient phone number not dialable", zap.String("userId", r.UserID))
			continue
		}
		targets = append(targets, target{recipient: r, phone: phone})
	}
	if len(targets) == 0 {
		return domain.DispatchResult{
			Outcome:       domain.OutcomeNoEligible,
			StatusMessage: statusNoEligible,
			Err:           domain.ErrNoEligibleRecipients,
		}
	}

	reservation, ok, err := d.quota.Reserve(ctx, len(targets), req.Category, settings.DailyLimit)
	if err != nil {
		return failedResult(err, 0)
	}
	if !ok {
		return quotaExceededResult()
	}

	resp, sendErr := d.deliver(ctx, req, settings.SenderID, targets, logger)

	// The outcome is final from here on. Bookkeeping must not be cut short by
	// the caller going away.
	bgCtx := context.WithoutCancel(ctx)
	d.persist(bgCtx, req, targets, resp, sendErr, logger)

	if sendErr != nil {
		if err := d.quota.Release(bgCtx, reservation); err != nil {
			logger.Error("failed to release sms quota", zap.Error(err))
		}
		result := failedResult(sendErr, len(targets))
		result.StatusCode = gateway.StatusCodeOf(sendErr)
		return result
	}

	if settings.DailyLimit <= 0 {
		if err := d.quota.RecordSent(bgCtx, len(targets), req.Category); err != nil {
			logger.Error("failed to record sms usage", zap.Error(err))
		}
	}
	d.metrics.AddRecipientsSent(req.Category.String(), len(targets))
	message := strings.TrimSpace(resp.Comment)
	if message == "" {
		message = resp.Status
	}
	return domain.DispatchResult{
		Outcome:        domain.OutcomeSent,
		Success:        true,
		StatusCode:     resp.HTTPStatus,
		StatusMessage:  message,
		RecipientCount: len(targets),
	}
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	req domain.NotificationRequest,
	senderID string,
	targets []target,
	logger *zap.Logger,
) (*gateway.SendResponse, error) {
	numbers := make([]string, len(targets))
	for i, t := range targets {
		numbers[i] = t.phone
	}
	sendReq := gateway.SendRequest{
		SenderID:      senderID,
		Message:       req.Message,
		PhoneNumbers:  numbers,
		TransactionID: d.newID(),
	}
	category := req.Category.String()

	// The last gateway reply is kept on failure so records carry it.
	var (
		lastResp *gateway.SendResponse
		lastErr  error
	)
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		token, err := d.credentials.Credential(ctx)
		if err != nil {
			return lastResp, err
		}

		if d.throttle != nil {
			if err := d.throttle.Wait(ctx, throttleScope, len(numbers)); err != nil {
				if ctx.Err() != nil {
					return lastResp, fmt.Errorf("gateway throttle: %w", err)
				}
				// The throttle store being down must not stop delivery.
				logger.Warn("gateway throttle unavailable, sending unthrottled", zap.Error(err))
			}
		}

		sendCtx, span := d.tracer.Start(ctx, "sms.gateway.send", trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.Int("sms.attempt", attempt)))
		started := d.now()
		resp, err := d.sender.Send(sendCtx, token, sendReq)
		d.metrics.ObserveGatewaySendDuration(category, d.now().Sub(started))
		observability.EndSpan(span, err)
		if err == nil {
			return resp, nil
		}

		lastResp, lastErr = resp, err
		if !gateway.IsAuthFailure(err) || attempt == maxSendAttempts {
			break
		}

		logger.Warn("gateway rejected credential, retrying with a new one",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		d.metrics.IncAuthRetry(category)
		d.credentials.Clear()
	}
	return lastResp, lastErr
}

// persist writes one record per target. A failed write is logged and does not
// change the dispatch outcome.
func (d *Dispatcher) persist(
	ctx context.Context,
	req domain.NotificationRequest,
	targets []target,
	resp *gateway.SendResponse,
	sendErr error,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithTimeout(ctx, recordWriteTimeout)
	defer cancel()

	now := d.now().UTC()
	status := domain.DeliveryStatusSent
	var (
		providerResponse *string
		providerStatus   *int
		sentAt           *time.Time
		errorMessage     *string
	)

	if resp != nil {
		providerResponse = optionalString(resp.Body)
		providerStatus = optionalInt(resp.HTTPStatus)
	}
	if sendErr != nil {
		status = domain.DeliveryStatusFailed
		errorMessage = optionalString(sendErr.Error())
		if code := optionalInt(gateway.StatusCodeOf(sendErr)); code != nil {
			providerStatus = code
		}
	} else {
		sentAt = &now
	}

	var entityType, entityID *string
	if req.RelatedEntity != nil {
		entityType = optionalString(req.RelatedEntity.Type)
		entityID = optionalString(req.RelatedEntity.ID)
	}

	records := make([]*domain.DeliveryRecord, 0, len(targets))
	for _, t := range targets {
		records = append(records, &domain.DeliveryRecord{
			ID:                 d.newID(),
			UserID:             t.recipient.UserID,
			PhoneNumber:        t.phone,
			Message:            req.Message,
			Category:           req.Category,
			Status:             status,
			ProviderResponse:   providerResponse,
			ProviderStatusCode: providerStatus,
			SentAt:             sentAt,
			ErrorMessage:       errorMessage,
			RelatedEntityType:  entityType,
			RelatedEntityID:    entityID,
			CreatedAt:          now,
		})
	}

	if err := d.deliveries.CreateBatch(ctx, records); err != nil {
		logger.Error("failed to persist delivery records",
			zap.Int("records", len(records)),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
}

func failedResult(err error, recipientCount int) domain.DispatchResult {
	if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrDeliveryFailed) {
		err = fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	return domain.DispatchResult{
		Outcome:        domain.OutcomeFailed,
		StatusMessage:  err.Error(),
		RecipientCount: recipientCount,
		Err:            err,
	}
}

func quotaExceededResult() domain.DispatchResult {
	return domain.DispatchResult{
		Outcome:       domain.OutcomeQuotaExceeded,
		StatusMessage: statusQuotaExceeded,
		Err:           domain.ErrQuotaExceeded,
	}
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
