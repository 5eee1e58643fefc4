package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"github.com/kursadbilgin/firesafe-notify/internal/queue"
	"go.uber.org/zap"
)

// EventService turns queued notification events into dispatches.
type EventService struct {
	consumer queue.Consumer
	notifier Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewEventService(consumer queue.Consumer, notifier Notifier, logger *zap.Logger) (*EventService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventService{
		consumer: consumer,
		notifier: notifier,
		logger:   logger,
	}, nil
}

func (s *EventService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes events until ctx is cancelled.
func (s *EventService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.logger.Info("event consumer started", zap.String("queue", queue.EventQueueName))
	return s.consumer.Consume(ctx, s.Handle)
}

// Handle dispatches one event. Every dispatch outcome, failures included, is
// final and acknowledged; only a dispatch cut short by shutdown asks for redelivery.
func (s *EventService) Handle(ctx context.Context, msg queue.EventMessage) error {
	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = msg.EventID
	}
	ctx = observability.WithCorrelationID(ctx, correlationID)
	ctx = observability.WithTrigger(ctx, observability.TriggerEvent)

	result := s.notifier.Send(ctx, msg.ToRequest())
	// Only a dispatch cut short by cancellation is redelivered. Any other
	// outcome, including a send accepted just before shutdown, is final.
	if interrupted(ctx, result) {
		s.metrics.IncEventConsumed("requeued")
		return fmt.Errorf("event %s interrupted: %w", msg.EventID, ctx.Err())
	}

	s.metrics.IncEventConsumed(result.Outcome.String())
	observability.WithContextLogger(s.logger, ctx).Debug("event handled",
		zap.String("eventId", msg.EventID),
		zap.String("outcome", result.Outcome.String()),
	)
	return nil
}

func interrupted(ctx context.Context, result domain.DispatchResult) bool {
	return ctx.Err() != nil &&
		result.Outcome == domain.OutcomeFailed &&
		errors.Is(result.Err, context.Canceled)
}
