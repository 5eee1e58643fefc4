package queue

import (
	"context"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
)

// Publisher publishes notification events.
type Publisher interface {
	Publish(ctx context.Context, msg EventMessage) error
	Close() error
}

// MessageHandler handles a consumed event. Returning an error asks for redelivery.
type MessageHandler func(ctx context.Context, msg EventMessage) error

// Consumer consumes notification events.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

const (
	// EventQueueName carries notification requests raised by ticket and compliance features.
	EventQueueName = "notification.events"
	// EventDLQName receives events that were rejected or failed twice.
	EventDLQName = "dlq.notification.events"

	// queueMaxPriority is the RabbitMQ x-max-priority value for the event queue.
	queueMaxPriority int32 = 3
)

// PriorityValue maps a category to RabbitMQ message priority.
func PriorityValue(category domain.Category) uint8 {
	switch category {
	case domain.CategoryHighPriorityTicket:
		return 3
	case domain.CategoryComplianceAlert, domain.CategoryMaintenanceReminder:
		return 2
	case domain.CategoryStatusUpdate, domain.CategoryTicketUpdate, domain.CategoryTest:
		return 1
	default:
		return 0
	}
}
