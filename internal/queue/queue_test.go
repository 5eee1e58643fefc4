package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestQueueNames(t *testing.T) {
	if EventQueueName != "notification.events" {
		t.Fatalf("EventQueueName = %s, want notification.events", EventQueueName)
	}
	if EventDLQName != "dlq.notification.events" {
		t.Fatalf("EventDLQName = %s, want dlq.notification.events", EventDLQName)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name     string
		category domain.Category
		want     uint8
	}{
		{name: "high priority ticket", category: domain.CategoryHighPriorityTicket, want: 3},
		{name: "compliance", category: domain.CategoryComplianceAlert, want: 2},
		{name: "maintenance", category: domain.CategoryMaintenanceReminder, want: 2},
		{name: "status update", category: domain.CategoryStatusUpdate, want: 1},
		{name: "invalid", category: domain.Category("invalid"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityValue(tt.category)
			if got != tt.want {
				t.Fatalf("PriorityValue(%q) = %d, want %d", tt.category, got, tt.want)
			}
		})
	}
}

func TestEventMessageValidate(t *testing.T) {
	valid := func() EventMessage {
		return EventMessage{
			EventID:    "evt-1",
			Category:   domain.CategoryHighPriorityTicket,
			Message:    "Ticket T-9 raised as high priority",
			Recipients: []EventRecipient{{UserID: "u1", UserType: domain.UserTypeAdmin}},
		}
	}

	msg := valid()
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EventMessage)
	}{
		{name: "missing event id", mutate: func(m *EventMessage) { m.EventID = " " }},
		{name: "invalid category", mutate: func(m *EventMessage) { m.Category = "fax" }},
		{name: "empty message", mutate: func(m *EventMessage) { m.Message = "" }},
		{name: "no recipients", mutate: func(m *EventMessage) { m.Recipients = nil }},
		{name: "recipient without id", mutate: func(m *EventMessage) { m.Recipients[0].UserID = "" }},
		{name: "invalid user type", mutate: func(m *EventMessage) { m.Recipients[0].UserType = "guest" }},
		{name: "partial related entity", mutate: func(m *EventMessage) { m.RelatedEntity = &EventEntity{Type: "ticket"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid()
			tt.mutate(&msg)
			if err := msg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEventMessageToRequest(t *testing.T) {
	msg := EventMessage{
		EventID:  "evt-1",
		Category: domain.CategoryTicketUpdate,
		Message:  "Ticket T-9 closed",
		Recipients: []EventRecipient{
			{UserID: " u1 ", PhoneNumber: " 0771234567 ", UserType: domain.UserTypeClient},
		},
		RelatedEntity: &EventEntity{Type: "ticket", ID: "T-9"},
	}

	req := msg.ToRequest()
	if req.Category != domain.CategoryTicketUpdate || req.Message != "Ticket T-9 closed" {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Recipients) != 1 || req.Recipients[0].UserID != "u1" || req.Recipients[0].PhoneNumber != "0771234567" {
		t.Fatalf("recipients = %+v", req.Recipients)
	}
	if req.RelatedEntity == nil || req.RelatedEntity.Type != "ticket" || req.RelatedEntity.ID != "T-9" {
		t.Fatalf("related entity = %+v", req.RelatedEntity)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("request Validate() error = %v", err)
	}
}

func TestConsumerHandleDelivery(t *testing.T) {
	validBody, err := json.Marshal(EventMessage{
		EventID:    "evt-1",
		Category:   domain.CategoryStatusUpdate,
		Message:    "Inspection completed",
		Recipients: []EventRecipient{{UserID: "u1"}},
		OccurredAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		handlerErr  error
		want        string
		wantCalled  bool
	}{
		{name: "ack on success", body: validBody, want: "ack", wantCalled: true},
		{name: "reject invalid json", body: []byte("{"), want: "reject"},
		{name: "reject invalid payload", body: []byte(`{"eventId":"evt-2","category":"status_update"}`), want: "reject"},
		{name: "requeue first failure", body: validBody, handlerErr: errors.New("shutting down"), want: "nack-requeue", wantCalled: true},
		{name: "dead-letter repeated failure", body: validBody, redelivered: true, handlerErr: errors.New("shutting down"), want: "nack-drop", wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			consumer := NewRabbitMQConsumer(nil, 1, zap.NewNop())

			called := false
			handler := func(ctx context.Context, msg EventMessage) error {
				called = true
				if msg.CorrelationID != "corr-1" {
					t.Fatalf("correlation id = %q, want corr-1 from delivery", msg.CorrelationID)
				}
				return tt.handlerErr
			}

			delivery := amqp.Delivery{
				Acknowledger:  ack,
				DeliveryTag:   7,
				Body:          tt.body,
				Redelivered:   tt.redelivered,
				CorrelationId: "corr-1",
			}
			if err := consumer.handleDelivery(context.Background(), delivery, handler); err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if ack.result != tt.want {
				t.Fatalf("ack result = %q, want %q", ack.result, tt.want)
			}
			if ack.tag != 7 {
				t.Fatalf("delivery tag = %d, want 7", ack.tag)
			}
			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestConsumerAckFailureIsReturned(t *testing.T) {
	ack := &fakeAcknowledger{err: errors.New("channel closed")}
	consumer := NewRabbitMQConsumer(nil, 1, nil)

	body := []byte(`{"eventId":"evt-1","category":"test","message":"hi","recipients":[{"userId":"u1"}]}`)
	err := consumer.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body}, func(context.Context, EventMessage) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected ack failure to be returned")
	}
}

func TestConsumeRequiresClientAndHandler(t *testing.T) {
	var consumer *RabbitMQConsumer
	if err := consumer.Consume(context.Background(), func(context.Context, EventMessage) error { return nil }); err == nil {
		t.Fatal("expected error for nil consumer")
	}

	consumer = NewRabbitMQConsumer(&RabbitMQ{}, 1, nil)
	if err := consumer.Consume(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestPublishValidatesMessage(t *testing.T) {
	publisher := NewRabbitMQPublisher(&RabbitMQ{})
	if err := publisher.Publish(context.Background(), EventMessage{}); err == nil {
		t.Fatal("expected validation error")
	}

	var nilPublisher *RabbitMQPublisher
	if err := nilPublisher.Publish(context.Background(), EventMessage{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}

type fakeAcknowledger struct {
	result string
	tag    uint64
	err    error
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.tag = tag
	f.result = "ack"
	return f.err
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.tag = tag
	if requeue {
		f.result = "nack-requeue"
	} else {
		f.result = "nack-drop"
	}
	return f.err
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.tag = tag
	f.result = "reject"
	return f.err
}
