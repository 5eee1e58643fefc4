package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"github.com/kursadbilgin/firesafe-notify/internal/queue"
)

type Notifier interface {
	Send(ctx context.Context, req domain.NotificationRequest) domain.DispatchResult
}

type EventPublisher interface {
	Publish(ctx context.Context, msg queue.EventMessage) error
}

type NotificationHandler struct {
	notifier  Notifier
	publisher EventPublisher
	now       func() time.Time
}

// NewNotificationHandler builds the handler. publisher may be nil, in which
// case POST /v1/events is not mounted.
func NewNotificationHandler(notifier Notifier, publisher EventPublisher) (*NotificationHandler, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	return &NotificationHandler{notifier: notifier, publisher: publisher, now: time.Now}, nil
}

func RegisterNotificationRoutes(router fiber.Router, notifier Notifier, publisher EventPublisher) error {
	h, err := NewNotificationHandler(notifier, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications/test", h.SendTestNotification)
	if h.publisher != nil {
		v1.Post("/events", h.PublishEvent)
	}

	return nil
}

type recipientRequest struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	UserType    string `json:"userType"`
}

type relatedEntityRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type sendNotificationRequest struct {
	Recipients    []recipientRequest    `json:"recipients"`
	Message       string                `json:"message"`
	Category      string                `json:"category"`
	RelatedEntity *relatedEntityRequest `json:"relatedEntity"`
}

type dispatchResultResponse struct {
	Outcome        string `json:"outcome"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"statusCode,omitempty"`
	StatusMessage  string `json:"statusMessage,omitempty"`
	RecipientCount int    `json:"recipientCount"`
}

type publishEventResponse struct {
	EventID       string `json:"eventId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// SendTestNotification dispatches synchronously and answers with the tagged
// result. Every outcome except a rejected request is a 200.
func (h *NotificationHandler) SendTestNotification(c *fiber.Ctx) error {
	var body sendNotificationRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req, err := body.toDomain()
	if err != nil {
		return toHTTPError(err)
	}

	ctx := requestContext(c, observability.TriggerAPI)
	result := h.notifier.Send(ctx, req)
	if result.Outcome == domain.OutcomeFailed && errors.Is(result.Err, domain.ErrValidation) {
		return toHTTPError(result.Err)
	}

	return c.Status(fiber.StatusOK).JSON(toDispatchResultResponse(result))
}

// PublishEvent queues a notification for asynchronous dispatch.
func (h *NotificationHandler) PublishEvent(c *fiber.Ctx) error {
	var msg queue.EventMessage
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg.EventID = strings.TrimSpace(msg.EventID)
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	msg.CorrelationID = strings.TrimSpace(msg.CorrelationID)
	if msg.CorrelationID == "" {
		msg.CorrelationID = requestCorrelationID(c)
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = h.now().UTC()
	}
	if err := msg.Validate(); err != nil {
		return toHTTPError(fmt.Errorf("%w: %v", domain.ErrValidation, err))
	}

	if err := h.publisher.Publish(c.UserContext(), msg); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to queue event")
	}

	return c.Status(fiber.StatusAccepted).JSON(publishEventResponse{
		EventID:       msg.EventID,
		CorrelationID: msg.CorrelationID,
	})
}

func (r sendNotificationRequest) toDomain() (domain.NotificationRequest, error) {
	rawCategory := strings.TrimSpace(r.Category)
	if rawCategory == "" {
		rawCategory = domain.CategoryTest.String()
	}
	category, err := domain.ParseCategoryFromString(rawCategory)
	if err != nil {
		return domain.NotificationRequest{}, err
	}
	if len(r.Recipients) == 0 {
		return domain.NotificationRequest{}, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
	}

	recipients := make([]domain.Recipient, 0, len(r.Recipients))
	for i, rec := range r.Recipients {
		userType := domain.UserType(strings.ToLower(strings.TrimSpace(rec.UserType)))
		if userType != "" && !userType.IsValid() {
			return domain.NotificationRequest{}, fmt.Errorf("%w: recipients[%d].userType %q is invalid", domain.ErrValidation, i, rec.UserType)
		}
		recipients = append(recipients, domain.Recipient{
			UserID:      strings.TrimSpace(rec.UserID),
			PhoneNumber: strings.TrimSpace(rec.PhoneNumber),
			UserType:    userType,
		})
	}

	req := domain.NotificationRequest{
		Recipients: recipients,
		Message:    strings.TrimSpace(r.Message),
		Category:   category,
	}
	if r.RelatedEntity != nil {
		req.RelatedEntity = &domain.RelatedEntity{
			Type: strings.TrimSpace(r.RelatedEntity.Type),
			ID:   strings.TrimSpace(r.RelatedEntity.ID),
		}
	}
	if err := req.Validate(); err != nil {
		return domain.NotificationRequest{}, err
	}
	return req, nil
}

func toDispatchResultResponse(result domain.DispatchResult) dispatchResultResponse {
	return dispatchResultResponse{
		Outcome:        result.Outcome.String(),
		Success:        result.Success,
		StatusCode:     result.StatusCode,
		StatusMessage:  result.StatusMessage,
		RecipientCount: result.RecipientCount,
	}
}

func requestContext(c *fiber.Ctx, trigger string) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return observability.WithTrigger(ctx, trigger)
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
