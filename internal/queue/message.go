package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
)

type EventRecipient struct {
	UserID      string          `json:"userId"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	UserType    domain.UserType `json:"userType,omitempty"`
}

type EventEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EventMessage is the broker payload asking for one notification.
type EventMessage struct {
	EventID       string           `json:"eventId"`
	CorrelationID string           `json:"correlationId,omitempty"`
	Category      domain.Category  `json:"category"`
	Message       string           `json:"message"`
	Recipients    []EventRecipient `json:"recipients"`
	RelatedEntity *EventEntity     `json:"relatedEntity,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

func (m EventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("invalid category %q", m.Category)
	}
	if strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if len(m.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for i, r := range m.Recipients {
		if strings.TrimSpace(r.UserID) == "" {
			return fmt.Errorf("recipients[%d].userId is required", i)
		}
		if r.UserType != "" && !r.UserType.IsValid() {
			return fmt.Errorf("recipients[%d].userType %q is invalid", i, r.UserType)
		}
	}
	if m.RelatedEntity != nil && (strings.TrimSpace(m.RelatedEntity.Type) == "" || strings.TrimSpace(m.RelatedEntity.ID) == "") {
		return fmt.Errorf("relatedEntity requires type and id")
	}
	return nil
}

// ToRequest converts the event into a dispatcher request.
func (m EventMessage) ToRequest() domain.NotificationRequest {
	recipients := make([]domain.Recipient, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		recipients = append(recipients, domain.Recipient{
			UserID:      strings.TrimSpace(r.UserID),
			PhoneNumber: strings.TrimSpace(r.PhoneNumber),
			UserType:    r.UserType,
		})
	}

	req := domain.NotificationRequest{
		Recipients: recipients,
		Message:    m.Message,
		Category:   m.Category,
	}
	if m.RelatedEntity != nil {
		req.RelatedEntity = &domain.RelatedEntity{
			Type: strings.TrimSpace(m.RelatedEntity.Type),
			ID:   strings.TrimSpace(m.RelatedEntity.ID),
		}
	}
	return req
}
