package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus is the recorded state of one recipient's delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusFailed:
		return true
	}
	return false
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryRecord is an append-only log row for one eligible recipient of one send attempt.
// Corrections are written as new rows.
type DeliveryRecord struct {
	ID                 string
	UserID             string
	PhoneNumber        string
	Message            string
	Category           Category
	Status             DeliveryStatus
	ProviderResponse   *string
	ProviderStatusCode *int
	SentAt             *time.Time
	ErrorMessage       *string
	RelatedEntityType  *string
	RelatedEntityID    *string
	CreatedAt          time.Time
}

// UsageCounter is the persisted send volume of one calendar day.
type UsageCounter struct {
	Date        string
	TotalSent   int
	PerCategory map[Category]int
}

// CategorySum adds up the per-category counts. It equals TotalSent for a consistent row.
func (u UsageCounter) CategorySum() int {
	sum := 0
	for _, count := range u.PerCategory {
		sum += count
	}
	return sum
}

// Settings are the runtime-tunable dispatch settings.
type Settings struct {
	Enabled                  bool
	SenderID                 string
	DailyLimit               int
	ComplianceThresholdDays  int
	MaintenanceThresholdDays int
}
