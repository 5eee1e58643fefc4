package domain

import (
	"fmt"
	"strings"
)

// Category classifies a notification for preference filtering and quota accounting.
type Category string

const (
	CategoryHighPriorityTicket  Category = "high_priority_ticket"
	CategoryComplianceAlert     Category = "compliance_alert"
	CategoryMaintenanceReminder Category = "maintenance_reminder"
	CategoryStatusUpdate        Category = "status_update"
	CategoryTicketUpdate        Category = "ticket_update"
	CategoryTest                Category = "test"
)

// Categories lists every supported category in a stable order.
var Categories = []Category{
	CategoryHighPriorityTicket,
	CategoryComplianceAlert,
	CategoryMaintenanceReminder,
	CategoryStatusUpdate,
	CategoryTicketUpdate,
	CategoryTest,
}

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// HasPreferenceFlag reports whether recipients can opt out of this category
// individually. Other categories only honour the global switch.
func (c Category) HasPreferenceFlag() bool {
	switch c {
	case CategoryHighPriorityTicket, CategoryComplianceAlert, CategoryMaintenanceReminder:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	c := Category(normalized)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// UserType is the account kind of a recipient.
type UserType string

const (
	UserTypeAdmin  UserType = "admin"
	UserTypeVendor UserType = "vendor"
	UserTypeClient UserType = "client"
)

func (u UserType) IsValid() bool {
	switch u {
	case UserTypeAdmin, UserTypeVendor, UserTypeClient:
		return true
	}
	return false
}

// Recipient is a candidate addressee of a notification.
type Recipient struct {
	UserID      string
	PhoneNumber string
	UserType    UserType
}

// RelatedEntity links a notification to the business record that caused it.
type RelatedEntity struct {
	Type string
	ID   string
}

// NotificationRequest is one send request handed to the dispatcher. It is not persisted.
type NotificationRequest struct {
	Recipients    []Recipient
	Message       string
	Category      Category
	RelatedEntity *RelatedEntity
}

func (r *NotificationRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, r.Category)
	}
	for i, recipient := range r.Recipients {
		if strings.TrimSpace(recipient.UserID) == "" {
			return fmt.Errorf("%w: recipient %d has no user id", ErrValidation, i)
		}
	}
	return nil
}

// Preferences are the persisted delivery flags of a user.
type Preferences struct {
	UserID               string
	PhoneNumber          string
	NotificationsEnabled bool
	HighPriorityTicket   bool
	ComplianceAlert      bool
	MaintenanceReminder  bool
}

// Allows reports whether the preferences permit a message of the given category.
func (p Preferences) Allows(category Category) bool {
	if !p.NotificationsEnabled {
		return false
	}

	switch category {
	case CategoryHighPriorityTicket:
		return p.HighPriorityTicket
	case CategoryComplianceAlert:
		return p.ComplianceAlert
	case CategoryMaintenanceReminder:
		return p.MaintenanceReminder
	}
	return true
}
