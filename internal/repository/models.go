package repository

import (
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
)

// UserModel is the read model over the users table owned by the account service.
// Only the columns needed for SMS delivery are mapped.
type UserModel struct {
	ID                      string          `gorm:"type:uuid;primaryKey"`
	Name                    string          `gorm:"type:varchar(255)"`
	PhoneNumber             *string         `gorm:"type:varchar(32)"`
	UserType                domain.UserType `gorm:"type:varchar(20);not null"`
	SMSNotificationsEnabled bool            `gorm:"column:sms_notifications_enabled;not null"`
	SMSHighPriorityTicket   bool            `gorm:"column:sms_high_priority_ticket;not null"`
	SMSComplianceAlert      bool            `gorm:"column:sms_compliance_alert;not null"`
	SMSMaintenanceReminder  bool            `gorm:"column:sms_maintenance_reminder;not null"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// EquipmentModel is the read model over the equipment table.
type EquipmentModel struct {
	ID                   string     `gorm:"type:uuid;primaryKey"`
	Name                 string     `gorm:"type:varchar(255);not null"`
	SerialNumber         string     `gorm:"type:varchar(100)"`
	Location             string     `gorm:"type:varchar(255)"`
	ClientID             *string    `gorm:"type:uuid;index"`
	VendorID             *string    `gorm:"type:uuid;index"`
	ComplianceExpiryDate *time.Time `gorm:"type:date;index"`
	NextMaintenanceDate  *time.Time `gorm:"type:date;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (EquipmentModel) TableName() string {
	return "equipment"
}

// DeliveryLogModel is the persistence model for sms_delivery_logs. Rows are never updated.
type DeliveryLogModel struct {
	ID                 string                `gorm:"type:uuid;primaryKey"`
	UserID             string                `gorm:"type:uuid;not null;index"`
	PhoneNumber        string                `gorm:"type:varchar(32);not null"`
	Message            string                `gorm:"type:text;not null"`
	Category           domain.Category       `gorm:"type:varchar(32);not null"`
	Status             domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	ProviderResponse   *string               `gorm:"type:text"`
	ProviderStatusCode *int                  `gorm:"type:int"`
	SentAt             *time.Time            `gorm:"column:sent_at"`
	ErrorMessage       *string               `gorm:"type:text"`
	RelatedEntityType  *string               `gorm:"type:varchar(50)"`
	RelatedEntityID    *string               `gorm:"type:varchar(64)"`
	CreatedAt          time.Time             `gorm:"index"`
}

func (DeliveryLogModel) TableName() string {
	return "sms_delivery_logs"
}

// UsageCounterModel is one row of sms_usage_counters. Rows are only written
// through the conditional upserts in GormUsageCounter.
type UsageCounterModel struct {
	UsageDate                string `gorm:"type:varchar(10);primaryKey"`
	TotalSent                int    `gorm:"not null;default:0"`
	HighPriorityTicketCount  int    `gorm:"not null;default:0"`
	ComplianceAlertCount     int    `gorm:"not null;default:0"`
	MaintenanceReminderCount int    `gorm:"not null;default:0"`
	StatusUpdateCount        int    `gorm:"not null;default:0"`
	TicketUpdateCount        int    `gorm:"not null;default:0"`
	TestCount                int    `gorm:"not null;default:0"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

func (UsageCounterModel) TableName() string {
	return "sms_usage_counters"
}

// SettingsModel is the single-row sms_settings table edited by administrators.
type SettingsModel struct {
	ID                       int    `gorm:"primaryKey"`
	Enabled                  bool   `gorm:"not null"`
	SenderID                 string `gorm:"type:varchar(32)"`
	DailyLimit               int    `gorm:"not null"`
	ComplianceThresholdDays  int    `gorm:"not null"`
	MaintenanceThresholdDays int    `gorm:"not null"`
	UpdatedAt                time.Time
}

func (SettingsModel) TableName() string {
	return "sms_settings"
}

// usageColumns maps each category to its counter column. Raw statements only
// interpolate column names taken from this map.
var usageColumns = map[domain.Category]string{
	domain.CategoryHighPriorityTicket:  "high_priority_ticket_count",
	domain.CategoryComplianceAlert:     "compliance_alert_count",
	domain.CategoryMaintenanceReminder: "maintenance_reminder_count",
	domain.CategoryStatusUpdate:        "status_update_count",
	domain.CategoryTicketUpdate:        "ticket_update_count",
	domain.CategoryTest:                "test_count",
}

func preferencesFromUserModel(m *UserModel) domain.Preferences {
	prefs := domain.Preferences{
		UserID:               m.ID,
		NotificationsEnabled: m.SMSNotificationsEnabled,
		HighPriorityTicket:   m.SMSHighPriorityTicket,
		ComplianceAlert:      m.SMSComplianceAlert,
		MaintenanceReminder:  m.SMSMaintenanceReminder,
	}
	if m.PhoneNumber != nil {
		prefs.PhoneNumber = *m.PhoneNumber
	}
	return prefs
}

func contactFromUserModel(m *UserModel) *domain.Contact {
	if m == nil {
		return nil
	}

	contact := &domain.Contact{
		UserID:   m.ID,
		Name:     m.Name,
		UserType: m.UserType,
	}
	if m.PhoneNumber != nil {
		contact.PhoneNumber = *m.PhoneNumber
	}
	return contact
}

func deliveryModelFromDomain(r *domain.DeliveryRecord) *DeliveryLogModel {
	if r == nil {
		return nil
	}

	return &DeliveryLogModel{
		ID:                 r.ID,
		UserID:             r.UserID,
		PhoneNumber:        r.PhoneNumber,
		Message:            r.Message,
		Category:           r.Category,
		Status:             r.Status,
		ProviderResponse:   r.ProviderResponse,
		ProviderStatusCode: r.ProviderStatusCode,
		SentAt:             r.SentAt,
		ErrorMessage:       r.ErrorMessage,
		RelatedEntityType:  r.RelatedEntityType,
		RelatedEntityID:    r.RelatedEntityID,
		CreatedAt:          r.CreatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryLogModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:                 m.ID,
		UserID:             m.UserID,
		PhoneNumber:        m.PhoneNumber,
		Message:            m.Message,
		Category:           m.Category,
		Status:             m.Status,
		ProviderResponse:   m.ProviderResponse,
		ProviderStatusCode: m.ProviderStatusCode,
		SentAt:             m.SentAt,
		ErrorMessage:       m.ErrorMessage,
		RelatedEntityType:  m.RelatedEntityType,
		RelatedEntityID:    m.RelatedEntityID,
		CreatedAt:          m.CreatedAt,
	}
}

func usageModelToDomain(m *UsageCounterModel) *domain.UsageCounter {
	if m == nil {
		return nil
	}

	return &domain.UsageCounter{
		Date:      m.UsageDate,
		TotalSent: m.TotalSent,
		PerCategory: map[domain.Category]int{
			domain.CategoryHighPriorityTicket:  m.HighPriorityTicketCount,
			domain.CategoryComplianceAlert:     m.ComplianceAlertCount,
			domain.CategoryMaintenanceReminder: m.MaintenanceReminderCount,
			domain.CategoryStatusUpdate:        m.StatusUpdateCount,
			domain.CategoryTicketUpdate:        m.TicketUpdateCount,
			domain.CategoryTest:                m.TestCount,
		},
	}
}

func settingsModelToDomain(m *SettingsModel) *domain.Settings {
	if m == nil {
		return nil
	}

	return &domain.Settings{
		Enabled:                  m.Enabled,
		SenderID:                 m.SenderID,
		DailyLimit:               m.DailyLimit,
		ComplianceThresholdDays:  m.ComplianceThresholdDays,
		MaintenanceThresholdDays: m.MaintenanceThresholdDays,
	}
}
