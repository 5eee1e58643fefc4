package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseCategoryFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Category
		wantErr bool
	}{
		{name: "exact", input: "compliance_alert", want: CategoryComplianceAlert},
		{name: "dashed uppercase with spaces", input: " MAINTENANCE-REMINDER ", want: CategoryMaintenanceReminder},
		{name: "status update", input: "status_update", want: CategoryStatusUpdate},
		{name: "invalid", input: "marketing", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCategoryFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseCategoryFromString() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCategoryFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseCategoryFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPreferencesAllows(t *testing.T) {
	t.Parallel()

	maintenanceOnly := Preferences{
		UserID:               "u1",
		PhoneNumber:          "0771234567",
		NotificationsEnabled: true,
		MaintenanceReminder:  true,
	}
	globalOff := Preferences{
		UserID:              "u2",
		PhoneNumber:         "0771234567",
		HighPriorityTicket:  true,
		ComplianceAlert:     true,
		MaintenanceReminder: true,
	}

	tests := []struct {
		name     string
		prefs    Preferences
		category Category
		want     bool
	}{
		{name: "maintenance flag on", prefs: maintenanceOnly, category: CategoryMaintenanceReminder, want: true},
		{name: "compliance flag off", prefs: maintenanceOnly, category: CategoryComplianceAlert, want: false},
		{name: "high priority flag off", prefs: maintenanceOnly, category: CategoryHighPriorityTicket, want: false},
		{name: "unflagged category needs only global", prefs: maintenanceOnly, category: CategoryStatusUpdate, want: true},
		{name: "global off blocks maintenance", prefs: globalOff, category: CategoryMaintenanceReminder, want: false},
		{name: "global off blocks status update", prefs: globalOff, category: CategoryStatusUpdate, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.prefs.Allows(tt.category); got != tt.want {
				t.Fatalf("Allows(%s) = %v, want %v", tt.category, got, tt.want)
			}
		})
	}
}

func TestNotificationRequestValidate(t *testing.T) {
	t.Parallel()

	base := NotificationRequest{
		Recipients: []Recipient{{UserID: "u1", PhoneNumber: "0771234567", UserType: UserTypeClient}},
		Message:    "hello",
		Category:   CategoryStatusUpdate,
	}

	tests := []struct {
		name    string
		mutate  func(*NotificationRequest)
		wantErr bool
	}{
		{name: "valid request", mutate: func(r *NotificationRequest) {}},
		{name: "empty recipients allowed", mutate: func(r *NotificationRequest) { r.Recipients = nil }},
		{name: "blank message", mutate: func(r *NotificationRequest) { r.Message = "  " }, wantErr: true},
		{name: "invalid category", mutate: func(r *NotificationRequest) { r.Category = "fax" }, wantErr: true},
		{
			name: "recipient without user id",
			mutate: func(r *NotificationRequest) {
				r.Recipients = []Recipient{{PhoneNumber: "0771234567"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestEquipmentAlertRecipients(t *testing.T) {
	t.Parallel()

	alert := EquipmentAlert{
		EquipmentID: "eq-1",
		DueDate:     time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		Client:      &Contact{UserID: "c1", PhoneNumber: "0771234567", UserType: UserTypeClient},
		Vendor:      &Contact{UserID: "v1", UserType: UserTypeVendor},
	}

	recipients := alert.Recipients()
	if len(recipients) != 1 {
		t.Fatalf("recipients = %d, want 1", len(recipients))
	}
	if recipients[0].UserID != "c1" {
		t.Fatalf("recipient = %q, want c1", recipients[0].UserID)
	}

	alert.Client = nil
	alert.Vendor = nil
	if got := alert.Recipients(); len(got) != 0 {
		t.Fatalf("recipients = %d, want 0", len(got))
	}
}

func TestUsageCounterCategorySum(t *testing.T) {
	t.Parallel()

	counter := UsageCounter{
		Date:      "2026-10-14",
		TotalSent: 5,
		PerCategory: map[Category]int{
			CategoryComplianceAlert:     3,
			CategoryMaintenanceReminder: 2,
		},
	}
	if got := counter.CategorySum(); got != counter.TotalSent {
		t.Fatalf("CategorySum() = %d, want %d", got, counter.TotalSent)
	}
}
