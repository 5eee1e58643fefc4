package domain

import "time"

// Contact is a person attached to a piece of equipment.
type Contact struct {
	UserID      string
	Name        string
	PhoneNumber string
	UserType    UserType
}

// EquipmentAlert is one equipment item found by a scheduler scan.
type EquipmentAlert struct {
	EquipmentID  string
	Name         string
	SerialNumber string
	Location     string
	DueDate      time.Time
	Client       *Contact
	Vendor       *Contact
}

// Recipients returns the client and vendor contacts that have a phone number on file.
func (a EquipmentAlert) Recipients() []Recipient {
	recipients := make([]Recipient, 0, 2)
	for _, contact := range []*Contact{a.Client, a.Vendor} {
		if contact == nil || contact.UserID == "" || contact.PhoneNumber == "" {
			continue
		}
		recipients = append(recipients, Recipient{
			UserID:      contact.UserID,
			PhoneNumber: contact.PhoneNumber,
			UserType:    contact.UserType,
		})
	}
	return recipients
}
