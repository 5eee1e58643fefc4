package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"gorm.io/gorm"
)

type EquipmentRepository interface {
	// ComplianceDue returns equipment whose compliance expires on or before cutoff, overdue included.
	ComplianceDue(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error)
	// MaintenanceDue returns equipment whose next maintenance is on or before cutoff.
	MaintenanceDue(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error)
}

type GormEquipmentRepo struct {
	db *gorm.DB
}

func NewGormEquipmentRepo(db *gorm.DB) *GormEquipmentRepo {
	return &GormEquipmentRepo{db: db}
}

func (r *GormEquipmentRepo) ComplianceDue(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
	return r.dueBy(ctx, "compliance_expiry_date", cutoff, func(m *EquipmentModel) *time.Time {
		return m.ComplianceExpiryDate
	})
}

func (r *GormEquipmentRepo) MaintenanceDue(ctx context.Context, cutoff time.Time) ([]domain.EquipmentAlert, error) {
	return r.dueBy(ctx, "next_maintenance_date", cutoff, func(m *EquipmentModel) *time.Time {
		return m.NextMaintenanceDate
	})
}

func (r *GormEquipmentRepo) dueBy(
	ctx context.Context,
	column string,
	cutoff time.Time,
	dueDate func(*EquipmentModel) *time.Time,
) ([]domain.EquipmentAlert, error) {
	var models []EquipmentModel
	err := r.db.WithContext(ctx).
		Where(column+" IS NOT NULL AND "+column+" <= ?", cutoff).
		Order(column + " ASC").
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.EquipmentAlert{}, nil
	}

	contacts, err := r.loadContacts(ctx, models)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.EquipmentAlert, 0, len(models))
	for i := range models {
		model := &models[i]
		alert := domain.EquipmentAlert{
			EquipmentID:  model.ID,
			Name:         model.Name,
			SerialNumber: model.SerialNumber,
			Location:     model.Location,
		}
		if due := dueDate(model); due != nil {
			alert.DueDate = *due
		}
		if model.ClientID != nil {
			alert.Client = contacts[*model.ClientID]
		}
		if model.VendorID != nil {
			alert.Vendor = contacts[*model.VendorID]
		}
		alerts = append(alerts, alert)
	}

	return alerts, nil
}

func (r *GormEquipmentRepo) loadContacts(ctx context.Context, equipment []EquipmentModel) (map[string]*domain.Contact, error) {
	seen := make(map[string]struct{}, len(equipment)*2)
	ids := make([]string, 0, len(equipment)*2)
	for i := range equipment {
		for _, id := range []*string{equipment[i].ClientID, equipment[i].VendorID} {
			if id == nil || *id == "" {
				continue
			}
			if _, ok := seen[*id]; ok {
				continue
			}
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}
	}

	contacts := make(map[string]*domain.Contact, len(ids))
	if len(ids) == 0 {
		return contacts, nil
	}

	var users []UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		contacts[users[i].ID] = contactFromUserModel(&users[i])
	}
	return contacts, nil
}
