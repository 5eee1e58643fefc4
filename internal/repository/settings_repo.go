package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"gorm.io/gorm"
)

const settingsRowID = 1

type SettingsRepository interface {
	// Get returns the stored settings row, or domain.ErrNotFound when none was saved yet.
	Get(ctx context.Context) (*domain.Settings, error)
	Save(ctx context.Context, settings domain.Settings) error
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	var model SettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settingsModelToDomain(&model), nil
}

func (r *GormSettingsRepo) Save(ctx context.Context, settings domain.Settings) error {
	model := SettingsModel{
		ID:                       settingsRowID,
		Enabled:                  settings.Enabled,
		SenderID:                 settings.SenderID,
		DailyLimit:               settings.DailyLimit,
		ComplianceThresholdDays:  settings.ComplianceThresholdDays,
		MaintenanceThresholdDays: settings.MaintenanceThresholdDays,
	}
	return r.db.WithContext(ctx).Save(&model).Error
}
