package repository

import (
	"context"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"gorm.io/gorm"
)

type PreferenceRepository interface {
	// GetByUserIDs returns the preferences of every known user among userIDs, keyed by user id.
	GetByUserIDs(ctx context.Context, userIDs []string) (map[string]domain.Preferences, error)
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) GetByUserIDs(ctx context.Context, userIDs []string) (map[string]domain.Preferences, error) {
	if len(userIDs) == 0 {
		return map[string]domain.Preferences{}, nil
	}

	var models []UserModel
	err := r.db.WithContext(ctx).
		Select("id", "phone_number", "sms_notifications_enabled", "sms_high_priority_ticket", "sms_compliance_alert", "sms_maintenance_reminder").
		Where("id IN ?", userIDs).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	prefs := make(map[string]domain.Preferences, len(models))
	for i := range models {
		prefs[models[i].ID] = preferencesFromUserModel(&models[i])
	}
	return prefs, nil
}
