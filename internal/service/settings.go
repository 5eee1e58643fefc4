package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
)

// SettingsProvider returns the dispatch settings in force for the current call.
type SettingsProvider interface {
	Settings(ctx context.Context) (domain.Settings, error)
}

// StoredSettings reads the administrator-edited settings row, falling back to
// the environment defaults when none has been saved yet.
type StoredSettings struct {
	repo              repository.SettingsRepository
	defaults          domain.Settings
	gatewayConfigured bool
}

func NewStoredSettings(repo repository.SettingsRepository, defaults domain.Settings, gatewayConfigured bool) *StoredSettings {
	return &StoredSettings{
		repo:              repo,
		defaults:          defaults,
		gatewayConfigured: gatewayConfigured,
	}
}

// Settings never reports Enabled when gateway credentials are missing.
func (s *StoredSettings) Settings(ctx context.Context) (domain.Settings, error) {
	settings := s.defaults

	if s.repo != nil {
		stored, err := s.repo.Get(ctx)
		switch {
		case err == nil:
			settings = *stored
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.Settings{}, fmt.Errorf("failed to load sms settings: %w", err)
		}
	}

	if !s.gatewayConfigured {
		settings.Enabled = false
	}
	return settings, nil
}

// Save validates and stores new settings.
func (s *StoredSettings) Save(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if s.repo == nil {
		return domain.Settings{}, fmt.Errorf("settings store not configured")
	}
	if settings.DailyLimit < 0 {
		return domain.Settings{}, fmt.Errorf("%w: dailyLimit must not be negative", domain.ErrValidation)
	}
	if settings.ComplianceThresholdDays < 0 || settings.MaintenanceThresholdDays < 0 {
		return domain.Settings{}, fmt.Errorf("%w: threshold days must not be negative", domain.ErrValidation)
	}
	if settings.Enabled && !s.gatewayConfigured {
		return domain.Settings{}, fmt.Errorf("%w: sms gateway credentials are not configured", domain.ErrValidation)
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to save sms settings: %w", err)
	}
	return settings, nil
}
