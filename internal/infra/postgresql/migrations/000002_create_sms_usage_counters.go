package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"gorm.io/gorm"
)

func createUsageCountersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_sms_usage_counters",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.UsageCounterModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UsageCounterModel{})
		},
	}
}
