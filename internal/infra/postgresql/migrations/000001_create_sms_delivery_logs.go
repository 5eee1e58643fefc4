package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_sms_delivery_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_sms_delivery_logs_category_created ON sms_delivery_logs (category, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_sms_delivery_logs_failed ON sms_delivery_logs (created_at) WHERE status = 'failed'`,
				`CREATE INDEX IF NOT EXISTS idx_sms_delivery_logs_related ON sms_delivery_logs (related_entity_type, related_entity_id) WHERE related_entity_id IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryLogModel{})
		},
	}
}
