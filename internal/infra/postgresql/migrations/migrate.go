package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/opencampus/delivery-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_delivery_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeliveryRecordModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_delivery_records_state_created ON delivery_records (state, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_records_recipient ON delivery_records (recipient_id, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_records_scheduled ON delivery_records (scheduled_at) WHERE state = 'SCHEDULED'`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_records_retry ON delivery_records (next_retry_at) WHERE state = 'FAILED'`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_records_stale ON delivery_records (updated_at) WHERE state = 'PENDING'`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_delivery_records_external_id ON delivery_records (external_id) WHERE external_id IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryRecordModel{})
			},
		},
		{
			ID: "000002_create_in_app_messages",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.InAppMessageModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_in_app_messages_recipient ON in_app_messages (recipient_id, created_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.InAppMessageModel{})
			},
		},
	})

	return m.Migrate()
}
