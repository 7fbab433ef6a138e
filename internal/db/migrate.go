package db

import (
	"mt5bridge/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Deal{},
		&models.Manager{},
		&models.DailyFeeSnapshot{},
		&models.FeeTransaction{},
		&models.AccountPnL{},
		&models.SyncState{},
		&models.SystemSetting{},
	)
}
