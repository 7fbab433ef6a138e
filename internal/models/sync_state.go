package models

import (
	"time"
)

// SyncState is the per-scope ingestion cursor (e.g. "deals:101001").
type SyncState struct {
	Scope         string     `gorm:"primaryKey;type:text"`
	WatermarkTS   *time.Time `gorm:"type:timestamptz"`
	LastSuccessAt *time.Time `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time `gorm:"type:timestamptz"`
	LastError     *string    `gorm:"type:text"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
