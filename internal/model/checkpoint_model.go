package model

import (
	"time"

	"gorm.io/datatypes"
)

type Checkpoint struct {
	ThreadId  string         `gorm:"type:varchar(128);primaryKey"`
	Version   int            `gorm:"not null;default:1"`
	State     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (Checkpoint) TableName() string {
	return "checkpoints"
}
