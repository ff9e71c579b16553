package model

import (
	"time"

	"gorm.io/gorm"
)

type Conversation struct {
	ThreadId  string         `gorm:"type:varchar(128);primaryKey"`
	Title     *string        `gorm:"type:varchar(500)"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime;index"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Conversation) TableName() string {
	return "conversations"
}
