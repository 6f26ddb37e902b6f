package model

import (
	"time"

	"gorm.io/datatypes"
)

type SessionSnapshot struct {
	SessionId          string         `gorm:"type:varchar(128);primaryKey"`
	UserId             string         `gorm:"type:varchar(128);not null;index"`
	ConversationLength int            `gorm:"default:0"`
	Data               datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt          time.Time
	LastActive         time.Time `gorm:"index"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (SessionSnapshot) TableName() string {
	return "session_snapshots"
}
