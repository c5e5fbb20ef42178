package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChatMessage is an archived transcript entry. Rows are append-only.
type ChatMessage struct {
	Id        uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageId string            `gorm:"type:varchar(64);not null;uniqueIndex"`
	SessionId string            `gorm:"type:varchar(64);not null;index"`
	UserId    string            `gorm:"type:varchar(128);not null;index"`
	Sender    string            `gorm:"type:varchar(20);not null"`
	Type      string            `gorm:"type:varchar(20);not null"`
	Content   string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	SentAt    time.Time         `gorm:"not null;index"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
