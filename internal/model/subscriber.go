package model

import "time"

// Subscriber is a Telegram chat that receives the daily board digest.
type Subscriber struct {
	ID            uint  `gorm:"primaryKey"`
	TelegramID    int64 `gorm:"uniqueIndex"`
	ChatID        int64
	FirstName     string
	Username      string
	DigestEnabled bool `gorm:"default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
