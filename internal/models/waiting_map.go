package models

import "time"

// WaitingMap marks when a channel entered the waiting-for-mapper room.
// Channels sitting here longer than the waiting window are archived
// unconditionally.
type WaitingMap struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChannelID string    `gorm:"size:32;not null;uniqueIndex" json:"channel_id"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}
