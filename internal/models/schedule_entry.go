package models

import "time"

// ScheduleEntry is one channel's place in the FIFO evaluation queue.
// Leaving the queue sets LeftAt instead of deleting the row so a map that
// returns to testing within the grace window keeps its original position.
type ScheduleEntry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ChannelID string     `gorm:"size:32;not null;uniqueIndex" json:"channel_id"`
	JoinedAt  time.Time  `gorm:"not null;index" json:"joined_at"`
	ProcessAt *time.Time `gorm:"index" json:"process_at,omitempty"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}
