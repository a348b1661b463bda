package services

import (
	"errors"
	"time"

	"maptest-backend/internal/models"

	"gorm.io/gorm"
)

const (
	rejoinGrace   = 14 * 24 * time.Hour
	fastTrackSoon = 6 * 24 * time.Hour
	waitingWindow = 30 * 24 * time.Hour
)

type ScheduleService struct {
	db        *gorm.DB
	batchSize int
}

func NewScheduleService(db *gorm.DB, batchSize int) *ScheduleService {
	return &ScheduleService{db: db, batchSize: batchSize}
}

// Join puts a channel into the evaluation queue. A channel returning
// within the grace window keeps its original joined_at; a later return
// starts over at the back of the queue.
func (s *ScheduleService) Join(channelID string, now time.Time) error {
	var entry models.ScheduleEntry
	err := s.db.Where("channel_id = ?", channelID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&models.ScheduleEntry{ChannelID: channelID, JoinedAt: now}).Error
	}
	if err != nil {
		return err
	}

	if entry.LeftAt == nil {
		return nil
	}
	if now.Sub(*entry.LeftAt) > rejoinGrace {
		entry.JoinedAt = now
	}
	entry.LeftAt = nil
	entry.ProcessAt = nil
	return s.db.Save(&entry).Error
}

// Leave removes a channel from the active queue, keeping the row for the
// rejoin grace rule.
func (s *ScheduleService) Leave(channelID string, now time.Time) error {
	return s.db.Model(&models.ScheduleEntry{}).
		Where("channel_id = ? AND left_at IS NULL", channelID).
		Updates(map[string]interface{}{"left_at": now, "process_at": nil}).Error
}

// Drop deletes the row entirely, used when the channel itself is gone.
func (s *ScheduleService) Drop(channelID string) error {
	return s.db.Where("channel_id = ?", channelID).Delete(&models.ScheduleEntry{}).Error
}

// Position returns the channel's 1-based FIFO position, or 0 if it is not
// queued.
func (s *ScheduleService) Position(channelID string) (int, error) {
	var entries []models.ScheduleEntry
	if err := s.db.Where("left_at IS NULL").Order("joined_at ASC").Find(&entries).Error; err != nil {
		return 0, err
	}
	for i, e := range entries {
		if e.ChannelID == channelID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Queue returns the active queue in FIFO order.
func (s *ScheduleService) Queue() ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	err := s.db.Where("left_at IS NULL").Order("joined_at ASC").Find(&entries).Error
	return entries, err
}

// AddJob applies the fast-track heuristic outcome to a queued channel.
// Positive signal schedules early processing: within the current week when
// the channel joined recently, otherwise next day. Anything else clears
// the override so the weekly batch rule applies.
func (s *ScheduleService) AddJob(channelID string, signal Signal, now time.Time) error {
	var entry models.ScheduleEntry
	err := s.db.Where("channel_id = ? AND left_at IS NULL", channelID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if signal != SignalPositive {
		if entry.ProcessAt != nil {
			entry.ProcessAt = nil
			return s.db.Save(&entry).Error
		}
		return nil
	}

	var at time.Time
	if now.Sub(entry.JoinedAt) <= fastTrackSoon {
		at = endOfWeek(now)
	} else {
		at = now.Add(24 * time.Hour)
	}
	entry.ProcessAt = &at
	return s.db.Save(&entry).Error
}

// Due returns fast-tracked entries whose process_at has passed, plus the
// weekly batch head when it is batch day.
func (s *ScheduleService) Due(now time.Time, weekly bool) ([]models.ScheduleEntry, error) {
	var due []models.ScheduleEntry
	if err := s.db.Where("left_at IS NULL AND process_at IS NOT NULL AND process_at <= ?", now).
		Order("joined_at ASC").Find(&due).Error; err != nil {
		return nil, err
	}

	if weekly {
		var head []models.ScheduleEntry
		if err := s.db.Where("left_at IS NULL AND process_at IS NULL").
			Order("joined_at ASC").Limit(s.batchSize).Find(&head).Error; err != nil {
			return nil, err
		}
		due = append(due, head...)
	}
	return due, nil
}

// MarkWaiting records when a channel entered the waiting room.
func (s *ScheduleService) MarkWaiting(channelID string, now time.Time) error {
	var row models.WaitingMap
	err := s.db.Where("channel_id = ?", channelID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&models.WaitingMap{ChannelID: channelID, Timestamp: now}).Error
	}
	return err
}

func (s *ScheduleService) UnmarkWaiting(channelID string) error {
	return s.db.Where("channel_id = ?", channelID).Delete(&models.WaitingMap{}).Error
}

// StaleWaiting lists channels past the waiting-room window.
func (s *ScheduleService) StaleWaiting(now time.Time) ([]models.WaitingMap, error) {
	var rows []models.WaitingMap
	err := s.db.Where("timestamp < ?", now.Add(-waitingWindow)).Find(&rows).Error
	return rows, err
}

// IsReleased checks the released-names lookup for a sanitized map name.
func (s *ScheduleService) IsReleased(name string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.ReleasedMap{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// endOfWeek is the upcoming Sunday noon UTC, the weekly batch slot.
func endOfWeek(now time.Time) time.Time {
	now = now.UTC()
	days := (7 - int(now.Weekday())) % 7
	slot := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	if !slot.After(now) {
		slot = slot.AddDate(0, 0, 7)
	}
	return slot
}
