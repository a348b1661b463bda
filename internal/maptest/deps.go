package maptest

import (
	"time"

	"maptest-backend/internal/config"
	"maptest-backend/internal/models"
	"maptest-backend/internal/services"
)

// Scheduler is the queue/waiting-room surface the bot layer consumes,
// satisfied by services.ScheduleService.
type Scheduler interface {
	Join(channelID string, now time.Time) error
	Leave(channelID string, now time.Time) error
	Drop(channelID string) error
	Position(channelID string) (int, error)
	AddJob(channelID string, signal services.Signal, now time.Time) error
	Due(now time.Time, weekly bool) ([]models.ScheduleEntry, error)
	MarkWaiting(channelID string, now time.Time) error
	UnmarkWaiting(channelID string) error
	StaleWaiting(now time.Time) ([]models.WaitingMap, error)
	IsReleased(name string) (bool, error)
}

// Ratings is the scoring surface, satisfied by services.RatingService.
type Ratings interface {
	Submit(channelID, userID string, scores map[string]int) error
	Get(channelID, userID string) (models.ScoreMap, error)
	Aggregated(channelID string, raterIDs []string) (models.ScoreMap, int, error)
	Criteria() config.Criteria
}
