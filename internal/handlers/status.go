package handlers

import (
	"net/http"

	"maptest-backend/internal/maptest"
	"maptest-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// QueueSource is the slice of the schedule service the status API reads.
type QueueSource interface {
	Queue() ([]models.ScheduleEntry, error)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type QueueEntry struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name,omitempty"`
	Position  int    `json:"position"`
	Weeks     int    `json:"weeks_until_prioritized"`
	FastTrack bool   `json:"fast_track"`
}

type MapSummary struct {
	ChannelID string   `json:"channel_id"`
	Name      string   `json:"name"`
	State     string   `json:"state"`
	Server    string   `json:"server"`
	Mappers   []string `json:"mappers"`
}

type StatusHandler struct {
	registry  *maptest.Registry
	schedule  QueueSource
	batchSize int
}

func NewStatusHandler(registry *maptest.Registry, schedule QueueSource, batchSize int) *StatusHandler {
	return &StatusHandler{registry: registry, schedule: schedule, batchSize: batchSize}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *StatusHandler) GetQueue(c *gin.Context) {
	entries, err := h.schedule.Queue()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	out := make([]QueueEntry, 0, len(entries))
	for i, e := range entries {
		qe := QueueEntry{
			ChannelID: e.ChannelID,
			Position:  i + 1,
			Weeks:     (i + h.batchSize) / h.batchSize,
			FastTrack: e.ProcessAt != nil,
		}
		if mc, ok := h.registry.Get(e.ChannelID); ok {
			qe.Name = mc.Name
		}
		out = append(out, qe)
	}
	c.JSON(http.StatusOK, out)
}

func (h *StatusHandler) GetMaps(c *gin.Context) {
	snapshot := h.registry.Snapshot()
	out := make([]MapSummary, 0, len(snapshot))
	for _, mc := range snapshot {
		out = append(out, MapSummary{
			ChannelID: mc.ID,
			Name:      mc.Name,
			State:     mc.State.String(),
			Server:    mc.Server.Name,
			Mappers:   mc.Mappers,
		})
	}
	c.JSON(http.StatusOK, out)
}
