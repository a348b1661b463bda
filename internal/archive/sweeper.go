package archive

import (
	"fmt"
	"log"
	"regexp"
	"time"

	"maptest-backend/internal/discord"
	"maptest-backend/internal/maps"
	"maptest-backend/internal/mapserver"
	"maptest-backend/internal/maptest"
)

const (
	sweepInterval  = time.Hour
	releaseGrace   = 3 * 24 * time.Hour
	activityWindow = 5 * 24 * time.Hour
)

var previewMapRe = regexp.MustCompile(`[?&]map=([a-z0-9_]+)`)

// Sweeper periodically evicts stale map channels: export first, delete
// only on full export success.
type Sweeper struct {
	gw       discord.Gateway
	manager  *maptest.Manager
	schedule maptest.Scheduler
	exporter *Exporter
	hosting  *mapserver.Client

	announceChannel string
	stopCh          chan struct{}
}

func NewSweeper(
	gw discord.Gateway,
	manager *maptest.Manager,
	schedule maptest.Scheduler,
	exporter *Exporter,
	hosting *mapserver.Client,
	announceChannel string,
) *Sweeper {
	return &Sweeper{
		gw:              gw,
		manager:         manager,
		schedule:        schedule,
		exporter:        exporter,
		hosting:         hosting,
		announceChannel: announceChannel,
		stopCh:          make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
	log.Println("[Sweeper] started")
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
	log.Println("[Sweeper] stopped")
}

func (s *Sweeper) loop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep selects and archives eviction candidates. Each channel's attempt
// is independent; one failing export never blocks the rest.
func (s *Sweeper) Sweep(now time.Time) {
	recent := s.recentReleases(now)

	candidates := make(map[string]*maps.MapChannel)
	for _, mc := range s.manager.Registry().Snapshot() {
		if mc.State == maps.MapTesting || mc.State == maps.MapReady {
			continue
		}
		if _, justReleased := recent[mc.SanitizedName()]; justReleased {
			continue
		}
		if s.activeSince(mc.ID, now.Add(-activityWindow)) {
			continue
		}
		candidates[mc.ID] = mc
	}

	// waiting rooms are time-boxed unconditionally
	stale, err := s.schedule.StaleWaiting(now)
	if err != nil {
		log.Printf("[Sweeper] stale waiting: %v", err)
	}
	for _, row := range stale {
		if mc, ok := s.manager.Registry().Get(row.ChannelID); ok && mc.State == maps.MapWaiting {
			candidates[mc.ID] = mc
		}
	}

	for _, mc := range candidates {
		s.archive(mc)
	}
}

// recentReleases maps sanitized names announced within the grace window.
func (s *Sweeper) recentReleases(now time.Time) map[string]struct{} {
	out := make(map[string]struct{})
	if s.announceChannel == "" {
		return out
	}
	msgs, err := s.gw.Messages(s.announceChannel, 100, "")
	if err != nil {
		log.Printf("[Sweeper] announce history: %v", err)
		return out
	}
	cutoff := now.Add(-releaseGrace)
	for _, msg := range msgs {
		if msg.Timestamp.Before(cutoff) {
			continue
		}
		for _, m := range previewMapRe.FindAllStringSubmatch(msg.Content, -1) {
			out[m[1]] = struct{}{}
		}
	}
	return out
}

func (s *Sweeper) activeSince(channelID string, cutoff time.Time) bool {
	info, err := s.gw.Channel(channelID)
	if err != nil {
		log.Printf("[Sweeper] channel %s: %v", channelID, err)
		return true // err on the side of keeping the channel
	}
	if info.LastMessageID == "" {
		return false
	}
	return discord.SnowflakeTime(info.LastMessageID).After(cutoff)
}

func (s *Sweeper) archive(mc *maps.MapChannel) {
	if err := s.exporter.Export(mc.ID); err != nil {
		log.Printf("[Sweeper] export %q: %v", mc.Name, err)
		s.manager.ModLog(fmt.Sprintf("⚠️ archiving %q failed, will retry next sweep: %v", mc.Name, err))
		return
	}
	if err := s.gw.DeleteChannel(mc.ID); err != nil {
		log.Printf("[Sweeper] delete %q: %v", mc.Name, err)
		return
	}
	log.Printf("[Sweeper] archived and deleted %q", mc.Name)
}

// OnChannelDelete also fires for manual staff deletions; either way the
// hosted map asset goes away best-effort and the rows are dropped.
func (s *Sweeper) OnChannelDelete(ev discord.ChannelDeleteEvent) {
	mc, ok := s.manager.Registry().Get(ev.ChannelID)
	if !ok {
		return
	}
	s.manager.Registry().Remove(ev.ChannelID)

	if err := s.hosting.Delete(mc.SanitizedName()); err != nil {
		log.Printf("[Sweeper] hosting delete %q: %v", mc.Name, err)
	}
	if err := s.schedule.Drop(ev.ChannelID); err != nil {
		log.Printf("[Sweeper] drop schedule %s: %v", ev.ChannelID, err)
	}
	if err := s.schedule.UnmarkWaiting(ev.ChannelID); err != nil {
		log.Printf("[Sweeper] drop waiting %s: %v", ev.ChannelID, err)
	}
}
