package maptest

import (
	"fmt"
	"log"
	"strings"
	"time"

	"maptest-backend/internal/maps"
	"maptest-backend/internal/services"
)

// overridable in tests
var timeNow = time.Now

// Processor executes scheduled evaluation decisions: fast-tracked entries
// as they come due and the weekly batch from the head of the queue.
type Processor struct {
	manager  *Manager
	ratings  Ratings
	schedule Scheduler

	tick       time.Duration
	lastWeekly time.Time
	stopCh     chan struct{}
}

func NewProcessor(manager *Manager, ratings Ratings, schedule Scheduler) *Processor {
	return &Processor{
		manager:  manager,
		ratings:  ratings,
		schedule: schedule,
		tick:     10 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

func (p *Processor) Start() {
	go p.loop()
	log.Println("[Processor] started")
}

func (p *Processor) Stop() {
	close(p.stopCh)
	log.Println("[Processor] stopped")
}

func (p *Processor) loop() {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runOnce(timeNow())
		}
	}
}

func (p *Processor) runOnce(now time.Time) {
	weekly := p.isWeeklySlot(now)
	due, err := p.schedule.Due(now, weekly)
	if err != nil {
		log.Printf("[Processor] due entries: %v", err)
		return
	}
	// the slot is consumed only once the query succeeds, so a store
	// outage during the Sunday window retries on the next tick
	if weekly {
		p.lastWeekly = now
	}
	for _, entry := range due {
		p.process(entry.ChannelID)
	}
}

// the weekly batch runs once per week, Sunday afternoon
func (p *Processor) isWeeklySlot(now time.Time) bool {
	if now.UTC().Weekday() != time.Sunday || now.UTC().Hour() < 12 {
		return false
	}
	return now.Sub(p.lastWeekly) >= 24*time.Hour
}

// process applies the approve/decline rule to one queued channel. A
// channel whose ratings are still incomplete keeps its queue position.
func (p *Processor) process(channelID string) {
	mc, ok := p.manager.Registry().Get(channelID)
	if !ok {
		if err := p.schedule.Drop(channelID); err != nil {
			log.Printf("[Processor] drop stale entry %s: %v", channelID, err)
		}
		return
	}

	agg, count, err := p.ratings.Aggregated(channelID, nil)
	if err != nil {
		log.Printf("[Processor] aggregate %s: %v", channelID, err)
		return
	}

	decision, err := services.Decide(agg, p.ratings.Criteria())
	if err != nil {
		log.Printf("[Processor] %q not ready for a decision: %v", mc.Name, err)
		return
	}

	if decision.Approved {
		p.conclude(mc, maps.MapReady,
			fmt.Sprintf("🎉 %q passed evaluation with %d points from %d tester(s).", mc.Name, decision.Total, count))
		return
	}

	reason := strings.Join(decision.Reasons, "; ")
	p.conclude(mc, maps.MapDeclined,
		fmt.Sprintf("%q was declined: %s. It can return to testing after rework.", mc.Name, reason))
}

func (p *Processor) conclude(mc *maps.MapChannel, target maps.MapState, announcement string) {
	if err := p.manager.SetState(mc, target); err != nil {
		log.Printf("[Processor] move %q to %s: %v", mc.Name, target, err)
		p.manager.ModLog(fmt.Sprintf("⚠️ processing %q failed: %v", mc.Name, err))
		return
	}
	if _, err := p.manager.gw.SendMessage(mc.ID, announcement); err != nil {
		log.Printf("[Processor] announce in %s: %v", mc.ID, err)
	}
}
