package maptest

import (
	"fmt"
	"log"
	"regexp"
	"time"

	"maptest-backend/internal/config"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/maps"
)

// view + send-messages + read-history for the mapper in their own channel
const mapperPermissions = int64(0x00000400 | 0x00000800 | 0x00010000)

// Manager owns the map-channel state machine: creation, renames, category
// moves and release detection.
type Manager struct {
	gw       discord.Gateway
	registry *Registry
	schedule Scheduler

	testing   *maps.CapacityPool
	waiting   *maps.CapacityPool
	evaluated *maps.CapacityPool

	types         config.ServerTypes
	previewBase   string
	modLogChannel string
	releasesBotID string
}

func NewManager(
	gw discord.Gateway,
	registry *Registry,
	schedule Scheduler,
	cfg *config.Config,
	types config.ServerTypes,
) *Manager {
	return &Manager{
		gw:            gw,
		registry:      registry,
		schedule:      schedule,
		testing:       maps.NewCapacityPool(cfg.TestingCategories, cfg.CategoryLimit),
		waiting:       maps.NewCapacityPool(cfg.WaitingCategories, cfg.CategoryLimit),
		evaluated:     maps.NewCapacityPool(cfg.EvaluatedCategories, cfg.CategoryLimit),
		types:         types,
		previewBase:   cfg.PreviewBaseURL,
		modLogChannel: cfg.ModLogChannelID,
		releasesBotID: cfg.ReleasesBotID,
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

// AllShards lists every category the manager knows about.
func (m *Manager) AllShards() []string {
	var out []string
	out = append(out, m.testing.Shards...)
	out = append(out, m.waiting.Shards...)
	out = append(out, m.evaluated.Shards...)
	return out
}

func (m *Manager) poolFor(state maps.MapState) *maps.CapacityPool {
	switch state {
	case maps.MapTesting:
		return m.testing
	case maps.MapWaiting:
		return m.waiting
	default:
		return m.evaluated
	}
}

func (m *Manager) shardCounts(pool *maps.CapacityPool) (map[string]int, error) {
	counts := make(map[string]int, len(pool.Shards))
	for _, shard := range pool.Shards {
		channels, err := m.gw.ChannelsIn(shard)
		if err != nil {
			return nil, fmt.Errorf("count shard %s: %w", shard, err)
		}
		counts[shard] = len(channels)
	}
	return counts, nil
}

// CreateMapChannel turns an approved initial submission into its own
// channel under the first testing shard with room. mapperIDs get write
// access via permission overwrites.
func (m *Manager) CreateMapChannel(details *maps.Details, mentions, mapperIDs []string) (*maps.MapChannel, error) {
	counts, err := m.shardCounts(m.testing)
	if err != nil {
		return nil, err
	}
	parent, err := m.testing.Allocate(counts)
	if err != nil {
		m.ModLog(fmt.Sprintf("⚠️ cannot create channel for %q: %v", details.Name, err))
		return nil, err
	}

	mc := maps.NewMapChannel(details, mentions, m.previewBase)

	var overwrites []discord.PermissionOverwrite
	for _, id := range mapperIDs {
		overwrites = append(overwrites, discord.PermissionOverwrite{
			TargetID: id,
			Allow:    mapperPermissions,
		})
	}

	id, err := m.gw.CreateChannel(mc.ChannelName(), mc.Topic(), parent, overwrites)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	mc.ID = id
	m.registry.Put(mc)

	if err := m.schedule.Join(id, time.Now()); err != nil {
		log.Printf("[Manager] schedule join %s: %v", id, err)
	}
	return mc, nil
}

// SetState moves a map channel to a new lifecycle state. The in-memory
// record is committed only after the external edit succeeds, so a failed
// transition can simply be retried.
func (m *Manager) SetState(mc *maps.MapChannel, target maps.MapState) error {
	if mc.State == target {
		return nil
	}

	info, err := m.gw.Channel(mc.ID)
	if err != nil {
		return fmt.Errorf("fetch channel: %w", err)
	}

	pool := m.poolFor(target)
	edit := discord.ChannelEdit{}

	if !pool.Contains(info.ParentID) {
		counts, err := m.shardCounts(pool)
		if err != nil {
			return err
		}
		parent, err := pool.Allocate(counts)
		if err != nil {
			m.ModLog(fmt.Sprintf("⚠️ cannot move %q to %s: %v", mc.Name, target, err))
			return err
		}
		position := 0
		edit.ParentID = &parent
		edit.Position = &position
	}

	prev := mc.State
	mc.State = target
	name := mc.ChannelName()
	mc.State = prev
	edit.Name = &name

	if err := m.gw.EditChannel(mc.ID, edit); err != nil {
		return fmt.Errorf("edit channel: %w", err)
	}
	mc.State = target

	m.applyScheduleEffects(mc, prev, target)
	return nil
}

func (m *Manager) applyScheduleEffects(mc *maps.MapChannel, prev, target maps.MapState) {
	now := time.Now()
	var err error
	switch {
	case target == maps.MapWaiting:
		err = m.schedule.MarkWaiting(mc.ID, now)
	case prev == maps.MapWaiting:
		err = m.schedule.UnmarkWaiting(mc.ID)
	}
	if err != nil {
		log.Printf("[Manager] waiting row %s: %v", mc.ID, err)
	}

	switch target {
	case maps.MapTesting:
		// Join is a no-op for a channel still queued, so the waiting
		// detour keeps its position while an evaluated channel re-enters.
		err = m.schedule.Join(mc.ID, now)
	case maps.MapReady, maps.MapDeclined, maps.MapReleased:
		err = m.schedule.Leave(mc.ID, now)
	default:
		err = nil
	}
	if err != nil {
		log.Printf("[Manager] schedule row %s: %v", mc.ID, err)
	}
}

// UpdateChannel applies a detail edit and re-renders name and topic in a
// single external call when anything visible changed. Like SetState, the
// record is committed only after the external edit succeeds.
func (m *Manager) UpdateChannel(mc *maps.MapChannel, name string, mappers []string, server string) error {
	staged := *mc
	changed, err := staged.Update(name, mappers, server, m.types)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	newName := staged.ChannelName()
	topic := staged.Topic()
	if err := m.gw.EditChannel(mc.ID, discord.ChannelEdit{Name: &newName, Topic: &topic}); err != nil {
		return fmt.Errorf("edit channel: %w", err)
	}
	*mc = staged
	return nil
}

var previewMapRe = regexp.MustCompile(`[?&]map=([a-z0-9_]+)`)

// HandleReleaseMessage scans a releases-automation announcement for a map
// preview link and flips the matching channel to RELEASED.
func (m *Manager) HandleReleaseMessage(ev discord.MessageEvent) {
	if ev.Author.ID != m.releasesBotID {
		return
	}
	match := previewMapRe.FindStringSubmatch(ev.Content)
	if match == nil {
		return
	}
	mc, ok := m.registry.ByName(match[1])
	if !ok {
		return
	}
	if err := m.SetState(mc, maps.MapReleased); err != nil {
		log.Printf("[Manager] release %s: %v", mc.Name, err)
		m.ModLog(fmt.Sprintf("⚠️ failed to mark %q released: %v", mc.Name, err))
	}
}

// ModLog posts to the moderation log channel, best effort.
func (m *Manager) ModLog(content string) {
	if m.modLogChannel == "" {
		return
	}
	if _, err := m.gw.SendMessage(m.modLogChannel, content); err != nil {
		log.Printf("[Manager] mod log: %v", err)
	}
}
