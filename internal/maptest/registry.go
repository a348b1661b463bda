package maptest

import (
	"log"
	"sync"

	"maptest-backend/internal/config"
	"maptest-backend/internal/discord"
	"maptest-backend/internal/maps"
)

// Registry is the process-lifetime cache of map channel records plus the
// in-flight submission guard. It is rebuilt from the live channel list on
// startup; the channels themselves stay the source of truth.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*maps.MapChannel
	inflight map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*maps.MapChannel),
		inflight: make(map[string]struct{}),
	}
}

// Load enumerates every known category shard and parses each channel back
// into a record. A channel whose topic no longer parses is logged and
// skipped; it must not prevent the rest from loading.
func (r *Registry) Load(gw discord.Gateway, shards []string, previewBase string, types config.ServerTypes) error {
	loaded := 0
	for _, shard := range shards {
		channels, err := gw.ChannelsIn(shard)
		if err != nil {
			return err
		}
		for _, ch := range channels {
			mc, err := maps.FromChannel(ch.ID, ch.Name, ch.Topic, previewBase, types)
			if err != nil {
				log.Printf("[Registry] skipping channel %s (%s): %v", ch.ID, ch.Name, err)
				continue
			}
			r.Put(mc)
			loaded++
		}
	}
	log.Printf("[Registry] loaded %d map channels", loaded)
	return nil
}

func (r *Registry) Get(channelID string) (*maps.MapChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mc, ok := r.channels[channelID]
	return mc, ok
}

// ByName finds an active record by sanitized map name.
func (r *Registry) ByName(sanitized string) (*maps.MapChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mc := range r.channels {
		if mc.SanitizedName() == sanitized {
			return mc, true
		}
	}
	return nil, false
}

func (r *Registry) Put(mc *maps.MapChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[mc.ID] = mc
}

func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, channelID)
}

// Snapshot returns a copy of all records for iteration without holding the
// lock.
func (r *Registry) Snapshot() []*maps.MapChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*maps.MapChannel, 0, len(r.channels))
	for _, mc := range r.channels {
		out = append(out, mc)
	}
	return out
}

// TryAcquire marks a message id as under promotion. It returns false when
// another promotion already holds it, which is how a double reaction is
// kept from creating two channels for one submission.
func (r *Registry) TryAcquire(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[messageID]; busy {
		return false
	}
	r.inflight[messageID] = struct{}{}
	return true
}

func (r *Registry) Release(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, messageID)
}
