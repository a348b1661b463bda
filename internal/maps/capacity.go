package maps

import "errors"

var ErrCategoryFull = errors.New("all category shards are at capacity, provision a new one")

// CapacityPool is an ordered list of category shards sharing a per-shard
// channel cap imposed by the chat platform.
type CapacityPool struct {
	Shards []string
	Limit  int
}

func NewCapacityPool(shards []string, limit int) *CapacityPool {
	return &CapacityPool{Shards: shards, Limit: limit}
}

// Allocate returns the first shard with a free slot given the current
// per-shard channel counts. It never returns a shard at or over the limit.
func (p *CapacityPool) Allocate(counts map[string]int) (string, error) {
	for _, shard := range p.Shards {
		if counts[shard] < p.Limit {
			return shard, nil
		}
	}
	return "", ErrCategoryFull
}

// Contains reports whether the given category belongs to this pool.
func (p *CapacityPool) Contains(categoryID string) bool {
	for _, shard := range p.Shards {
		if shard == categoryID {
			return true
		}
	}
	return false
}
