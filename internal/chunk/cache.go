package chunk

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wavecast/wavecast/internal/pcm"
	"github.com/wavecast/wavecast/internal/track"
)

// DefaultCacheSlots bounds the decoded-chunk cache when no size is given.
const DefaultCacheSlots = 10

// Key identifies one decoded variant of one chunk. It is a comparable
// struct, so two keys differing in any variant parameter can never collide.
type Key struct {
	Track     string
	Index     int
	Enhanced  bool
	Preset    string
	Intensity float64
}

// NewKey builds the cache key for a chunk of a track rendered with the
// given variant.
func NewKey(trackID string, index int, v track.Variant) Key {
	return Key{
		Track:     trackID,
		Index:     index,
		Enhanced:  v.Enhanced,
		Preset:    v.Preset,
		Intensity: v.Intensity,
	}
}

// Cache keeps recently decoded chunks so a seek back onto them skips the
// network and the decoder. Eviction is oldest-inserted-first: a cache hit
// does not refresh an entry's position. That forgoes true LRU behavior on
// purpose, trading hit rate for a trivially predictable shape.
type Cache struct {
	mu      sync.Mutex
	slots   int
	entries map[Key]*pcm.Payload
	order   []Key
}

// NewCache returns a cache bounded to the given number of entries.
func NewCache(slots int) *Cache {
	if slots < 1 {
		slots = DefaultCacheSlots
	}
	return &Cache{
		slots:   slots,
		entries: make(map[Key]*pcm.Payload),
	}
}

// Get returns the cached payload for the key, if present.
func (c *Cache) Get(k Key) (*pcm.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[k]
	return p, ok
}

// Set stores a payload, evicting the oldest-inserted entry first when the
// cache is full. Re-setting an existing key replaces its payload without
// moving it in the eviction order.
func (c *Cache) Set(k Key, p *pcm.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[k]; ok {
		c.entries[k] = p
		return
	}

	if len(c.entries) >= c.slots {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		log.Debug().Str("track", oldest.Track).Int("chunk", oldest.Index).Msg("Evicting oldest cached chunk")
	}

	c.entries[k] = p
	c.order = append(c.order, k)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
