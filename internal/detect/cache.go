package detect

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"piiguard/internal/core"
)

// resultCache is a bounded FIFO cache of detection results keyed by a hash
// of the input text. Benchmark datasets repeat queries across runs, so
// pattern and remote backends benefit from a small cache.
type resultCache struct {
	mu    sync.Mutex
	items map[uint64][]core.EntitySpan
	order []uint64
	cap   int
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		return nil
	}
	return &resultCache{
		items: make(map[uint64][]core.EntitySpan, capacity),
		order: make([]uint64, 0, capacity),
		cap:   capacity,
	}
}

func cacheKey(detector, text string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(detector)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(text)
	return d.Sum64()
}

func (c *resultCache) get(key uint64) ([]core.EntitySpan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	spans, ok := c.items[key]
	if !ok {
		return nil, false
	}
	out := make([]core.EntitySpan, len(spans))
	copy(out, spans)
	return out, true
}

func (c *resultCache) put(key uint64, spans []core.EntitySpan) {
	stored := make([]core.EntitySpan, len(spans))
	copy(stored, spans)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; exists {
		c.items[key] = stored
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	c.items[key] = stored
	c.order = append(c.order, key)
}
