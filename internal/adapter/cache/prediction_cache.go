package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"inu/internal/domain"
)

// PredictionCache is an LRU cache of predictions keyed by image digest and
// runtime parameters. Entries expire after a TTL and are dropped whenever the
// sample generation changes.
type PredictionCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry[V]
	order      []string
	maxSize    int
	ttl        time.Duration
	generation uint64
	now        func() time.Time
}

type cacheEntry[V any] struct {
	value      V
	timestamp  time.Time
	generation uint64
}

func NewPredictionCache[V any](maxSize int, ttl time.Duration) *PredictionCache[V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PredictionCache[V]{
		entries: make(map[string]*cacheEntry[V]),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key derives a cache key from the image bytes and the parameters that
// influence a prediction.
func Key(image []byte, params domain.RuntimeParams) string {
	h := sha256.New()
	h.Write(image)

	var buf [8]byte
	writeFloat := func(f float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	writeFloat(float64(params.TopK))
	writeFloat(params.PThreshold)
	writeFloat(params.MinTopSim)
	writeFloat(params.Temperature)
	writeFloat(float64(params.MinNeighbors))
	writeFloat(params.MinMargin)

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func (c *PredictionCache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	entry, exists := c.entries[key]
	currentGen := c.generation
	c.mu.RUnlock()

	if !exists {
		return zero, false
	}

	stale := c.now().Sub(entry.timestamp) > c.ttl || entry.generation != currentGen

	c.mu.Lock()
	defer c.mu.Unlock()

	// the entry may have been replaced or invalidated since the read lock
	if c.entries[key] != entry {
		return zero, false
	}
	if stale {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return zero, false
	}
	c.moveToEnd(key)

	return entry.value, true
}

func (c *PredictionCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry[V]{
		value:      value,
		timestamp:  c.now(),
		generation: c.generation,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Invalidate drops every entry. Call it after samples or votes change.
func (c *PredictionCache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry[V])
	c.order = c.order[:0]
	c.generation++
}

func (c *PredictionCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *PredictionCache[V]) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *PredictionCache[V]) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *PredictionCache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
