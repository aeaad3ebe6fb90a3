package ingest

import (
	"sync"

	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// CacheEntry is the latest reading of one device.
type CacheEntry struct {
	Reading  telemetry.Reading   `json:"reading"`
	Identity *telemetry.Identity `json:"identity,omitempty"`
	Zones    *scoring.ZoneRanges `json:"zones,omitempty"`
}

// Cache holds the latest CacheEntry per device id.
//
// Entries are replaced whole on every upsert and copied on every read.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint32]CacheEntry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint32]CacheEntry)}
}

// Upsert stores e as the latest entry for its device.
func (c *Cache) Upsert(e CacheEntry) {
	e = e.clone()
	c.mu.Lock()
	c.entries[e.Reading.DeviceID] = e
	c.mu.Unlock()
}

// Get returns the entry for deviceID.
func (c *Cache) Get(deviceID uint32) (CacheEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[deviceID]
	c.mu.RUnlock()
	if !ok {
		return CacheEntry{}, false
	}
	return e.clone(), true
}

// All returns a snapshot of every entry, in no particular order.
func (c *Cache) All() []CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	return out
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uint32]CacheEntry)
	c.mu.Unlock()
}

// Len returns the number of devices held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (e CacheEntry) clone() CacheEntry {
	if e.Reading.ManufacturerID != nil {
		v := *e.Reading.ManufacturerID
		e.Reading.ManufacturerID = &v
	}
	if e.Reading.SerialNumber != nil {
		v := *e.Reading.SerialNumber
		e.Reading.SerialNumber = &v
	}
	if e.Identity != nil {
		id := *e.Identity
		e.Identity = &id
	}
	if e.Zones != nil {
		z := *e.Zones
		e.Zones = &z
	}
	return e
}
