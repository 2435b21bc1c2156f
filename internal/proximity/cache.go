package proximity

import (
	"sync"
	"time"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
	"github.com/Luckywi/EcoLyon-sub001/internal/models"
)

const (
	// DefaultZoneTTL bounds the age of a zone entry.
	DefaultZoneTTL = time.Hour
	// DefaultZoneTolerance is how far a query center may drift from the
	// center a zone was populated with and still hit.
	DefaultZoneTolerance = 200.0 // meters
	// DefaultGlobalTTL bounds the age of a full-dataset entry.
	DefaultGlobalTTL = 24 * time.Hour
)

// CachedZone holds the filtered, distance-sorted items of one grid cell,
// together with the exact query center used to populate it. Entries are
// replaced wholesale, never mutated.
type CachedZone struct {
	Items     []*models.POI
	Timestamp time.Time
	Center    geo.Coordinate
}

// ZoneCache caches per-cell results for one loader instance. It is not safe
// for concurrent use; the owning Loader serializes access.
type ZoneCache struct {
	zones     map[string]CachedZone
	ttl       time.Duration
	tolerance float64
	now       func() time.Time
}

func NewZoneCache(ttl time.Duration, tolerance float64) *ZoneCache {
	if ttl <= 0 {
		ttl = DefaultZoneTTL
	}
	if tolerance <= 0 {
		tolerance = DefaultZoneTolerance
	}
	return &ZoneCache{
		zones:     make(map[string]CachedZone),
		ttl:       ttl,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Get returns the zone for key if the entry is fresh and its center is within
// the positional tolerance of queryCenter.
func (c *ZoneCache) Get(key string, queryCenter geo.Coordinate) (CachedZone, bool) {
	entry, ok := c.zones[key]
	if !ok {
		return CachedZone{}, false
	}
	if c.now().Sub(entry.Timestamp) >= c.ttl {
		return CachedZone{}, false
	}
	if geo.Distance(entry.Center, queryCenter) >= c.tolerance {
		return CachedZone{}, false
	}
	return entry, true
}

// Put replaces the zone entry for key.
func (c *ZoneCache) Put(key string, items []*models.POI, center geo.Coordinate) {
	c.zones[key] = CachedZone{
		Items:     items,
		Timestamp: c.now(),
		Center:    center,
	}
}

type globalEntry struct {
	items     []*models.POI
	timestamp time.Time
}

// GlobalCacheRegistry holds one full-dataset entry per dataset ID. It is
// shared across loader instances, so reads and writes are mutex-guarded.
// Entries are replaced wholesale on refetch.
type GlobalCacheRegistry struct {
	mu      sync.RWMutex
	entries map[string]globalEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewGlobalCacheRegistry(ttl time.Duration) *GlobalCacheRegistry {
	if ttl <= 0 {
		ttl = DefaultGlobalTTL
	}
	return &GlobalCacheRegistry{
		entries: make(map[string]globalEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the full item set for datasetID if the entry is fresh.
func (r *GlobalCacheRegistry) Get(datasetID string) ([]*models.POI, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[datasetID]
	if !ok {
		return nil, false
	}
	if r.now().Sub(entry.timestamp) >= r.ttl {
		return nil, false
	}
	return entry.items, true
}

// Put replaces the full item set for datasetID.
func (r *GlobalCacheRegistry) Put(datasetID string, items []*models.POI) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[datasetID] = globalEntry{
		items:     items,
		timestamp: r.now(),
	}
}

// Fresh reports whether datasetID currently has a fresh entry. Used by the
// background warmer to skip datasets that do not need a refetch.
func (r *GlobalCacheRegistry) Fresh(datasetID string) bool {
	_, ok := r.Get(datasetID)
	return ok
}
