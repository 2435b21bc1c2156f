// Package proximity implements the shared nearby-POI pipeline: a process-wide
// full-dataset cache, a per-loader zone cache, and the fetch/filter/sort path
// that feeds both.
package proximity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
	"github.com/Luckywi/EcoLyon-sub001/internal/models"
)

// Loader answers "what is near this coordinate" for one dataset. Lookup
// order: global cache, zone cache, network. All mutable state is private to
// the instance and serialized by one mutex; only the registry is shared.
type Loader struct {
	dataset  models.Dataset
	registry *GlobalCacheRegistry
	client   *http.Client

	mu       sync.Mutex
	zones    *ZoneCache
	items    []*models.POI
	loading  bool
	lastErr  string
	latest   uint64
	inflight *fetch
}

// fetch is a single-flight future: the first caller performs the network
// fetch, concurrent callers wait on done and share the result.
type fetch struct {
	done  chan struct{}
	items []*models.POI
	err   error
}

func NewLoader(dataset models.Dataset, registry *GlobalCacheRegistry, client *http.Client) *Loader {
	return NewLoaderWithPolicy(dataset, registry, client, DefaultZoneTTL, DefaultZoneTolerance)
}

// NewLoaderWithPolicy overrides the zone cache expiry and positional
// tolerance, normally taken from config.
func NewLoaderWithPolicy(dataset models.Dataset, registry *GlobalCacheRegistry, client *http.Client, zoneTTL time.Duration, zoneTolerance float64) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Loader{
		dataset:  dataset,
		registry: registry,
		client:   client,
		zones:    NewZoneCache(zoneTTL, zoneTolerance),
	}
}

// LoadAround returns the items within the dataset's search radius of center,
// sorted ascending by distance and truncated to the dataset's max count.
// On failure the previously loaded items are kept; stale data beats an empty
// result.
func (l *Loader) LoadAround(ctx context.Context, center geo.Coordinate) ([]*models.POI, error) {
	l.mu.Lock()
	l.latest++
	gen := l.latest

	if all, ok := l.registry.Get(l.dataset.ID); ok {
		result := truncate(filterSort(all, center, l.dataset.SearchRadius), l.dataset.MaxItems)
		l.items = result
		l.lastErr = ""
		l.mu.Unlock()
		slog.Debug("global cache hit", "dataset", l.dataset.ID, "count", len(result))
		return result, nil
	}

	key := geo.ZoneKey(center)
	if zone, ok := l.zones.Get(key, center); ok {
		// Zone entries are already filtered and sorted for this cell.
		result := truncate(zone.Items, l.dataset.MaxItems)
		l.items = result
		l.lastErr = ""
		l.mu.Unlock()
		slog.Debug("zone cache hit", "dataset", l.dataset.ID, "zone", key, "count", len(result))
		return result, nil
	}
	l.mu.Unlock()

	all, err := l.fetchShared(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		if gen == l.latest {
			l.lastErr = err.Error()
		}
		return nil, err
	}

	filtered := filterSort(all, center, l.dataset.SearchRadius)
	l.zones.Put(key, filtered, center)

	result := truncate(filtered, l.dataset.MaxItems)
	if gen == l.latest {
		// A fetch that lost the race to a newer request must not
		// overwrite the fresher observable state.
		l.items = result
		l.lastErr = ""
	}
	return result, nil
}

// RefreshGlobal refetches the full dataset into the global cache. Used by the
// background warmer; does not touch the loader's observable items.
func (l *Loader) RefreshGlobal(ctx context.Context) error {
	_, err := l.fetchShared(ctx)
	return err
}

// GlobalFresh reports whether the dataset's global cache entry is fresh.
func (l *Loader) GlobalFresh() bool {
	return l.registry.Fresh(l.dataset.ID)
}

// Items returns a snapshot of the most recently loaded result.
func (l *Loader) Items() []*models.POI {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.POI, len(l.items))
	copy(out, l.items)
	return out
}

func (l *Loader) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// LastError returns the user-facing message of the most recent failure, or
// "" if the last load succeeded.
func (l *Loader) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// fetchShared performs the network fetch with at most one request in flight
// per loader. The fetching caller populates the global cache on success.
func (l *Loader) fetchShared(ctx context.Context) ([]*models.POI, error) {
	l.mu.Lock()
	if f := l.inflight; f != nil {
		l.mu.Unlock()
		select {
		case <-f.done:
			return f.items, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &fetch{done: make(chan struct{})}
	l.inflight = f
	l.loading = true
	l.mu.Unlock()

	f.items, f.err = l.fetchAll(ctx)
	if f.err == nil {
		l.registry.Put(l.dataset.ID, f.items)
	}

	l.mu.Lock()
	l.inflight = nil
	l.loading = false
	l.mu.Unlock()
	close(f.done)

	if f.err != nil {
		slog.Error("dataset fetch failed", "dataset", l.dataset.ID, "error", f.err)
	} else {
		slog.Info("dataset fetched", "dataset", l.dataset.ID, "count", len(f.items))
	}
	return f.items, f.err
}

// fetchAll pulls and parses the entire feature collection. The open-data
// endpoints do no server-side spatial filtering; radius filtering happens at
// read time.
func (l *Loader) fetchAll(ctx context.Context) ([]*models.POI, error) {
	u, err := url.Parse(l.dataset.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, l.dataset.APIURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, &DecodingError{Err: err}
	}
	if len(fc.Features) == 0 {
		return nil, ErrNoData
	}

	items := make([]*models.POI, 0, len(fc.Features))
	for _, feat := range fc.Features {
		coords, ok := feat.Geometry.anchorPoint()
		if !ok {
			slog.Debug("skipping feature without usable coordinates", "dataset", l.dataset.ID)
			continue
		}
		poi, err := l.dataset.Parse(coords, feat.Properties)
		if err != nil {
			slog.Warn("skipping unparseable feature", "dataset", l.dataset.ID, "error", err)
			continue
		}
		items = append(items, poi)
	}
	return items, nil
}

type candidate struct {
	poi      *models.POI
	distance float64
}

// filterSort keeps the items within radius of center, sorted ascending by
// distance. The sort is stable: equal distances retain upstream order.
func filterSort(items []*models.POI, center geo.Coordinate, radius float64) []*models.POI {
	minLat, minLon, maxLat, maxLon := geo.BoundingBox(center, radius)

	candidates := make([]candidate, 0, len(items))
	for _, p := range items {
		loc := p.Location
		if loc.Latitude < minLat || loc.Latitude > maxLat ||
			loc.Longitude < minLon || loc.Longitude > maxLon {
			continue
		}
		if d := geo.Distance(loc, center); d <= radius {
			candidates = append(candidates, candidate{poi: p, distance: d})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	out := make([]*models.POI, len(candidates))
	for i, c := range candidates {
		out[i] = c.poi
	}
	return out
}

func truncate(items []*models.POI, max int) []*models.POI {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}
