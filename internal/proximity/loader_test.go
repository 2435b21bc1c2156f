package proximity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
	"github.com/Luckywi/EcoLyon-sub001/internal/models"
)

// testCenter is Place Bellecour. Feature offsets below are in degrees of
// latitude: 0.0009 ~ 100 m, 0.00809 ~ 900 m, 0.0135 ~ 1500 m.
var testCenter = geo.Coordinate{Latitude: 45.7578, Longitude: 4.8320}

func pointFeature(name string, lat, lon float64) string {
	return fmt.Sprintf(`{"type":"Feature","geometry":{"type":"Point","coordinates":[%f,%f]},"properties":{"nom":%q,"gid":%q}}`,
		lon, lat, name, name)
}

func collection(features ...string) string {
	return fmt.Sprintf(`{"type":"FeatureCollection","features":[%s]}`, strings.Join(features, ","))
}

func testDataset(apiURL string, radius float64, maxItems int) models.Dataset {
	return models.Dataset{
		ID:           "test",
		Name:         "Test dataset",
		APIURL:       apiURL,
		SearchRadius: radius,
		MaxItems:     maxItems,
		Parse: func(coords []float64, props map[string]any) (*models.POI, error) {
			if len(coords) < 2 {
				return nil, fmt.Errorf("need 2 coordinate components, got %d", len(coords))
			}
			name, _ := props["nom"].(string)
			return &models.POI{
				ID:       name,
				Name:     name,
				Category: "test",
				Location: geo.Coordinate{Latitude: coords[1], Longitude: coords[0]},
			}, nil
		},
	}
}

func newTestServer(t *testing.T, body string, fetches *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches != nil {
			fetches.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoader_FilterSortTruncate(t *testing.T) {
	var fetches atomic.Int64
	body := collection(
		pointFeature("far", testCenter.Latitude+0.0135, testCenter.Longitude),  // ~1500 m
		pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude), // ~100 m
		pointFeature("mid", testCenter.Latitude+0.00809, testCenter.Longitude), // ~900 m
	)
	srv := newTestServer(t, body, &fetches)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	items, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("LoadAround: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (the 1500 m point excluded)", len(items))
	}
	if items[0].Name != "near" || items[1].Name != "mid" {
		t.Errorf("got order [%s, %s], want [near, mid]", items[0].Name, items[1].Name)
	}
	if fetches.Load() != 1 {
		t.Errorf("got %d fetches, want 1", fetches.Load())
	}
}

func TestLoader_SecondCallHitsGlobalCache(t *testing.T) {
	var fetches atomic.Int64
	body := collection(pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude))
	srv := newTestServer(t, body, &fetches)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	first, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("first LoadAround: %v", err)
	}
	second, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("second LoadAround: %v", err)
	}

	if len(first) != len(second) || first[0].Name != second[0].Name {
		t.Errorf("second call returned different items: %v vs %v", first, second)
	}
	if fetches.Load() != 1 {
		t.Errorf("got %d fetches, want 1 (second call must hit cache)", fetches.Load())
	}
}

func TestLoader_ZoneCachePathWhenGlobalExpired(t *testing.T) {
	var fetches atomic.Int64
	body := collection(pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude))
	srv := newTestServer(t, body, &fetches)

	registry := NewGlobalCacheRegistry(DefaultGlobalTTL)
	l := NewLoader(testDataset(srv.URL, 1200, 50), registry, srv.Client())

	if _, err := l.LoadAround(context.Background(), testCenter); err != nil {
		t.Fatalf("LoadAround: %v", err)
	}

	// Drop the global entry; the zone entry stays fresh.
	l.registry = NewGlobalCacheRegistry(DefaultGlobalTTL)

	// ~110 m away, same zone, within the 200 m tolerance.
	near := geo.Coordinate{Latitude: testCenter.Latitude + 0.001, Longitude: testCenter.Longitude}
	items, err := l.LoadAround(context.Background(), near)
	if err != nil {
		t.Fatalf("LoadAround from zone: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items from zone cache, want 1", len(items))
	}
	if fetches.Load() != 1 {
		t.Errorf("got %d fetches, want 1 (zone entry must be reused)", fetches.Load())
	}
}

func TestLoader_FarCenterTriggersNewFetch(t *testing.T) {
	var fetches atomic.Int64
	body := collection(pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude))
	srv := newTestServer(t, body, &fetches)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	if _, err := l.LoadAround(context.Background(), testCenter); err != nil {
		t.Fatalf("LoadAround: %v", err)
	}
	l.registry = NewGlobalCacheRegistry(DefaultGlobalTTL)

	// ~550 m away: beyond the 200 m zone tolerance.
	far := geo.Coordinate{Latitude: testCenter.Latitude + 0.005, Longitude: testCenter.Longitude}
	if _, err := l.LoadAround(context.Background(), far); err != nil {
		t.Fatalf("LoadAround far: %v", err)
	}
	if fetches.Load() != 2 {
		t.Errorf("got %d fetches, want 2 (far center must refetch)", fetches.Load())
	}
}

func TestLoader_Truncation(t *testing.T) {
	features := make([]string, 0, 5)
	// Five points at increasing distance, shuffled on the wire.
	offsets := []float64{0.004, 0.001, 0.005, 0.002, 0.003}
	for i, off := range offsets {
		features = append(features, pointFeature(fmt.Sprintf("p%d", i), testCenter.Latitude+off, testCenter.Longitude))
	}
	srv := newTestServer(t, collection(features...), nil)

	l := NewLoader(testDataset(srv.URL, 1200, 2), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	items, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("LoadAround: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want exactly MaxItems=2", len(items))
	}
	// Closest two are the 0.001 and 0.002 offsets.
	if items[0].Name != "p1" || items[1].Name != "p3" {
		t.Errorf("got [%s, %s], want the two closest [p1, p3]", items[0].Name, items[1].Name)
	}
}

func TestLoader_SortedByDistance(t *testing.T) {
	features := []string{
		pointFeature("c", testCenter.Latitude+0.003, testCenter.Longitude),
		pointFeature("a", testCenter.Latitude+0.001, testCenter.Longitude),
		pointFeature("b", testCenter.Latitude+0.002, testCenter.Longitude),
	}
	srv := newTestServer(t, collection(features...), nil)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	items, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("LoadAround: %v", err)
	}
	for i := 1; i < len(items); i++ {
		di := geo.Distance(items[i-1].Location, testCenter)
		dj := geo.Distance(items[i].Location, testCenter)
		if di > dj {
			t.Errorf("items[%d] (%f m) farther than items[%d] (%f m)", i-1, di, i, dj)
		}
	}
}

func TestLoader_DiscardsShortCoordinates(t *testing.T) {
	body := collection(
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[4.8357]},"properties":{"nom":"broken"}}`,
		pointFeature("ok", testCenter.Latitude+0.0009, testCenter.Longitude),
	)
	srv := newTestServer(t, body, nil)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	items, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("LoadAround: %v", err)
	}
	if len(items) != 1 || items[0].Name != "ok" {
		t.Errorf("got %v, want only the well-formed feature", items)
	}
}

func TestLoader_LineGeometryAnchoredAtFirstVertex(t *testing.T) {
	line := fmt.Sprintf(`{"type":"Feature","geometry":{"type":"LineString","coordinates":[[%f,%f],[%f,%f]]},"properties":{"nom":"loop"}}`,
		testCenter.Longitude, testCenter.Latitude+0.0009,
		testCenter.Longitude+0.1, testCenter.Latitude+0.1)
	srv := newTestServer(t, collection(line), nil)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	items, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("LoadAround: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if d := geo.Distance(items[0].Location, testCenter); d > 150 {
		t.Errorf("loop anchored %f m away, want the first vertex (~100 m)", d)
	}
}

func TestLoader_HTTPErrorKeepsPreviousItems(t *testing.T) {
	body := collection(pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude))
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	registry := NewGlobalCacheRegistry(DefaultGlobalTTL)
	l := NewLoader(testDataset(srv.URL, 1200, 50), registry, srv.Client())

	if _, err := l.LoadAround(context.Background(), testCenter); err != nil {
		t.Fatalf("LoadAround: %v", err)
	}

	failing.Store(true)
	l.registry = NewGlobalCacheRegistry(DefaultGlobalTTL)
	l.zones = NewZoneCache(DefaultZoneTTL, DefaultZoneTolerance)

	_, err := l.LoadAround(context.Background(), testCenter)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("got err %v, want HTTPError 500", err)
	}
	if l.LastError() == "" {
		t.Error("LastError not set after failed load")
	}
	if items := l.Items(); len(items) != 1 {
		t.Errorf("previously loaded items cleared on failure: got %d, want 1", len(items))
	}
}

func TestLoader_DecodingError(t *testing.T) {
	srv := newTestServer(t, `{"type":"FeatureCollection","features":[{`, nil)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	_, err := l.LoadAround(context.Background(), testCenter)
	var decodeErr *DecodingError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("got err %v, want DecodingError", err)
	}
}

func TestLoader_InvalidURL(t *testing.T) {
	l := NewLoader(testDataset("not a url", 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), nil)

	_, err := l.LoadAround(context.Background(), testCenter)
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("got err %v, want ErrInvalidURL", err)
	}
}

func TestLoader_EmptyCollection(t *testing.T) {
	srv := newTestServer(t, `{"type":"FeatureCollection","features":[]}`, nil)

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	_, err := l.LoadAround(context.Background(), testCenter)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("got err %v, want ErrNoData", err)
	}
}

func TestLoader_ConcurrentCallersShareOneFetch(t *testing.T) {
	var fetches atomic.Int64
	body := collection(pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	l := NewLoader(testDataset(srv.URL, 1200, 50), NewGlobalCacheRegistry(DefaultGlobalTTL), srv.Client())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.LoadAround(context.Background(), testCenter); err != nil {
				t.Errorf("concurrent LoadAround: %v", err)
			}
		}()
	}
	wg.Wait()

	if fetches.Load() != 1 {
		t.Errorf("got %d fetches for 8 concurrent callers, want 1", fetches.Load())
	}
}

func TestLoader_LateFetchDoesNotOverwriteNewerResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	body := collection(pointFeature("stale", testCenter.Latitude+0.0009, testCenter.Longitude))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	registry := NewGlobalCacheRegistry(DefaultGlobalTTL)
	ds := testDataset(srv.URL, 1200, 50)
	l := NewLoader(ds, registry, srv.Client())

	firstDone := make(chan error, 1)
	go func() {
		_, err := l.LoadAround(context.Background(), testCenter)
		firstDone <- err
	}()
	<-started

	// While the first fetch is stuck on the wire, a newer request completes
	// through the global cache path.
	registry.Put(ds.ID, []*models.POI{{
		ID:       "fresh",
		Name:     "fresh",
		Category: "test",
		Location: geo.Coordinate{Latitude: testCenter.Latitude + 0.0009, Longitude: testCenter.Longitude},
	}})
	newer, err := l.LoadAround(context.Background(), testCenter)
	if err != nil {
		t.Fatalf("second LoadAround: %v", err)
	}
	if len(newer) != 1 || newer[0].Name != "fresh" {
		t.Fatalf("second call got %v, want the cached fresh item", newer)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first LoadAround: %v", err)
	}

	items := l.Items()
	if len(items) != 1 || items[0].Name != "fresh" {
		t.Errorf("Items() = %v, want the newer result to survive the late fetch", items)
	}
	if msg := l.LastError(); msg != "" {
		t.Errorf("LastError = %q, want empty", msg)
	}
}

func TestLoader_RefreshGlobalPopulatesRegistry(t *testing.T) {
	var fetches atomic.Int64
	body := collection(pointFeature("near", testCenter.Latitude+0.0009, testCenter.Longitude))
	srv := newTestServer(t, body, &fetches)

	registry := NewGlobalCacheRegistry(DefaultGlobalTTL)
	l := NewLoader(testDataset(srv.URL, 1200, 50), registry, srv.Client())

	if err := l.RefreshGlobal(context.Background()); err != nil {
		t.Fatalf("RefreshGlobal: %v", err)
	}
	if !l.GlobalFresh() {
		t.Fatal("GlobalFresh = false after refresh")
	}

	// The interactive query now runs entirely off the warmed cache.
	if _, err := l.LoadAround(context.Background(), testCenter); err != nil {
		t.Fatalf("LoadAround: %v", err)
	}
	if fetches.Load() != 1 {
		t.Errorf("got %d fetches, want 1", fetches.Load())
	}
}
