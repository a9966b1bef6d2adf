package enrich_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptide/collector/internal/enrich"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/poi"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fail  bool
	reply string
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) ([]byte, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.fail {
		return nil, fmt.Errorf("backend unavailable")
	}
	reply := g.reply
	if reply == "" {
		reply = `{"description":"Generated content.","duration_min":45,"best_time":"Evening","personas":{"Culture":70},"price_level":1}`
	}
	return []byte(reply), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]poi.Enrichment
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]poi.Enrichment{}}
}

func (c *mapCache) Get(_ context.Context, osmID string) (*poi.Enrichment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[osmID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (c *mapCache) Set(_ context.Context, osmID string, e poi.Enrichment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[osmID] = e
	c.sets++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCleaned(t *testing.T, store *layers.MemStore, city string, names ...string) {
	t.Helper()
	records := make([]poi.POI, len(names))
	for i, name := range names {
		records[i] = poi.POI{
			OSMID:    fmt.Sprintf("node/%d", i+1),
			Name:     name,
			Category: "museum",
			Lat:      41.7,
			Lon:      44.8,
		}
	}
	require.NoError(t, store.WriteCleaned(city, records))
}

func TestRun_EnrichesEveryCandidate(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum", "Sulphur Baths")

	gen := &fakeGenerator{}
	e := enrich.NewEnricher(store, gen, nil, testLogger())

	stats, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Candidates)
	assert.Equal(t, 2, stats.Enriched)
	assert.Equal(t, 0, stats.Fallbacks)

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Generated content.", records[0].Enrichment.Description)
	assert.Equal(t, 45, records[0].Enrichment.DurationMin)
	assert.Equal(t, 1, records[0].Enrichment.PriceLevel)
}

func TestRun_PersistsAfterEveryRecord(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "A Museum", "B Museum", "C Museum")

	e := enrich.NewEnricher(store, &fakeGenerator{}, nil, testLogger())
	_, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)

	assert.Equal(t, 3, store.EnrichedWrites, "gold layer is rewritten after each record")
}

func TestRun_SkipsAlreadyEnriched(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum", "Sulphur Baths")

	gen := &fakeGenerator{}
	e := enrich.NewEnricher(store, gen, nil, testLogger())

	_, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	firstCalls := gen.callCount()

	stats, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Candidates)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, firstCalls, gen.callCount(), "rerun must not regenerate")

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, records, 2, "rerun must not duplicate records")
}

func TestRun_IdempotentUnderFailingBackend(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum", "Sulphur Baths")

	gen := &fakeGenerator{fail: true}
	e := enrich.NewEnricher(store, gen, nil, testLogger())

	_, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, records, 2, "fallback records must not be appended twice")
	for _, r := range records {
		assert.True(t, r.Enrichment.Fallback)
	}
}

func TestRun_FallbackOnGenerationFailure(t *testing.T) {
	store := layers.NewMemStore()
	require.NoError(t, store.WriteCleaned("tbilisi", []poi.POI{{
		OSMID:    "node/1",
		Name:     "Old Fort",
		Category: "historic",
		Lat:      41.7,
		Lon:      44.8,
	}}))

	e := enrich.NewEnricher(store, &fakeGenerator{fail: true}, nil, testLogger())
	stats, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fallbacks)

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0].Enrichment
	assert.True(t, got.Fallback)
	assert.Equal(t, "A wonderful historic in the area.", got.Description)
	assert.Equal(t, 60, got.DurationMin)
	assert.Equal(t, "Morning", got.BestTime)
	assert.Equal(t, 0, got.PriceLevel, "historic sites default to free entry")
	assert.Equal(t, 80, got.Personas["Culture"])
}

func TestRun_FallbackOnMalformedReply(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum")

	gen := &fakeGenerator{reply: `{"duration_min":30}`} // no description
	e := enrich.NewEnricher(store, gen, nil, testLogger())

	stats, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fallbacks)
}

func TestRun_UsesCache(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum")

	cache := newMapCache()
	cache.entries["node/1"] = poi.Enrichment{Description: "Cached content.", DurationMin: 30, BestTime: "Morning"}

	gen := &fakeGenerator{}
	e := enrich.NewEnricher(store, gen, cache, testLogger())

	stats, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FromCache)
	assert.Equal(t, 0, gen.callCount())

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Equal(t, "Cached content.", records[0].Enrichment.Description)
}

func TestRun_PopulatesCacheAfterGeneration(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum")

	cache := newMapCache()
	e := enrich.NewEnricher(store, &fakeGenerator{}, cache, testLogger())

	_, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
}

func TestRun_RespectsLimit(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "A Museum", "B Museum", "C Museum")

	e := enrich.NewEnricher(store, &fakeGenerator{}, nil, testLogger())
	stats, err := e.Run(context.Background(), "tbilisi", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Candidates)

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRun_ManualRecordsComeFirst(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "National Museum")
	require.NoError(t, store.WriteManual("tbilisi", []poi.POI{{
		OSMID:    "manual/1",
		Name:     "Hidden Gem",
		Category: "cafe",
		Lat:      41.71,
		Lon:      44.81,
	}}))

	e := enrich.NewEnricher(store, &fakeGenerator{}, nil, testLogger())
	_, err := e.Run(context.Background(), "tbilisi", 0)
	require.NoError(t, err)

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Hidden Gem", records[0].Name)
	assert.Equal(t, 100, records[0].PriorityScore)
	assert.True(t, records[0].IsManual)
}

func TestRun_NoCleanedData(t *testing.T) {
	e := enrich.NewEnricher(layers.NewMemStore(), &fakeGenerator{}, nil, testLogger())
	_, err := e.Run(context.Background(), "tbilisi", 0)
	require.Error(t, err)
}

func TestRunParallel_MatchesSequentialResults(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "A Museum", "B Museum", "C Museum", "D Museum")

	gen := &fakeGenerator{}
	e := enrich.NewEnricher(store, gen, nil, testLogger())

	stats, err := e.RunParallel(context.Background(), "tbilisi", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Enriched)
	assert.Equal(t, 4, gen.callCount())

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	require.Len(t, records, 4)

	seen := map[string]bool{}
	for _, r := range records {
		assert.False(t, seen[r.OSMID], "no duplicate identities")
		seen[r.OSMID] = true
		assert.NotEmpty(t, r.Enrichment.Description)
	}

	assert.Equal(t, 1, store.EnrichedWrites, "parallel mode writes once after the join")
}

func TestRunParallel_SkipsAlreadyEnriched(t *testing.T) {
	store := layers.NewMemStore()
	seedCleaned(t, store, "tbilisi", "A Museum", "B Museum")

	gen := &fakeGenerator{}
	e := enrich.NewEnricher(store, gen, nil, testLogger())

	_, err := e.RunParallel(context.Background(), "tbilisi", 0, 2)
	require.NoError(t, err)

	stats, err := e.RunParallel(context.Background(), "tbilisi", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, gen.callCount())

	records, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFallback_PriceLevels(t *testing.T) {
	base := poi.POI{OSMID: "node/1", Name: "X", Lat: 41.7, Lon: 44.8}

	cases := map[string]int{
		"museum":     1,
		"viewpoint":  0,
		"park":       0,
		"monument":   0,
		"restaurant": 2,
		"hotel":      3,
		"whatever":   2,
	}
	for category, want := range cases {
		p := base
		p.Category = category
		assert.Equal(t, want, enrich.Fallback(p).PriceLevel, "category %s", category)
	}
}

func TestFallback_UsesCityTag(t *testing.T) {
	p := poi.POI{
		OSMID:    "node/1",
		Name:     "Blue Cafe",
		Category: "cafe",
		Lat:      41.7,
		Lon:      44.8,
		Tags:     map[string]string{"addr:city": "Tbilisi"},
	}
	assert.Equal(t, "A wonderful cafe in Tbilisi.", enrich.Fallback(p).Description)
}
