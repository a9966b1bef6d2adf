package clean_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptide/collector/internal/clean"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/overpass"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marshalTile(elements []overpass.Element) ([]byte, error) {
	return json.Marshal(overpass.TileResponse{Elements: elements})
}

func seedHarvest(t *testing.T, store *layers.MemStore, city string, elements []overpass.Element) {
	t.Helper()
	harvest, err := store.CreateHarvest(city)
	require.NoError(t, err)
	raw, err := marshalTile(elements)
	require.NoError(t, err)
	require.NoError(t, store.WriteTile(city, harvest, 0, raw))
}

func node(id int64, name string, tags map[string]string) overpass.Element {
	if tags == nil {
		tags = map[string]string{}
	}
	tags["name"] = name
	return overpass.Element{Type: "node", ID: id, Lat: 41.7, Lon: 44.8, Tags: tags}
}

func TestRun_NoHarvest(t *testing.T) {
	s := clean.NewStandardizer(layers.NewMemStore(), testLogger())
	_, err := s.Run("tbilisi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no harvest")
}

func TestRun_CategorizesByTagPrecedence(t *testing.T) {
	store := layers.NewMemStore()
	seedHarvest(t, store, "tbilisi", []overpass.Element{
		node(1, "National Museum", map[string]string{"tourism": "museum", "amenity": "cafe"}),
		node(2, "Blue Lagoon Restaurant", map[string]string{"amenity": "restaurant"}),
		node(3, "Narikala Fortress", map[string]string{"historic": "fort"}),
		node(4, "Gonio Beach", map[string]string{"natural": "beach"}),
		node(5, "Vake Park", map[string]string{"leisure": "park"}),
		node(6, "Mystery Spot", map[string]string{"building": "yes"}),
	})

	s := clean.NewStandardizer(store, testLogger())
	_, err := s.Run("tbilisi")
	require.NoError(t, err)

	records, err := store.ReadCleaned("tbilisi")
	require.NoError(t, err)

	byName := map[string]string{}
	for _, r := range records {
		byName[r.Name] = r.Category
	}
	assert.Equal(t, "museum", byName["National Museum"], "tourism outranks amenity")
	assert.Equal(t, "restaurant", byName["Blue Lagoon Restaurant"])
	assert.Equal(t, "historic", byName["Narikala Fortress"], "historic collapses to a single category")
	assert.Equal(t, "beach", byName["Gonio Beach"])
	assert.Equal(t, "park", byName["Vake Park"])
	assert.Equal(t, "unknown", byName["Mystery Spot"])
}

func TestRun_DeduplicatesByNameAndCategory(t *testing.T) {
	store := layers.NewMemStore()
	seedHarvest(t, store, "tbilisi", []overpass.Element{
		node(1, "Sulphur Baths", map[string]string{"tourism": "attraction"}),
		node(2, "sulphur baths", map[string]string{"tourism": "attraction"}),
		node(3, "Sulphur Baths", map[string]string{"amenity": "restaurant"}),
	})

	s := clean.NewStandardizer(store, testLogger())
	stats, err := s.Run("tbilisi")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deduped)

	records, err := store.ReadCleaned("tbilisi")
	require.NoError(t, err)
	assert.Len(t, records, 2, "same name with a different category is not a duplicate")
}

func TestRun_TransliteratesAndKeepsOriginal(t *testing.T) {
	store := layers.NewMemStore()
	seedHarvest(t, store, "tbilisi", []overpass.Element{
		node(1, "თბილისი", nil),
		node(2, "ნარიყალა", map[string]string{"name:en": "Narikala Fortress", "historic": "castle"}),
	})

	s := clean.NewStandardizer(store, testLogger())
	stats, err := s.Run("tbilisi")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Translation.Transliterated)
	assert.Equal(t, 1, stats.Translation.EnglishTag)

	records, err := store.ReadCleaned("tbilisi")
	require.NoError(t, err)
	require.Len(t, records, 2)

	byName := map[string]string{}
	for _, r := range records {
		byName[r.Name] = r.OriginalName
	}
	assert.Equal(t, "თბილისი", byName["Tbilisi"], "original script is preserved alongside the Latin name")
	assert.Equal(t, "ნარიყალა", byName["Narikala Fortress"])
}

func TestRun_DropsUnnamedAndUnresolvable(t *testing.T) {
	store := layers.NewMemStore()
	seedHarvest(t, store, "tbilisi", []overpass.Element{
		{Type: "node", ID: 1, Lat: 41.7, Lon: 44.8, Tags: map[string]string{"tourism": "museum"}},
		node(2, "東京タワー", nil),
		node(3, "Narikala Fortress", map[string]string{"historic": "fort"}),
	})

	s := clean.NewStandardizer(store, testLogger())
	stats, err := s.Run("tbilisi")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.RawElements)
	assert.Equal(t, 2, stats.Translation.Total, "unnamed elements never reach translation")
	assert.Equal(t, 1, stats.Translation.Failed)

	records, err := store.ReadCleaned("tbilisi")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_ValidationStatsReachMetadata(t *testing.T) {
	store := layers.NewMemStore()
	seedHarvest(t, store, "tbilisi", []overpass.Element{
		node(1, "Narikala Fortress", map[string]string{"historic": "fort"}),
		node(2, "12345", map[string]string{"tourism": "attraction"}),
	})

	s := clean.NewStandardizer(store, testLogger())
	stats, err := s.Run("tbilisi")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Validation.Valid)
	assert.Equal(t, 1, stats.Validation.Rejected)

	meta, ok := store.Meta(layers.StageSilver, "tbilisi").(clean.Stats)
	require.True(t, ok)
	assert.Equal(t, stats.Validation, meta.Validation)
	assert.False(t, meta.CompletedAt.IsZero())
}
