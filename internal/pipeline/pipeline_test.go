package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptide/collector/internal/clean"
	"github.com/triptide/collector/internal/config"
	"github.com/triptide/collector/internal/enrich"
	"github.com/triptide/collector/internal/geo"
	"github.com/triptide/collector/internal/harvest"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/overpass"
	"github.com/triptide/collector/internal/pipeline"
)

type stubFetcher struct{}

func (stubFetcher) FetchTile(_ context.Context, _ geo.BoundingBox) (*overpass.TileResponse, error) {
	return &overpass.TileResponse{Elements: []overpass.Element{
		{Type: "node", ID: 1, Lat: 41.66, Lon: 44.76, Tags: map[string]string{
			"name": "Narikala Fortress", "historic": "castle",
		}},
		{Type: "node", ID: 2, Lat: 41.67, Lon: 44.77, Tags: map[string]string{
			"name": "Blue Cafe", "amenity": "cafe",
		}},
	}}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string) ([]byte, error) {
	return []byte(`{"description":"Generated.","summary":"Generated city summary.","duration_min":30}`), nil
}

func newTestPipeline(t *testing.T, store layers.Store) *pipeline.Pipeline {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Cities: map[string]config.City{
		"tbilisi": {
			Name:        "Tbilisi",
			CountryCode: "GE",
			Timezone:    "Asia/Tbilisi",
			BBox:        geo.BoundingBox{North: 41.70, South: 41.65, East: 44.80, West: 44.75},
		},
	}}

	gen := stubGenerator{}
	return pipeline.New(
		cfg,
		store,
		harvest.NewHarvester(stubFetcher{}, store, log),
		clean.NewStandardizer(store, log),
		enrich.NewEnricher(store, gen, nil, log),
		enrich.NewDestinationEnricher(store, gen, log),
		log,
		pipeline.Options{},
	)
}

func TestRunStage_All(t *testing.T) {
	store := layers.NewMemStore()
	p := newTestPipeline(t, store)

	// No loader configured: "all" runs harvest, clean and enrich and skips
	// the load stage.
	require.NoError(t, p.RunStage(context.Background(), "Tbilisi", pipeline.StageAll))

	cleaned, err := store.ReadCleaned("tbilisi")
	require.NoError(t, err)
	assert.Len(t, cleaned, 2)

	enriched, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, enriched, 2)
	for _, r := range enriched {
		assert.Equal(t, "Generated.", r.Enrichment.Description)
	}

	dest, err := store.ReadDestination("tbilisi")
	require.NoError(t, err)
	require.NotNil(t, dest)
	assert.Equal(t, "Generated city summary.", dest.Details.Summary)
}

func TestRunStage_SingleStages(t *testing.T) {
	store := layers.NewMemStore()
	p := newTestPipeline(t, store)
	ctx := context.Background()

	require.NoError(t, p.RunStage(ctx, "tbilisi", pipeline.StageHarvest))
	require.NoError(t, p.RunStage(ctx, "tbilisi", pipeline.StageClean))
	require.NoError(t, p.RunStage(ctx, "tbilisi", pipeline.StageEnrich))

	enriched, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, enriched, 2)
}

func TestRunStage_CleanBeforeHarvestFails(t *testing.T) {
	p := newTestPipeline(t, layers.NewMemStore())
	err := p.RunStage(context.Background(), "tbilisi", pipeline.StageClean)
	require.Error(t, err)
}

func TestRunStage_UnknownCity(t *testing.T) {
	p := newTestPipeline(t, layers.NewMemStore())
	err := p.RunStage(context.Background(), "atlantis", pipeline.StageHarvest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown city")
}

func TestRunStage_UnknownStage(t *testing.T) {
	p := newTestPipeline(t, layers.NewMemStore())
	err := p.RunStage(context.Background(), "tbilisi", "teleport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestRunStage_LoadWithoutDatabase(t *testing.T) {
	p := newTestPipeline(t, layers.NewMemStore())
	err := p.RunStage(context.Background(), "tbilisi", pipeline.StageLoad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}

func TestStatus(t *testing.T) {
	store := layers.NewMemStore()
	p := newTestPipeline(t, store)

	require.NoError(t, p.RunStage(context.Background(), "tbilisi", pipeline.StageHarvest))

	status, err := p.Status()
	require.NoError(t, err)
	assert.Equal(t, []string{"tbilisi"}, status.Cities)
	assert.Equal(t, 1, status.Layers.Bronze)
}

func TestRunStage_Idempotent(t *testing.T) {
	store := layers.NewMemStore()
	p := newTestPipeline(t, store)
	ctx := context.Background()

	require.NoError(t, p.RunStage(ctx, "tbilisi", pipeline.StageAll))
	require.NoError(t, p.RunStage(ctx, "tbilisi", pipeline.StageAll))

	enriched, err := store.ReadEnriched("tbilisi")
	require.NoError(t, err)
	assert.Len(t, enriched, 2, "rerunning the pipeline must not duplicate gold records")
}
