// Package harvest implements the bronze stage: it splits a city's bounding
// box into tiles and fetches each tile's raw OSM data.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/triptide/collector/internal/config"
	"github.com/triptide/collector/internal/geo"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/metrics"
	"github.com/triptide/collector/internal/overpass"
)

// Tiles of 0.05 degrees keep individual responses small enough for the
// public API's limits.
const defaultTileStep = 0.05

// TileFetcher fetches the raw data for one tile; *overpass.Client satisfies
// it.
type TileFetcher interface {
	FetchTile(ctx context.Context, box geo.BoundingBox) (*overpass.TileResponse, error)
}

// Harvester drives tile fetching against the layer store.
type Harvester struct {
	fetcher TileFetcher
	store   layers.Store
	log     *slog.Logger
	step    float64
}

func NewHarvester(fetcher TileFetcher, store layers.Store, log *slog.Logger) *Harvester {
	return &Harvester{fetcher: fetcher, store: store, log: log, step: defaultTileStep}
}

// Run harvests every tile of the city's bounding box. When a previous
// harvest exists it is resumed: tiles already on disk are skipped, so an
// interrupted run picks up where it stopped and a completed run makes no
// external calls at all. A failed tile is logged and counted, not fatal.
func (h *Harvester) Run(ctx context.Context, city config.City) (layers.HarvestMeta, error) {
	key := city.Key()
	tiles := city.BBox.SplitTiles(h.step)

	harvest, err := h.store.LatestHarvest(key)
	if err != nil {
		return layers.HarvestMeta{}, fmt.Errorf("finding latest harvest for %s: %w", key, err)
	}
	if harvest == "" {
		if harvest, err = h.store.CreateHarvest(key); err != nil {
			return layers.HarvestMeta{}, fmt.Errorf("creating harvest for %s: %w", key, err)
		}
	}

	meta := layers.HarvestMeta{
		City:    key,
		Harvest: harvest,
		BBox:    city.BBox,
		Tiles:   len(tiles),
	}

	h.log.Info("harvest starting", "city", key, "harvest", harvest, "tiles", len(tiles))

	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return meta, err
		}
		if h.store.HasTile(key, harvest, i) {
			meta.Skipped++
			metrics.IncTile(metrics.ResultSkipped)
			continue
		}

		resp, err := h.fetcher.FetchTile(ctx, tile)
		if err != nil {
			h.log.Warn("tile fetch failed", "city", key, "tile", i, "error", err)
			meta.Failed++
			metrics.IncTile(metrics.ResultError)
			continue
		}

		raw, err := json.Marshal(resp)
		if err != nil {
			return meta, fmt.Errorf("encoding tile %d for %s: %w", i, key, err)
		}
		if err := h.store.WriteTile(key, harvest, i, raw); err != nil {
			return meta, fmt.Errorf("writing tile %d for %s: %w", i, key, err)
		}

		meta.Fetched++
		meta.TotalElements += len(resp.Elements)
		metrics.IncTile(metrics.ResultOK)
	}

	meta.CompletedAt = time.Now().UTC()
	if err := h.store.WriteMeta(layers.StageBronze, key, meta); err != nil {
		h.log.Warn("failed to write bronze metadata", "city", key, "error", err)
	}

	h.log.Info("harvest complete",
		"city", key,
		"harvest", harvest,
		"fetched", meta.Fetched,
		"skipped", meta.Skipped,
		"failed", meta.Failed,
		"elements", meta.TotalElements,
	)
	return meta, nil
}
