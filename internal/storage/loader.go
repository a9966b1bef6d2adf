package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/triptide/collector/internal/config"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/metrics"
	"github.com/triptide/collector/internal/poi"
)

// DestinationRepo is the write surface the loader needs; *Repository
// satisfies it.
type DestinationRepo interface {
	UpsertDestination(ctx context.Context, d *poi.Destination) (int64, error)
	UpsertDestinationDetails(ctx context.Context, destinationID int64, details poi.DestinationDetails) error
	UpsertActivities(ctx context.Context, destinationID int64, records []poi.EnrichedPOI) (loaded, failed int, err error)
}

// LoadStats summarizes one city's production load.
type LoadStats struct {
	City          string `json:"city"`
	DestinationID int64  `json:"destination_id"`
	Activities    int    `json:"activities"`
	Loaded        int    `json:"loaded"`
	Failed        int    `json:"failed"`
}

// Loader moves a city's gold layer into the production database. Loads are
// idempotent: rerunning overwrites the same rows.
type Loader struct {
	store layers.Store
	repo  DestinationRepo
	log   *slog.Logger
}

func NewLoader(store layers.Store, repo DestinationRepo, log *slog.Logger) *Loader {
	return &Loader{store: store, repo: repo, log: log}
}

// LoadCity upserts the destination row, its details and every enriched
// activity for the city.
func (l *Loader) LoadCity(ctx context.Context, city config.City) (LoadStats, error) {
	key := city.Key()
	stats := LoadStats{City: key}

	records, err := l.store.ReadEnriched(key)
	if err != nil {
		return stats, fmt.Errorf("reading enriched records for %s: %w", key, err)
	}
	if len(records) == 0 {
		return stats, fmt.Errorf("no enriched records for %s, run the enrich stage first", key)
	}
	stats.Activities = len(records)

	dest, err := l.store.ReadDestination(key)
	if err != nil {
		return stats, fmt.Errorf("reading destination for %s: %w", key, err)
	}
	if dest == nil {
		// Enrichment can complete without a destination record; load a
		// minimal one so activities have a parent row.
		dest = &poi.Destination{
			Slug:        key,
			Name:        city.Name,
			CountryCode: city.CountryCode,
			Center:      city.BBox.Center(),
			Timezone:    city.Timezone,
		}
	}

	id, err := l.repo.UpsertDestination(ctx, dest)
	if err != nil {
		return stats, err
	}
	stats.DestinationID = id

	if err := l.repo.UpsertDestinationDetails(ctx, id, dest.Details); err != nil {
		return stats, err
	}

	loaded, failed, err := l.repo.UpsertActivities(ctx, id, records)
	if err != nil {
		return stats, err
	}
	stats.Loaded = loaded
	stats.Failed = failed
	metrics.AddLoaded(metrics.ResultOK, loaded)
	metrics.AddLoaded(metrics.ResultError, failed)

	l.log.Info("load complete",
		"city", key,
		"destination_id", id,
		"activities", stats.Activities,
		"loaded", loaded,
		"failed", failed,
	)
	return stats, nil
}
