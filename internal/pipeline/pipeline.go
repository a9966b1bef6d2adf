// Package pipeline wires the harvest, clean, enrich and load stages into a
// single orchestrator shared by the CLI and the HTTP control surface.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/triptide/collector/internal/clean"
	"github.com/triptide/collector/internal/config"
	"github.com/triptide/collector/internal/enrich"
	"github.com/triptide/collector/internal/harvest"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/metrics"
	"github.com/triptide/collector/internal/storage"
)

// Stage names accepted by RunStage.
const (
	StageHarvest = "harvest"
	StageClean   = "clean"
	StageEnrich  = "enrich"
	StageLoad    = "load"
	StageAll     = "all"
)

// Pipeline runs stages for configured cities. The loader is nil when no
// database is configured; the load stage then fails with a clear error
// instead of panicking.
type Pipeline struct {
	cfg          *config.Config
	store        layers.Store
	harvester    *harvest.Harvester
	standardizer *clean.Standardizer
	enricher     *enrich.Enricher
	destEnricher *enrich.DestinationEnricher
	loader       *storage.Loader
	log          *slog.Logger

	workers     int
	enrichLimit int
}

// Options carries the optional pieces of a Pipeline.
type Options struct {
	Loader      *storage.Loader
	Workers     int
	EnrichLimit int
}

func New(
	cfg *config.Config,
	store layers.Store,
	harvester *harvest.Harvester,
	standardizer *clean.Standardizer,
	enricher *enrich.Enricher,
	destEnricher *enrich.DestinationEnricher,
	log *slog.Logger,
	opts Options,
) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		store:        store,
		harvester:    harvester,
		standardizer: standardizer,
		enricher:     enricher,
		destEnricher: destEnricher,
		loader:       opts.Loader,
		log:          log,
		workers:      opts.Workers,
		enrichLimit:  opts.EnrichLimit,
	}
}

// RunStage runs one named stage (or "all") for the city. Unknown cities and
// stages fail before any work starts.
func (p *Pipeline) RunStage(ctx context.Context, cityName, stage string) error {
	city, ok := p.cfg.City(cityName)
	if !ok {
		return fmt.Errorf("unknown city %q", cityName)
	}

	switch stage {
	case StageHarvest, StageClean, StageEnrich, StageLoad:
		return p.runOne(ctx, city, stage)
	case StageAll:
		for _, s := range []string{StageHarvest, StageClean, StageEnrich, StageLoad} {
			if s == StageLoad && p.loader == nil {
				p.log.Info("skipping load stage, no database configured", "city", city.Key())
				continue
			}
			if err := p.runOne(ctx, city, s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func (p *Pipeline) runOne(ctx context.Context, city config.City, stage string) error {
	start := time.Now()
	p.log.Info("stage starting", "city", city.Key(), "stage", stage)

	var err error
	switch stage {
	case StageHarvest:
		_, err = p.harvester.Run(ctx, city)
	case StageClean:
		_, err = p.standardizer.Run(city.Key())
	case StageEnrich:
		if p.workers > 1 {
			_, err = p.enricher.RunParallel(ctx, city.Key(), p.enrichLimit, p.workers)
		} else {
			_, err = p.enricher.Run(ctx, city.Key(), p.enrichLimit)
		}
		if err == nil {
			_, err = p.destEnricher.Run(ctx, city)
		}
	case StageLoad:
		if p.loader == nil {
			return fmt.Errorf("load stage requires a configured database")
		}
		_, err = p.loader.LoadCity(ctx, city)
	}

	metrics.ObserveStage(stage, time.Since(start))
	if err != nil {
		return fmt.Errorf("stage %s for %s: %w", stage, city.Key(), err)
	}
	p.log.Info("stage finished", "city", city.Key(), "stage", stage, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Status describes the pipeline's configured cities and stored data volumes.
type Status struct {
	Cities []string      `json:"cities"`
	Layers layers.Counts `json:"layers"`
}

// Status reports configured cities and per-layer counts.
func (p *Pipeline) Status() (Status, error) {
	counts, err := p.store.Counts()
	if err != nil {
		return Status{}, fmt.Errorf("counting layer data: %w", err)
	}

	cities := make([]string, 0, len(p.cfg.Cities))
	for key := range p.cfg.Cities {
		cities = append(cities, key)
	}
	sort.Strings(cities)
	return Status{Cities: cities, Layers: counts}, nil
}
