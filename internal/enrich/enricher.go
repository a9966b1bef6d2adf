// Package enrich implements the gold stage: it generates travel content for
// cleaned POIs through a local model, with deterministic fallbacks when
// generation fails.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/metrics"
	"github.com/triptide/collector/internal/poi"
	"github.com/triptide/collector/internal/rank"
)

// Generator produces a JSON enrichment document from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// EnrichmentCache stores generated enrichments by OSM identity so repeated
// runs do not regenerate content. A nil, nil Get is a cache miss.
type EnrichmentCache interface {
	Get(ctx context.Context, osmID string) (*poi.Enrichment, error)
	Set(ctx context.Context, osmID string, e poi.Enrichment) error
}

// Stats is the gold-stage run record.
type Stats struct {
	City        string    `json:"city"`
	Candidates  int       `json:"candidates"`
	Skipped     int       `json:"skipped"`
	Enriched    int       `json:"enriched"`
	Fallbacks   int       `json:"fallbacks"`
	FromCache   int       `json:"from_cache"`
	CompletedAt time.Time `json:"completed_at"`
}

// Enricher drives POI enrichment against the layer store. The cache is
// optional.
type Enricher struct {
	store layers.Store
	gen   Generator
	cache EnrichmentCache
	log   *slog.Logger
}

func NewEnricher(store layers.Store, gen Generator, cache EnrichmentCache, log *slog.Logger) *Enricher {
	return &Enricher{store: store, gen: gen, cache: cache, log: log}
}

type outcome int

const (
	outcomeGenerated outcome = iota
	outcomeCached
	outcomeFallback
)

// candidates merges cleaned and manual records, prioritizes them and drops
// everything already present in the gold layer. limit <= 0 means no limit.
func (e *Enricher) candidates(city string, limit int) ([]poi.POI, []poi.EnrichedPOI, int, error) {
	cleaned, err := e.store.ReadCleaned(city)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("reading cleaned records for %s: %w", city, err)
	}
	manual, err := e.store.ReadManual(city)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("reading manual records for %s: %w", city, err)
	}
	for i := range manual {
		manual[i].IsManual = true
	}

	existing, err := e.store.ReadEnriched(city)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("reading enriched records for %s: %w", city, err)
	}
	done := make(map[string]bool, len(existing))
	for _, r := range existing {
		done[r.OSMID] = true
	}

	ranked := rank.Prioritize(append(manual, cleaned...))

	var todo []poi.POI
	skipped := 0
	seen := make(map[string]bool, len(ranked))
	for _, p := range ranked {
		if seen[p.OSMID] {
			continue
		}
		seen[p.OSMID] = true
		if done[p.OSMID] {
			skipped++
			metrics.IncEnrichment(metrics.EnrichSkipped)
			continue
		}
		todo = append(todo, p)
	}
	if limit > 0 && len(todo) > limit {
		todo = todo[:limit]
	}
	return todo, existing, skipped, nil
}

// Run enriches sequentially, persisting the gold layer after every record so
// an interrupted run resumes where it stopped.
func (e *Enricher) Run(ctx context.Context, city string, limit int) (Stats, error) {
	todo, enriched, skipped, err := e.candidates(city, limit)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{City: city, Candidates: len(todo), Skipped: skipped}

	for _, p := range todo {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		result, how := e.enrichOne(ctx, p)
		e.tally(&stats, how)

		enriched = append(enriched, poi.EnrichedPOI{POI: p, Enrichment: result})
		if err := e.store.WriteEnriched(city, enriched); err != nil {
			return stats, fmt.Errorf("persisting enriched records for %s: %w", city, err)
		}
	}

	return e.finish(city, stats)
}

// RunParallel enriches with up to workers concurrent generations. Results
// land in an indexed slice and the gold layer is written once after all
// workers finish, trading crash resumability for throughput.
func (e *Enricher) RunParallel(ctx context.Context, city string, limit, workers int) (Stats, error) {
	if workers < 1 {
		workers = 1
	}
	todo, enriched, skipped, err := e.candidates(city, limit)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{City: city, Candidates: len(todo), Skipped: skipped}

	results := make([]poi.Enrichment, len(todo))
	outcomes := make([]outcome, len(todo))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], outcomes[i] = e.enrichOne(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i, p := range todo {
		e.tally(&stats, outcomes[i])
		enriched = append(enriched, poi.EnrichedPOI{POI: p, Enrichment: results[i]})
	}
	if len(todo) > 0 {
		if err := e.store.WriteEnriched(city, enriched); err != nil {
			return stats, fmt.Errorf("persisting enriched records for %s: %w", city, err)
		}
	}

	return e.finish(city, stats)
}

func (e *Enricher) finish(city string, stats Stats) (Stats, error) {
	stats.CompletedAt = time.Now().UTC()
	if err := e.store.WriteMeta(layers.StageGold, city, stats); err != nil {
		e.log.Warn("failed to write gold metadata", "city", city, "error", err)
	}
	e.log.Info("enrichment complete",
		"city", city,
		"candidates", stats.Candidates,
		"skipped", stats.Skipped,
		"enriched", stats.Enriched,
		"fallbacks", stats.Fallbacks,
		"from_cache", stats.FromCache,
	)
	return stats, nil
}

func (e *Enricher) tally(stats *Stats, how outcome) {
	switch how {
	case outcomeCached:
		stats.Enriched++
		stats.FromCache++
		metrics.IncEnrichment(metrics.EnrichCached)
	case outcomeFallback:
		stats.Enriched++
		stats.Fallbacks++
		metrics.IncEnrichment(metrics.EnrichFallback)
	default:
		stats.Enriched++
		metrics.IncEnrichment(metrics.EnrichGenerated)
	}
}

// enrichOne resolves a single record's enrichment: cache, then generation,
// then fallback. It never fails; generation problems degrade to the
// deterministic fallback.
func (e *Enricher) enrichOne(ctx context.Context, p poi.POI) (poi.Enrichment, outcome) {
	if e.cache != nil {
		if cached, err := e.cache.Get(ctx, p.OSMID); err != nil {
			e.log.Warn("enrichment cache read failed", "osm_id", p.OSMID, "error", err)
		} else if cached != nil {
			return *cached, outcomeCached
		}
	}

	raw, err := e.gen.Generate(ctx, buildPrompt(p))
	if err == nil {
		var enrichment poi.Enrichment
		enrichment, err = decodeEnrichment(raw)
		if err == nil {
			if e.cache != nil {
				if cerr := e.cache.Set(ctx, p.OSMID, enrichment); cerr != nil {
					e.log.Warn("enrichment cache write failed", "osm_id", p.OSMID, "error", cerr)
				}
			}
			return enrichment, outcomeGenerated
		}
	}

	e.log.Warn("generation failed, using fallback", "osm_id", p.OSMID, "name", p.Name, "error", err)
	return Fallback(p), outcomeFallback
}

// fallbackPriceLevels maps categories to a 0 (free) to 3 (expensive) price
// level used when generation is unavailable.
var fallbackPriceLevels = map[string]int{
	"museum":     1,
	"gallery":    1,
	"cafe":       1,
	"attraction": 2,
	"restaurant": 2,
	"bar":        2,
	"hotel":      3,
	"viewpoint":  0,
	"park":       0,
	"historic":   0,
	"monument":   0,
	"memorial":   0,
}

const fallbackDefaultPrice = 2

// Fallback builds a deterministic enrichment from the record alone.
func Fallback(p poi.POI) poi.Enrichment {
	price, ok := fallbackPriceLevels[p.Category]
	if !ok {
		price = fallbackDefaultPrice
	}
	city := strings.TrimSpace(p.Tag("addr:city"))
	in := "the area"
	if city != "" {
		in = city
	}
	return poi.Enrichment{
		Description: fmt.Sprintf("A wonderful %s in %s.", p.Category, in),
		DurationMin: 60,
		BestTime:    "Morning",
		Personas:    map[string]int{"Culture": 80, "Relax": 50},
		PriceLevel:  price,
		Fallback:    true,
	}
}

// enrichmentPayload mirrors the model's JSON with optional fields as
// pointers so a present zero (free entry) survives decoding.
type enrichmentPayload struct {
	Description    string         `json:"description"`
	DurationMin    *int           `json:"duration_min"`
	BestTime       string         `json:"best_time"`
	BestTimeReason string         `json:"best_time_reason"`
	Personas       map[string]int `json:"personas"`
	PriceLevel     *int           `json:"price_level"`
	Tips           []string       `json:"tips"`
	WhatToExpect   string         `json:"what_to_expect"`
	IsPopular      bool           `json:"is_popular"`
}

func decodeEnrichment(raw []byte) (poi.Enrichment, error) {
	var payload enrichmentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return poi.Enrichment{}, fmt.Errorf("parsing enrichment: %w", err)
	}
	if strings.TrimSpace(payload.Description) == "" {
		return poi.Enrichment{}, fmt.Errorf("enrichment has no description")
	}

	result := poi.Enrichment{
		Description:    strings.TrimSpace(payload.Description),
		DurationMin:    60,
		BestTime:       "Anytime",
		BestTimeReason: payload.BestTimeReason,
		Personas:       payload.Personas,
		PriceLevel:     fallbackDefaultPrice,
		Tips:           payload.Tips,
		WhatToExpect:   payload.WhatToExpect,
		IsPopular:      payload.IsPopular,
	}
	if payload.DurationMin != nil && *payload.DurationMin > 0 {
		result.DurationMin = *payload.DurationMin
	}
	if payload.BestTime != "" {
		result.BestTime = payload.BestTime
	}
	if payload.PriceLevel != nil && *payload.PriceLevel >= 0 && *payload.PriceLevel <= 3 {
		result.PriceLevel = *payload.PriceLevel
	}
	if result.Personas == nil {
		result.Personas = map[string]int{}
	}
	return result, nil
}

func buildPrompt(p poi.POI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a travel content writer. Describe the point of interest %q", p.Name)
	fmt.Fprintf(&b, " (category: %s).", p.Category)
	if city := p.Tag("addr:city"); city != "" {
		fmt.Fprintf(&b, " It is located in %s.", city)
	}
	if wiki := p.Tag("wikipedia"); wiki != "" {
		fmt.Fprintf(&b, " Wikipedia reference: %s.", wiki)
	}
	b.WriteString(` Respond with a single JSON object with these fields:
"description" (2-3 sentences), "duration_min" (typical visit minutes),
"best_time" (Morning/Afternoon/Evening/Anytime), "best_time_reason",
"personas" (object scoring Culture, Adventure, Relax, Family, Foodie 0-100),
"price_level" (0 free to 3 expensive), "tips" (array of short strings),
"what_to_expect" (1 sentence), "is_popular" (boolean).`)
	return b.String()
}
