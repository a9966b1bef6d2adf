// Package clean implements the silver stage: it flattens a bronze harvest
// into categorized POI records, resolves names to Latin script, deduplicates
// and validates them.
package clean

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/metrics"
	"github.com/triptide/collector/internal/overpass"
	"github.com/triptide/collector/internal/poi"
)

// categoryFamilies is the tag precedence for categorization. The first
// family present on an element wins; historic collapses to a single
// category regardless of its value.
var categoryFamilies = []struct {
	key      string
	collapse string
}{
	{key: "tourism"},
	{key: "amenity"},
	{key: "historic", collapse: "historic"},
	{key: "natural"},
	{key: "leisure"},
}

const categoryUnknown = "unknown"

// Stats is the silver-stage run record.
type Stats struct {
	City        string           `json:"city"`
	RawElements int              `json:"raw_elements"`
	Named       int              `json:"named"`
	Deduped     int              `json:"deduped"`
	Validation  ValidationStats  `json:"validation"`
	Translation TranslationStats `json:"translation"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Standardizer turns the latest bronze harvest of a city into the silver
// layer.
type Standardizer struct {
	store      layers.Store
	validator  *Validator
	translator *Translator
	log        *slog.Logger
}

func NewStandardizer(store layers.Store, log *slog.Logger) *Standardizer {
	return &Standardizer{
		store:      store,
		validator:  NewValidator(),
		translator: NewTranslator(),
		log:        log,
	}
}

// Run cleans the latest harvest of the city and replaces its silver layer.
func (s *Standardizer) Run(city string) (Stats, error) {
	harvest, err := s.store.LatestHarvest(city)
	if err != nil {
		return Stats{}, fmt.Errorf("finding latest harvest for %s: %w", city, err)
	}
	if harvest == "" {
		return Stats{}, fmt.Errorf("no harvest found for %s, run the harvest stage first", city)
	}

	elements, err := s.store.ReadHarvestElements(city, harvest)
	if err != nil {
		return Stats{}, fmt.Errorf("reading harvest %s: %w", harvest, err)
	}

	stats := Stats{City: city, RawElements: len(elements)}

	candidates := s.flatten(elements, &stats)
	stats.Named = len(candidates)

	deduped := dedupe(candidates)
	stats.Deduped = len(candidates) - len(deduped)

	valid, vstats := s.validator.ValidateBatch(deduped)
	stats.Validation = vstats
	metrics.AddValidated(metrics.ResultOK, vstats.Valid)
	metrics.AddValidated(metrics.ResultError, vstats.Rejected)

	if err := s.store.WriteCleaned(city, valid); err != nil {
		return Stats{}, fmt.Errorf("writing cleaned records for %s: %w", city, err)
	}

	stats.CompletedAt = time.Now().UTC()
	if err := s.store.WriteMeta(layers.StageSilver, city, stats); err != nil {
		s.log.Warn("failed to write silver metadata", "city", city, "error", err)
	}

	s.log.Info("cleaning complete",
		"city", city,
		"raw", stats.RawElements,
		"valid", vstats.Valid,
		"rejected", vstats.Rejected,
		"transliterated", stats.Translation.Transliterated,
	)
	return stats, nil
}

// flatten converts raw elements into POI candidates: named, categorized and
// resolved to Latin script. Elements with no resolvable name are dropped
// here so the validator only sees records worth counting.
func (s *Standardizer) flatten(elements []overpass.Element, stats *Stats) []poi.POI {
	var out []poi.POI
	for _, el := range elements {
		name := strings.TrimSpace(el.Tags["name"])
		if name == "" {
			continue
		}
		stats.Translation.Total++

		latin, method := s.translator.Resolve(name, el.Tags)
		switch method {
		case MethodLatin:
			stats.Translation.AlreadyLatin++
		case MethodEnglishTag:
			stats.Translation.EnglishTag++
		case MethodTransliterated:
			stats.Translation.Transliterated++
		case MethodFailed:
			stats.Translation.Failed++
			continue
		}

		lat, lon, ok := el.Position()
		if !ok {
			continue
		}

		p := poi.POI{
			OSMID:    el.OSMID(),
			Name:     latin,
			Category: categorize(el.Tags),
			Lat:      lat,
			Lon:      lon,
			Tags:     el.Tags,
		}
		if method != MethodLatin {
			p.OriginalName = name
		}
		out = append(out, p)
	}
	return out
}

// categorize picks the element's category from the first matching tag
// family.
func categorize(tags map[string]string) string {
	for _, family := range categoryFamilies {
		value := tags[family.key]
		if value == "" {
			continue
		}
		if family.collapse != "" {
			return family.collapse
		}
		return value
	}
	return categoryUnknown
}

// dedupe keeps the first occurrence of each (lowercased name, category)
// pair; input order decides which duplicate survives.
func dedupe(records []poi.POI) []poi.POI {
	seen := make(map[string]bool, len(records))
	out := make([]poi.POI, 0, len(records))
	for _, p := range records {
		key := strings.ToLower(p.Name) + "|" + p.Category
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
