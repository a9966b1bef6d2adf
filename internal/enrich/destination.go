package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/triptide/collector/internal/config"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/poi"
)

// DestinationEnricher generates the city-level destination record for the
// gold layer.
type DestinationEnricher struct {
	store layers.Store
	gen   Generator
	log   *slog.Logger
}

func NewDestinationEnricher(store layers.Store, gen Generator, log *slog.Logger) *DestinationEnricher {
	return &DestinationEnricher{store: store, gen: gen, log: log}
}

// Run builds and persists the destination record for the city. An existing
// record generated without fallback is kept as is.
func (d *DestinationEnricher) Run(ctx context.Context, city config.City) (*poi.Destination, error) {
	key := city.Key()

	existing, err := d.store.ReadDestination(key)
	if err != nil {
		return nil, fmt.Errorf("reading destination for %s: %w", key, err)
	}
	if existing != nil && !existing.Details.Fallback {
		d.log.Info("destination record up to date", "city", key)
		return existing, nil
	}

	dest := &poi.Destination{
		Slug:        key,
		Name:        city.Name,
		CountryCode: city.CountryCode,
		Center:      city.BBox.Center(),
		Timezone:    city.Timezone,
	}

	details, err := d.generate(ctx, city)
	if err != nil {
		d.log.Warn("destination generation failed, using fallback", "city", key, "error", err)
		details = fallbackDetails(city)
	}
	dest.Details = details

	if err := d.store.WriteDestination(key, dest); err != nil {
		return nil, fmt.Errorf("persisting destination for %s: %w", key, err)
	}
	return dest, nil
}

func (d *DestinationEnricher) generate(ctx context.Context, city config.City) (poi.DestinationDetails, error) {
	raw, err := d.gen.Generate(ctx, destinationPrompt(city))
	if err != nil {
		return poi.DestinationDetails{}, err
	}
	var details poi.DestinationDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return poi.DestinationDetails{}, fmt.Errorf("parsing destination details: %w", err)
	}
	if strings.TrimSpace(details.Summary) == "" {
		return poi.DestinationDetails{}, fmt.Errorf("destination details have no summary")
	}
	return details, nil
}

func fallbackDetails(city config.City) poi.DestinationDetails {
	return poi.DestinationDetails{
		Summary:  fmt.Sprintf("%s is a destination in %s worth exploring.", city.Name, city.Country),
		WhyGo:    []string{"Local culture", "Food", "History"},
		Tags:     []string{"city"},
		Fallback: true,
	}
}

func destinationPrompt(city config.City) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a travel content writer. Write a destination guide for %s, %s.", city.Name, city.Country)
	b.WriteString(` Respond with a single JSON object with these fields:
"summary" (3-4 sentences), "why_go" (array of short reasons),
"tags" (array of theme tags), "best_months" (array of month numbers 1-12),
"monthly_insights" (object keyed "1".."12", each {"verdict","avg_temp","crowd_level"}),
"personality_fit" (object scoring Culture, Adventure, Relax, Family, Foodie 0-100),
"budget" ({"level","daily_cost" object of USD amounts}),
"safety" ({"score" 0-10,"notes"}), "connectivity" ({"wifi","mobile"}).`)
	return b.String()
}
