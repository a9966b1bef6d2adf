package poi

import (
	"fmt"
	"strings"

	"github.com/triptide/collector/internal/geo"
)

// Tier buckets records by priority score and drives enrichment order/quota.
type Tier string

const (
	TierEssential   Tier = "essential"
	TierImportant   Tier = "important"
	TierRecommended Tier = "recommended"
	TierOptional    Tier = "optional"
	TierLowPriority Tier = "low_priority"
)

// POI is a cleaned point of interest (silver layer record). The OSMID
// ("<type>/<id>" for harvested records) is the deduplication identity.
type POI struct {
	OSMID        string            `json:"osm_id"`
	Name         string            `json:"name"`
	OriginalName string            `json:"original_name,omitempty"`
	Category     string            `json:"category"`
	Lat          float64           `json:"lat"`
	Lon          float64           `json:"lon"`
	Tags         map[string]string `json:"tags,omitempty"`
	IsManual     bool              `json:"is_manual,omitempty"`

	PriorityScore      int  `json:"priority_score"`
	PriorityTier       Tier `json:"priority_tier,omitempty"`
	EnrichmentPriority int  `json:"enrichment_priority,omitempty"`
}

// New constructs a POI, rejecting records that could never survive cleaning:
// empty identity or name, or coordinates outside the valid domain.
func New(osmID, name, category string, lat, lon float64, tags map[string]string) (POI, error) {
	if osmID == "" {
		return POI{}, fmt.Errorf("poi: empty identity")
	}
	if strings.TrimSpace(name) == "" {
		return POI{}, fmt.Errorf("poi %s: empty name", osmID)
	}
	if !geo.ValidCoordinates(lat, lon) {
		return POI{}, fmt.Errorf("poi %s: invalid coordinates (%g, %g)", osmID, lat, lon)
	}
	if category == "" {
		category = "unknown"
	}
	return POI{
		OSMID:    osmID,
		Name:     strings.TrimSpace(name),
		Category: category,
		Lat:      lat,
		Lon:      lon,
		Tags:     tags,
	}, nil
}

// Tag returns the first non-empty value among the given tag keys.
func (p POI) Tag(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p.Tags[k]); v != "" {
			return v
		}
	}
	return ""
}

// Enrichment is the generated payload attached to a POI in the gold layer.
type Enrichment struct {
	Description    string         `json:"description"`
	DurationMin    int            `json:"duration_min"`
	BestTime       string         `json:"best_time"`
	BestTimeReason string         `json:"best_time_reason,omitempty"`
	Personas       map[string]int `json:"personas"`
	PriceLevel     int            `json:"price_level"`
	Tips           []string       `json:"tips,omitempty"`
	WhatToExpect   string         `json:"what_to_expect,omitempty"`
	IsPopular      bool           `json:"is_popular"`
	Fallback       bool           `json:"fallback,omitempty"`
}

// EnrichedPOI is a gold layer record: a cleaned POI plus its enrichment.
type EnrichedPOI struct {
	POI
	Enrichment Enrichment `json:"enrichment"`
}
