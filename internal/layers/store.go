// Package layers abstracts the staged storage the pipeline moves data
// through: bronze (raw tile responses), silver (cleaned POIs) and gold
// (enriched POIs plus destination details). The same pipeline logic runs
// against the file-backed store in production and the in-memory store in
// tests.
package layers

import (
	"time"

	"github.com/triptide/collector/internal/geo"
	"github.com/triptide/collector/internal/overpass"
	"github.com/triptide/collector/internal/poi"
)

const (
	StageBronze = "bronze"
	StageSilver = "silver"
	StageGold   = "gold"
)

// Store is the layer storage contract. City arguments are normalized city
// keys (see config.CityKey).
type Store interface {
	// Bronze. A harvest is a named batch of tile files; tiles already
	// present are how the fetcher resumes an interrupted run.
	LatestHarvest(city string) (string, error)
	CreateHarvest(city string) (string, error)
	HasTile(city, harvest string, index int) bool
	WriteTile(city, harvest string, index int, raw []byte) error
	ReadHarvestElements(city, harvest string) ([]overpass.Element, error)

	// Silver. Cleaned records are replaced wholesale each run; manual
	// records are operator-supplied additions that bypass harvesting.
	WriteCleaned(city string, records []poi.POI) error
	ReadCleaned(city string) ([]poi.POI, error)
	ReadManual(city string) ([]poi.POI, error)
	WriteManual(city string, records []poi.POI) error

	// Gold. Enriched records are additive across runs; the destination
	// record is replaced once per run.
	ReadEnriched(city string) ([]poi.EnrichedPOI, error)
	WriteEnriched(city string, records []poi.EnrichedPOI) error
	ReadDestination(city string) (*poi.Destination, error)
	WriteDestination(city string, dest *poi.Destination) error

	// Run metadata, one document per stage per city.
	WriteMeta(stage, city string, meta any) error

	// Counts reports per-layer file/record counts for the status surface.
	Counts() (Counts, error)
}

// Counts summarizes how much data each layer holds.
type Counts struct {
	Bronze int `json:"bronze"`
	Silver int `json:"silver"`
	Gold   int `json:"gold"`
}

// HarvestMeta is the bronze-stage run record.
type HarvestMeta struct {
	City          string          `json:"city"`
	Harvest       string          `json:"harvest"`
	BBox          geo.BoundingBox `json:"bbox"`
	Tiles         int             `json:"tiles"`
	Fetched       int             `json:"fetched"`
	Skipped       int             `json:"skipped"`
	Failed        int             `json:"failed"`
	TotalElements int             `json:"total_elements"`
	CompletedAt   time.Time       `json:"completed_at"`
}
