package layers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/triptide/collector/internal/overpass"
	"github.com/triptide/collector/internal/poi"
)

// FileStore keeps each layer under <base>/<stage>/<city>. Tile files live in
// a per-harvest subdirectory of bronze; silver and gold hold one JSON array
// file per record kind plus a sibling metadata document.
type FileStore struct {
	base string
}

// NewFileStore creates the layer directory tree under base.
func NewFileStore(base string) (*FileStore, error) {
	for _, stage := range []string{StageBronze, StageSilver, StageGold} {
		if err := os.MkdirAll(filepath.Join(base, stage), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s layer dir: %w", stage, err)
		}
	}
	return &FileStore{base: base}, nil
}

func (s *FileStore) cityDir(stage, city string) string {
	return filepath.Join(s.base, stage, city)
}

// LatestHarvest returns the newest harvest directory name for the city, or
// "" when the city has never been harvested.
func (s *FileStore) LatestHarvest(city string) (string, error) {
	entries, err := os.ReadDir(s.cityDir(StageBronze, city))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("listing harvests for %s: %w", city, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}

// CreateHarvest creates a fresh timestamped harvest directory.
func (s *FileStore) CreateHarvest(city string) (string, error) {
	name := time.Now().UTC().Format("20060102_150405")
	dir := filepath.Join(s.cityDir(StageBronze, city), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating harvest dir for %s: %w", city, err)
	}
	return name, nil
}

func (s *FileStore) tilePath(city, harvest string, index int) string {
	return filepath.Join(s.cityDir(StageBronze, city), harvest, fmt.Sprintf("tile_%d.json", index))
}

// HasTile reports whether the tile file already exists (resumability check).
func (s *FileStore) HasTile(city, harvest string, index int) bool {
	_, err := os.Stat(s.tilePath(city, harvest, index))
	return err == nil
}

// WriteTile persists one raw tile response.
func (s *FileStore) WriteTile(city, harvest string, index int, raw []byte) error {
	path := s.tilePath(city, harvest, index)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating harvest dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing tile %d for %s: %w", index, city, err)
	}
	return nil
}

// ReadHarvestElements flattens every tile file of the harvest into a single
// element list. Tiles that fail to parse are skipped rather than aborting
// the whole harvest read.
func (s *FileStore) ReadHarvestElements(city, harvest string) ([]overpass.Element, error) {
	dir := filepath.Join(s.cityDir(StageBronze, city), harvest)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading harvest %s for %s: %w", harvest, city, err)
	}

	var elements []overpass.Element
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "tile_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		var tile overpass.TileResponse
		if err := json.Unmarshal(data, &tile); err != nil {
			continue
		}
		elements = append(elements, tile.Elements...)
	}
	return elements, nil
}

func (s *FileStore) writeJSON(stage, city, name string, v any) error {
	dir := s.cityDir(stage, city)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s dir for %s: %w", stage, city, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s/%s/%s: %w", stage, city, name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s/%s/%s: %w", stage, city, name, err)
	}
	return nil
}

func (s *FileStore) readJSON(stage, city, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.cityDir(stage, city), name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s/%s/%s: %w", stage, city, name, err)
	}
	return nil
}

// WriteCleaned replaces the silver layer for the city.
func (s *FileStore) WriteCleaned(city string, records []poi.POI) error {
	return s.writeJSON(StageSilver, city, "pois.json", records)
}

// ReadCleaned loads the silver layer. A missing file is an error: cleaning
// must run before enrichment.
func (s *FileStore) ReadCleaned(city string) ([]poi.POI, error) {
	var records []poi.POI
	if err := s.readJSON(StageSilver, city, "pois.json", &records); err != nil {
		return nil, fmt.Errorf("no cleaned data for %s: %w", city, err)
	}
	return records, nil
}

// ReadManual loads operator-supplied additions. Absence is normal.
func (s *FileStore) ReadManual(city string) ([]poi.POI, error) {
	var records []poi.POI
	err := s.readJSON(StageSilver, city, "manual_pois.json", &records)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manual records for %s: %w", city, err)
	}
	return records, nil
}

// WriteManual replaces the operator-supplied additions for the city.
func (s *FileStore) WriteManual(city string, records []poi.POI) error {
	return s.writeJSON(StageSilver, city, "manual_pois.json", records)
}

// ReadEnriched loads the gold layer; absence means nothing enriched yet.
func (s *FileStore) ReadEnriched(city string) ([]poi.EnrichedPOI, error) {
	var records []poi.EnrichedPOI
	err := s.readJSON(StageGold, city, "pois.json", &records)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading enriched records for %s: %w", city, err)
	}
	return records, nil
}

// WriteEnriched rewrites the gold layer wholesale. Called after every
// enrichment so an interrupted run loses at most the in-flight record.
func (s *FileStore) WriteEnriched(city string, records []poi.EnrichedPOI) error {
	return s.writeJSON(StageGold, city, "pois.json", records)
}

// ReadDestination loads the destination record; nil, nil when absent.
func (s *FileStore) ReadDestination(city string) (*poi.Destination, error) {
	var dest poi.Destination
	err := s.readJSON(StageGold, city, "destination_details.json", &dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading destination for %s: %w", city, err)
	}
	return &dest, nil
}

// WriteDestination replaces the destination record.
func (s *FileStore) WriteDestination(city string, dest *poi.Destination) error {
	return s.writeJSON(StageGold, city, "destination_details.json", dest)
}

// WriteMeta writes the per-stage run metadata document.
func (s *FileStore) WriteMeta(stage, city string, meta any) error {
	return s.writeJSON(stage, city, "metadata.json", meta)
}

// Counts walks each layer and counts regular files.
func (s *FileStore) Counts() (Counts, error) {
	var counts Counts
	for stage, dst := range map[string]*int{
		StageBronze: &counts.Bronze,
		StageSilver: &counts.Silver,
		StageGold:   &counts.Gold,
	} {
		n := 0
		err := filepath.WalkDir(filepath.Join(s.base, stage), func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				n++
			}
			return nil
		})
		if err != nil {
			return Counts{}, fmt.Errorf("counting %s layer: %w", stage, err)
		}
		*dst = n
	}
	return counts, nil
}
