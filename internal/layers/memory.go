package layers

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/triptide/collector/internal/overpass"
	"github.com/triptide/collector/internal/poi"
)

// MemStore is an in-memory Store used in tests and dry runs.
type MemStore struct {
	mu sync.Mutex

	harvests     map[string][]string          // city -> harvest names, oldest first
	tiles        map[string]map[int][]byte    // city/harvest -> index -> raw
	cleaned      map[string][]poi.POI         // city -> silver records
	manual       map[string][]poi.POI         // city -> operator additions
	enriched     map[string][]poi.EnrichedPOI // city -> gold records
	destinations map[string]*poi.Destination
	meta         map[string]any // stage/city -> last metadata

	harvestSeq int

	// EnrichedWrites counts WriteEnriched calls, letting tests assert on
	// the incremental-persist contract.
	EnrichedWrites int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		harvests:     make(map[string][]string),
		tiles:        make(map[string]map[int][]byte),
		cleaned:      make(map[string][]poi.POI),
		manual:       make(map[string][]poi.POI),
		enriched:     make(map[string][]poi.EnrichedPOI),
		destinations: make(map[string]*poi.Destination),
		meta:         make(map[string]any),
	}
}

func harvestKey(city, harvest string) string { return city + "/" + harvest }

func (s *MemStore) LatestHarvest(city string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := s.harvests[city]
	if len(hs) == 0 {
		return "", nil
	}
	return hs[len(hs)-1], nil
}

func (s *MemStore) CreateHarvest(city string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.harvestSeq++
	name := fmt.Sprintf("harvest_%d", s.harvestSeq)
	s.harvests[city] = append(s.harvests[city], name)
	s.tiles[harvestKey(city, name)] = make(map[int][]byte)
	return name, nil
}

func (s *MemStore) HasTile(city, harvest string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tiles[harvestKey(city, harvest)][index]
	return ok
}

func (s *MemStore) WriteTile(city, harvest string, index int, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := harvestKey(city, harvest)
	if s.tiles[key] == nil {
		s.tiles[key] = make(map[int][]byte)
	}
	s.tiles[key][index] = raw
	return nil
}

func (s *MemStore) ReadHarvestElements(city, harvest string) ([]overpass.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tiles, ok := s.tiles[harvestKey(city, harvest)]
	if !ok {
		return nil, fmt.Errorf("no harvest %s for %s", harvest, city)
	}
	var elements []overpass.Element
	for _, raw := range tiles {
		var tile overpass.TileResponse
		if err := json.Unmarshal(raw, &tile); err != nil {
			continue
		}
		elements = append(elements, tile.Elements...)
	}
	return elements, nil
}

func (s *MemStore) WriteCleaned(city string, records []poi.POI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned[city] = append([]poi.POI(nil), records...)
	return nil
}

func (s *MemStore) ReadCleaned(city string) ([]poi.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.cleaned[city]
	if !ok {
		return nil, fmt.Errorf("no cleaned data for %s", city)
	}
	return append([]poi.POI(nil), records...), nil
}

func (s *MemStore) WriteManual(city string, records []poi.POI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual[city] = append([]poi.POI(nil), records...)
	return nil
}

func (s *MemStore) ReadManual(city string) ([]poi.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]poi.POI(nil), s.manual[city]...), nil
}

func (s *MemStore) ReadEnriched(city string) ([]poi.EnrichedPOI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]poi.EnrichedPOI(nil), s.enriched[city]...), nil
}

func (s *MemStore) WriteEnriched(city string, records []poi.EnrichedPOI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enriched[city] = append([]poi.EnrichedPOI(nil), records...)
	s.EnrichedWrites++
	return nil
}

func (s *MemStore) ReadDestination(city string) (*poi.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destinations[city], nil
}

func (s *MemStore) WriteDestination(city string, dest *poi.Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations[city] = dest
	return nil
}

func (s *MemStore) WriteMeta(stage, city string, meta any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[stage+"/"+city] = meta
	return nil
}

// Meta returns the last metadata written for a stage/city (test helper).
func (s *MemStore) Meta(stage, city string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[stage+"/"+city]
}

func (s *MemStore) Counts() (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts Counts
	for _, tiles := range s.tiles {
		counts.Bronze += len(tiles)
	}
	for _, records := range s.cleaned {
		counts.Silver += len(records)
	}
	for _, records := range s.enriched {
		counts.Gold += len(records)
	}
	counts.Gold += len(s.destinations)
	return counts, nil
}

var _ Store = (*MemStore)(nil)
var _ Store = (*FileStore)(nil)
