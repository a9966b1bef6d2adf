package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/triptide/collector/internal/geo"
)

// City is one configured harvest target.
type City struct {
	Name        string          `yaml:"name"`
	Country     string          `yaml:"country"`
	CountryCode string          `yaml:"country_code"`
	Timezone    string          `yaml:"timezone"`
	BBox        geo.BoundingBox `yaml:"bbox"`
}

// Key returns the normalized key used to address this city's layer files.
func (c City) Key() string { return CityKey(c.Name) }

// CityKey normalizes a city name to its filesystem/database key.
func CityKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Config holds the full cities catalogue.
type Config struct {
	Cities map[string]City `yaml:"cities"`
}

// Load reads and validates the cities YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Cities) == 0 {
		return nil, fmt.Errorf("config %s: no cities defined", path)
	}

	// Re-key on the normalized city key so lookups work regardless of how
	// the YAML author spelled the map key.
	cities := make(map[string]City, len(cfg.Cities))
	for key, city := range cfg.Cities {
		if city.Name == "" {
			return nil, fmt.Errorf("config city %q: missing name", key)
		}
		if !city.BBox.Valid() {
			return nil, fmt.Errorf("config city %q: invalid bounding box", key)
		}
		if city.CountryCode == "" {
			city.CountryCode = "XX"
		}
		if city.Timezone == "" {
			city.Timezone = "UTC"
		}
		cities[CityKey(key)] = city
	}
	cfg.Cities = cities

	return &cfg, nil
}

// City looks up a city by name or key. The second return value is false when
// the city is not configured.
func (c *Config) City(name string) (City, bool) {
	city, ok := c.Cities[CityKey(name)]
	return city, ok
}
