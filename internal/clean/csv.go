package clean

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/triptide/collector/internal/geo"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/poi"
)

// Column aliases accepted in operator CSV uploads, checked in order.
var (
	csvNameColumns        = []string{"name", "title", "place_name"}
	csvLatColumns         = []string{"lat", "latitude", "y"}
	csvLonColumns         = []string{"lon", "lng", "longitude", "x"}
	csvCategoryColumns    = []string{"category", "type"}
	csvDescriptionColumns = []string{"description", "desc"}
)

// CSVStats summarizes one CSV import.
type CSVStats struct {
	City     string `json:"city"`
	Rows     int    `json:"rows"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// CSVStandardizer converts operator CSV uploads into manual silver records.
// Imported records are marked manual, so they are enriched first and always
// land in the essential tier.
type CSVStandardizer struct {
	store layers.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewCSVStandardizer(store layers.Store, log *slog.Logger) *CSVStandardizer {
	return &CSVStandardizer{store: store, log: log, now: time.Now}
}

// Run reads CSV rows and appends them to the city's manual records. A row
// without a usable name or coordinates is skipped and counted, not fatal;
// an upload with no valid rows at all is an error.
func (c *CSVStandardizer) Run(r io.Reader, city string) (CSVStats, error) {
	stats := CSVStats{City: city}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	existing, err := c.store.ReadManual(city)
	if err != nil {
		return stats, fmt.Errorf("reading manual records for %s: %w", city, err)
	}

	date := c.now().UTC().Format("20060102")
	seq := len(existing)
	var imported []poi.POI
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Rows++
			stats.Skipped++
			c.log.Warn("skipping malformed csv row", "city", city, "error", err)
			continue
		}
		stats.Rows++

		field := func(names []string) string {
			for _, n := range names {
				if i, ok := cols[n]; ok && i < len(row) {
					if v := strings.TrimSpace(row[i]); v != "" {
						return v
					}
				}
			}
			return ""
		}

		name := field(csvNameColumns)
		if name == "" {
			stats.Skipped++
			continue
		}
		lat, latErr := strconv.ParseFloat(field(csvLatColumns), 64)
		lon, lonErr := strconv.ParseFloat(field(csvLonColumns), 64)
		if latErr != nil || lonErr != nil || !geo.ValidCoordinates(lat, lon) {
			stats.Skipped++
			c.log.Warn("skipping csv row with bad coordinates", "city", city, "name", name)
			continue
		}

		category := strings.ToLower(field(csvCategoryColumns))
		if category == "" {
			category = "unknown"
		}
		tags := map[string]string{"source": "csv_upload"}
		if desc := field(csvDescriptionColumns); desc != "" {
			tags["description"] = desc
		}

		seq++
		imported = append(imported, poi.POI{
			OSMID:    fmt.Sprintf("csv/%s_%d", date, seq),
			Name:     name,
			Category: category,
			Lat:      lat,
			Lon:      lon,
			Tags:     tags,
			IsManual: true,
		})
	}

	if len(imported) == 0 {
		return stats, fmt.Errorf("no valid rows in csv upload for %s", city)
	}
	stats.Imported = len(imported)

	if err := c.store.WriteManual(city, append(existing, imported...)); err != nil {
		return stats, fmt.Errorf("persisting manual records for %s: %w", city, err)
	}

	c.log.Info("csv import complete",
		"city", city,
		"rows", stats.Rows,
		"imported", stats.Imported,
		"skipped", stats.Skipped,
	)
	return stats, nil
}
