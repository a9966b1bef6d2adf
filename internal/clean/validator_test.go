package clean_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptide/collector/internal/clean"
	"github.com/triptide/collector/internal/poi"
)

func validPOI(name string) poi.POI {
	return poi.POI{
		OSMID:    "node/1",
		Name:     name,
		Category: "museum",
		Lat:      41.7,
		Lon:      44.8,
	}
}

func TestValidate_Accepts(t *testing.T) {
	v := clean.NewValidator()
	for _, name := range []string{
		"Narikala Fortress",
		"St. George's Church",
		"Cafe del Mar (Old Town)",
		"Route 66 Diner",
	} {
		assert.Empty(t, v.Validate(validPOI(name)), "name %q", name)
	}
}

func TestValidate_Rejections(t *testing.T) {
	v := clean.NewValidator()
	cases := []struct {
		name   string
		p      poi.POI
		reason string
	}{
		{"empty name", validPOI(" "), "missing name"},
		{"too long", validPOI(strings.Repeat("a", 101)), "name too long"},
		{"numeric", validPOI("12345"), "suspicious name pattern"},
		{"placeholder", validPOI("Unknown Place"), "suspicious name pattern"},
		{"test data", validPOI("Test Restaurant"), "suspicious name pattern"},
		{"duplicate marker", validPOI("Blue Cafe (duplicate)"), "duplicate marker in name"},
		{"copy marker", validPOI("Blue Cafe (copy)"), "duplicate marker"},
		{"generic single word", validPOI("restaurant"), "generic single-word name"},
		{"non latin", validPOI("ნარიყალა"), "non-latin name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reasons := v.Validate(tc.p)
			require.NotEmpty(t, reasons)
			found := false
			for _, r := range reasons {
				if strings.Contains(r, tc.reason) {
					found = true
				}
			}
			assert.True(t, found, "expected reason %q in %v", tc.reason, reasons)
		})
	}
}

func TestValidate_DetectsScript(t *testing.T) {
	v := clean.NewValidator()

	reasons := v.Validate(validPOI("ნარიყალა"))
	require.NotEmpty(t, reasons)
	assert.Contains(t, strings.Join(reasons, "; "), "georgian")

	reasons = v.Validate(validPOI("Кремль"))
	assert.Contains(t, strings.Join(reasons, "; "), "cyrillic")
}

func TestValidate_BadCoordinates(t *testing.T) {
	v := clean.NewValidator()

	p := validPOI("Narikala Fortress")
	p.Lat, p.Lon = 0, 0
	assert.Contains(t, v.Validate(p), "invalid or missing coordinates")

	p = validPOI("Narikala Fortress")
	p.Lat = 95
	assert.Contains(t, v.Validate(p), "invalid or missing coordinates")
}

func TestValidate_CollectsEveryReason(t *testing.T) {
	v := clean.NewValidator()

	// A record can fail for multiple independent reasons; all of them must
	// be reported, not just the first.
	p := poi.POI{Name: "12345"}
	reasons := v.Validate(p)
	assert.GreaterOrEqual(t, len(reasons), 3, "coordinates, required fields and name pattern: %v", reasons)
}

func TestValidateBatch_TalliesReasons(t *testing.T) {
	v := clean.NewValidator()

	records := []poi.POI{
		validPOI("Narikala Fortress"),
		validPOI("Sulphur Baths"),
		validPOI("12345"),
		validPOI("Unnamed Road"),
		validPOI("Old Bridge (2)"),
	}

	valid, stats := v.ValidateBatch(records)
	assert.Len(t, valid, 2)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Valid)
	assert.Equal(t, 3, stats.Rejected)
	assert.Equal(t, 2, stats.RejectionReasons["suspicious name pattern"])
	assert.Equal(t, 1, stats.RejectionReasons["duplicate marker in name"])
}
