package clean

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/triptide/collector/internal/geo"
	"github.com/triptide/collector/internal/poi"
)

const (
	minNameLength = 2
	maxNameLength = 100
)

// latinNamePattern is the accepted character set for cleaned names: Latin
// letters, digits and common punctuation.
var latinNamePattern = regexp.MustCompile(`^[A-Za-z0-9\s\-'\.,&\(\)]+$`)

// suspiciousPatterns match placeholder or junk names that slip past the
// charset check.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+$`),        // pure numeric
	regexp.MustCompile(`^[A-Z\s]+$`),   // all-caps token, likely a code
	regexp.MustCompile(`(?i)test`),     // test data
	regexp.MustCompile(`(?i)unknown`),  // placeholder
	regexp.MustCompile(`(?i)unnamed`),  // unnamed feature
	regexp.MustCompile(`^[a-z]{1,2}$`), // single/double letter code
}

// duplicateMarkers flag names that carry an explicit duplicate annotation.
var duplicateMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(duplicate\)`),
	regexp.MustCompile(`(?i)\(copy\)`),
	regexp.MustCompile(`\(2\)`),
	regexp.MustCompile(`(?i)\(old\)`),
}

// nonLatinScripts detect which script a rejected name is written in; the
// result only feeds reporting.
var nonLatinScripts = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"georgian", regexp.MustCompile(`[\x{10A0}-\x{10FF}]`)},
	{"cyrillic", regexp.MustCompile(`[\x{0400}-\x{04FF}]`)},
	{"arabic", regexp.MustCompile(`[\x{0600}-\x{06FF}]`)},
	{"chinese", regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)},
	{"japanese", regexp.MustCompile(`[\x{3040}-\x{309F}\x{30A0}-\x{30FF}]`)},
	{"korean", regexp.MustCompile(`[\x{AC00}-\x{D7AF}]`)},
}

// genericSingleWords are names that, alone, identify nothing.
var genericSingleWords = map[string]bool{
	"restaurant": true, "cafe": true, "hotel": true, "museum": true,
	"park": true, "church": true, "cathedral": true, "mosque": true,
	"temple": true, "square": true, "street": true, "avenue": true,
	"market": true, "shop": true, "store": true, "center": true,
	"theatre": true, "cinema": true, "bar": true, "pub": true,
	"club": true, "gallery": true, "library": true, "station": true,
}

// ValidationStats aggregates pass/fail counts and the frequency of every
// rejection reason across a batch.
type ValidationStats struct {
	Total            int            `json:"total"`
	Valid            int            `json:"valid"`
	Rejected         int            `json:"rejected"`
	RejectionReasons map[string]int `json:"rejection_reasons,omitempty"`
}

// Validator rejects records whose name or shape would poison the silver
// layer.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate returns every rejection reason that applies to the record; an
// empty slice means the record is valid. Reasons are for reporting, not
// control flow.
func (v *Validator) Validate(p poi.POI) []string {
	var reasons []string

	name := strings.TrimSpace(p.Name)
	switch {
	case name == "":
		reasons = append(reasons, "missing name")
	case len(name) < minNameLength:
		reasons = append(reasons, fmt.Sprintf("name too short (%d chars)", len(name)))
	case len(name) > maxNameLength:
		reasons = append(reasons, fmt.Sprintf("name too long (%d chars)", len(name)))
	}

	if !geo.ValidCoordinates(p.Lat, p.Lon) {
		reasons = append(reasons, "invalid or missing coordinates")
	}

	if p.OSMID == "" || p.Category == "" {
		reasons = append(reasons, "missing required fields")
	}

	if name != "" {
		if !latinNamePattern.MatchString(name) {
			reasons = append(reasons, fmt.Sprintf("non-latin name (detected: %s)", detectScript(name)))
		}
		if isSuspicious(name) {
			reasons = append(reasons, "suspicious name pattern")
		}
		if hasDuplicateMarker(name) {
			reasons = append(reasons, "duplicate marker in name")
		}
		words := strings.Fields(strings.ToLower(name))
		if len(words) == 1 && genericSingleWords[words[0]] {
			reasons = append(reasons, "generic single-word name")
		}
	}

	return reasons
}

// ValidateBatch filters a batch, tallying every rejection reason per record.
func (v *Validator) ValidateBatch(records []poi.POI) ([]poi.POI, ValidationStats) {
	stats := ValidationStats{
		Total:            len(records),
		RejectionReasons: make(map[string]int),
	}

	valid := make([]poi.POI, 0, len(records))
	for _, p := range records {
		reasons := v.Validate(p)
		if len(reasons) == 0 {
			valid = append(valid, p)
			stats.Valid++
			continue
		}
		stats.Rejected++
		for _, r := range reasons {
			stats.RejectionReasons[r]++
		}
	}
	return valid, stats
}

func detectScript(name string) string {
	for _, s := range nonLatinScripts {
		if s.pattern.MatchString(name) {
			return s.name
		}
	}
	return "unknown"
}

func isSuspicious(name string) bool {
	for _, p := range suspiciousPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func hasDuplicateMarker(name string) bool {
	for _, p := range duplicateMarkers {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}
