// Package rank scores cleaned POIs so the most tourism-relevant records are
// enriched first.
package rank

import (
	"sort"
	"strings"

	"github.com/triptide/collector/internal/poi"
)

// CategoryWeights is the base score per category. Unlisted categories get
// DefaultCategoryWeight.
var CategoryWeights = map[string]int{
	"museum":     40,
	"historic":   38,
	"castle":     38,
	"viewpoint":  35,
	"attraction": 35,
	"gallery":    35,
	"temple":     33,
	"park":       30,
	"zoo":        30,
	"aquarium":   30,
	"market":     28,
	"theme_park": 28,
	"monument":   25,
	"beach":      25,
	"hotel":      15,
	"restaurant": 10,
	"cafe":       8,
	"shop":       5,
	"service":    3,
}

const DefaultCategoryWeight = 5

// keywordBonuses is checked against the lowercased name, original name and
// tags; only the single highest matching bonus applies.
var keywordBonuses = []struct {
	keyword string
	bonus   int
}{
	{"unesco", 20},
	{"world heritage", 20},
	{"national", 15},
	{"state", 15},
	{"palace", 12},
	{"famous", 10},
	{"popular", 10},
	{"tower", 10},
	{"cathedral", 10},
	{"mosque", 10},
	{"synagogue", 10},
	{"old", 8},
	{"ancient", 8},
	{"historic", 8},
	{"church", 8},
	{"museum", 5},
	{"gallery", 5},
}

// metadataBonusTags each add 5 points when present on the record.
var metadataBonusTags = [][]string{
	{"wikipedia", "wikidata"},
	{"website"},
	{"opening_hours"},
	{"phone"},
}

const (
	metadataBonus = 5
	maxScore      = 100
	manualScore   = 100
)

// Score computes the record's priority score, capped at 100.
func Score(p poi.POI) int {
	weight, ok := CategoryWeights[p.Category]
	if !ok {
		weight = DefaultCategoryWeight
	}
	score := weight

	for _, keys := range metadataBonusTags {
		if p.Tag(keys...) != "" {
			score += metadataBonus
		}
	}

	text := keywordSearchText(p)
	best := 0
	for _, kb := range keywordBonuses {
		if kb.bonus > best && strings.Contains(text, kb.keyword) {
			best = kb.bonus
		}
	}
	score += best

	if score > maxScore {
		score = maxScore
	}
	return score
}

// keywordSearchText builds the lowercased haystack for keyword bonuses:
// the display name, the original name and every tag key and value, so a
// signal like heritage:operator=unesco counts even when the name is plain.
func keywordSearchText(p poi.POI) string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.OriginalName != "" {
		b.WriteByte(' ')
		b.WriteString(p.OriginalName)
	}
	for k, v := range p.Tags {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(v)
	}
	return strings.ToLower(b.String())
}

// TierFor maps a score to its priority tier.
func TierFor(score int) poi.Tier {
	switch {
	case score >= 80:
		return poi.TierEssential
	case score >= 60:
		return poi.TierImportant
	case score >= 40:
		return poi.TierRecommended
	case score >= 20:
		return poi.TierOptional
	default:
		return poi.TierLowPriority
	}
}

// EnrichmentPriorityFor maps a tier to its 1 (first) to 5 (last) enrichment
// order.
func EnrichmentPriorityFor(tier poi.Tier) int {
	switch tier {
	case poi.TierEssential:
		return 1
	case poi.TierImportant:
		return 2
	case poi.TierRecommended:
		return 3
	case poi.TierOptional:
		return 4
	default:
		return 5
	}
}

// Prioritize scores every record and returns them highest-score first.
// Manual records always score 100. The sort is stable so records with equal
// scores keep their input order.
func Prioritize(records []poi.POI) []poi.POI {
	out := make([]poi.POI, len(records))
	copy(out, records)

	for i := range out {
		if out[i].IsManual {
			out[i].PriorityScore = manualScore
		} else {
			out[i].PriorityScore = Score(out[i])
		}
		out[i].PriorityTier = TierFor(out[i].PriorityScore)
		out[i].EnrichmentPriority = EnrichmentPriorityFor(out[i].PriorityTier)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityScore > out[j].PriorityScore
	})
	return out
}
