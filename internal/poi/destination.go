package poi

import "github.com/triptide/collector/internal/geo"

// Destination is the city-level record, with a lifecycle independent from
// POIs: created or refreshed once per pipeline run per city.
type Destination struct {
	Slug        string             `json:"slug"`
	Name        string             `json:"name"`
	CountryCode string             `json:"country_code"`
	Center      geo.LatLng         `json:"coordinates"`
	Timezone    string             `json:"timezone"`
	Details     DestinationDetails `json:"details"`
}

// DestinationDetails is the generated narrative payload for a destination.
type DestinationDetails struct {
	Summary         string                  `json:"summary"`
	WhyGo           []string                `json:"why_go"`
	Tags            []string                `json:"tags,omitempty"`
	BestMonths      []int                   `json:"best_months,omitempty"`
	MonthlyInsights map[string]MonthInsight `json:"monthly_insights,omitempty"`
	PersonalityFit  map[string]float64      `json:"personality_fit,omitempty"`
	Budget          Budget                  `json:"budget"`
	Safety          Safety                  `json:"safety"`
	Connectivity    Connectivity            `json:"connectivity"`
	Fallback        bool                    `json:"fallback,omitempty"`
}

// MonthInsight describes climate and crowd expectations for one month,
// keyed "1".."12" in MonthlyInsights.
type MonthInsight struct {
	Verdict    string  `json:"verdict"`
	AvgTemp    float64 `json:"avg_temp"`
	CrowdLevel string  `json:"crowd_level"`
}

type Budget struct {
	Level     string         `json:"level"`
	DailyCost map[string]int `json:"daily_cost,omitempty"`
}

type Safety struct {
	Score float64 `json:"score"`
	Notes string  `json:"notes,omitempty"`
}

type Connectivity struct {
	WiFi   string `json:"wifi,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}
