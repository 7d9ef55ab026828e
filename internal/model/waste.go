package model

// SearchTermRow is one row of a search-term performance report.
type SearchTermRow struct {
	Term        string  `json:"term"`
	AdGroup     string  `json:"ad_group"`
	Campaign    string  `json:"campaign"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Cost        float64 `json:"cost"`
	Conversions int64   `json:"conversions"`
}

// CTR returns clicks/impressions, or 0 when impressions is 0.
func (r SearchTermRow) CTR() float64 {
	if r.Impressions == 0 {
		return 0
	}
	return float64(r.Clicks) / float64(r.Impressions)
}

// WasteCategory classifies why a search term is considered wasted spend.
type WasteCategory string

const (
	HighCostNoConvert WasteCategory = "HighCostNoConvert"
	LowCtrHighImpr     WasteCategory = "LowCtrHighImpr"
	PoorQuality        WasteCategory = "PoorQuality"
)

// NegativeLevel is the scope at which a negative keyword is applied.
type NegativeLevel string

const (
	LevelCampaign NegativeLevel = "campaign"
	LevelAdGroup  NegativeLevel = "ad_group"
)

// NegativeRecommendation is a single suggested negative keyword.
type NegativeRecommendation struct {
	Term             string        `json:"term"`
	MatchType        MatchType     `json:"match_type"`
	Level            NegativeLevel `json:"level"`
	Campaign         string        `json:"campaign,omitempty"`
	AdGroup          string        `json:"ad_group,omitempty"`
	EstimatedSavings float64       `json:"estimated_savings"`
	Confidence       float64       `json:"confidence"`
	Reason           string        `json:"reason"`
}

// WasteReport is the output of the search-term waste analyzer (C11).
type WasteReport struct {
	HighCostNoConvert []SearchTermRow          `json:"high_cost_no_convert"`
	LowCtrHighImpr    []SearchTermRow          `json:"low_ctr_high_impr"`
	PoorQuality       []SearchTermRow          `json:"poor_quality"`
	Negatives         []NegativeRecommendation `json:"negatives"`
	TotalWastedCost   float64                   `json:"total_wasted_cost"`
}
