package model

// Cluster groups keywords under a single use-case and, optionally, a
// landing page. Invariant: every keyword belongs to exactly one cluster;
// ordering is stable across runs with identical inputs (C5).
type Cluster struct {
	Name            string          `json:"name"`
	UseCase         string          `json:"use_case"`
	PrimaryKeywords []KeywordRecord `json:"primary_keywords"` // ordered by score desc
	Keywords        []KeywordRecord `json:"keywords"`
	TotalVolume     int64           `json:"total_volume"`
	LandingPage     string          `json:"landing_page,omitempty"`
}

// PlanSummary is the top-level artifact produced by a single orchestrator
// run (C6).
type PlanSummary struct {
	Product           string         `json:"product"`
	Date              string         `json:"date"` // YYYY-MM-DD
	Markets           []string       `json:"markets"`
	TotalKeywords     int            `json:"total_keywords"`
	TotalAdGroups     int            `json:"total_ad_groups"`
	SERPCallsUsed     int            `json:"serp_calls_used"`
	CacheHitRate      float64        `json:"cache_hit_rate"`
	DataSourceCounts  map[string]int `json:"data_source_counts"`
	TopOpportunities  []KeywordRecord `json:"top_opportunities"` // max 10
	GenerationTimeMS  int64          `json:"generation_time_ms"`
	Warnings          []string       `json:"warnings"`
}
