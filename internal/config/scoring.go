package config

// ScoringWeights are the coefficients of the multi-factor keyword score.
type ScoringWeights struct {
	Volume      float64 `yaml:"volume"`
	Intent      float64 `yaml:"intent"`
	LongTail    float64 `yaml:"long_tail"`
	Competition float64 `yaml:"competition"`
	SERP        float64 `yaml:"serp"`
	Source      float64 `yaml:"source"`
}

// DefaultScoringWeights returns the documented defaults:
// (w_v, w_i, w_l, w_c, w_s, w_p) = (0.35, 0.25, 0.15, 0.15, 0.10, 0.10).
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Volume:      0.35,
		Intent:      0.25,
		LongTail:    0.15,
		Competition: 0.15,
		SERP:        0.10,
		Source:      0.10,
	}
}

// IntentDictionary is one ranked tier of intent-indicating phrases; the
// scoring engine assigns the multiplier of the longest-matching tier.
type IntentDictionary struct {
	Multiplier float64  `yaml:"multiplier"`
	Phrases    []string `yaml:"phrases"`
}

// DefaultIntentDictionaries returns the four ranked tiers producing
// multipliers {2.3, 2.0, 1.5, 1.0}. Entries are
// illustrative seeds for a browser-extension product portfolio; product
// configs may supply their own via overrides.
func DefaultIntentDictionaries() []IntentDictionary {
	return []IntentDictionary{
		{Multiplier: 2.3, Phrases: []string{"chrome extension", "browser extension", "add to chrome"}},
		{Multiplier: 2.0, Phrases: []string{"download", "free tool", "online tool", "converter"}},
		{Multiplier: 1.5, Phrases: []string{"how to", "best", "vs"}},
		{Multiplier: 1.0, Phrases: []string{}},
	}
}

// SERPFeatureWeights are the diminishing-returns weights applied when a
// SERP result blocks organic clickthrough.
type SERPFeatureWeights map[string]float64

// DefaultSERPFeatureWeights returns the documented default weights.
func DefaultSERPFeatureWeights() SERPFeatureWeights {
	return SERPFeatureWeights{
		"ai_overview":       0.4,
		"featured_snippet":  0.3,
		"local_pack":        0.3,
		"shopping_results":  0.25,
		"people_also_ask":   0.2,
		"video_results":     0.2,
		"knowledge_panel":   0.15,
	}
}

// SourcePenalties are the scoring engine's per-source penalty `p`, with
// ESTIMATED carrying the highest penalty.
type SourcePenalties map[string]float64

// DefaultSourcePenalties returns the default penalty schedule.
func DefaultSourcePenalties() SourcePenalties {
	return SourcePenalties{
		"KWP":       0.0,
		"GSC":       0.02,
		"ESTIMATED": 0.08,
	}
}
