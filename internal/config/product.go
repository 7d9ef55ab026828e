// Package config loads and validates the product configuration, scoring
// weights, SERP feature weights, guardrail constraints, and approval
// policy documents described in. Unknown YAML fields are
// rejected at load time per Design Notes ("dynamically shaped
// configuration objects... become explicit configuration structures
// with enumerated fields; unknown options are rejected at load time").
package config

// TargetPage is a destination URL and its marketing purpose, part of the
// product configuration used by the clustering engine's landing-page
// assignment (C5).
type TargetPage struct {
	URL     string `yaml:"url" validate:"required"`
	Purpose string `yaml:"purpose" validate:"required"`
	UseCase string `yaml:"use_case,omitempty"`
}

// ProductConfig is the structured product document: seed queries, target
// pages, value propositions, pre-seeded negatives, brand strings, and the
// minimum cluster size.
type ProductConfig struct {
	Name             string       `yaml:"name" validate:"required"`
	Markets          []string     `yaml:"markets" validate:"required"`
	SeedQueries      []string     `yaml:"seed_queries"`
	TargetPages      []TargetPage `yaml:"target_pages"`
	ValueProps       []string     `yaml:"value_propositions,omitempty"`
	SeedNegatives    []string     `yaml:"seed_negatives,omitempty"`
	BrandStrings     []string     `yaml:"brand_strings,omitempty"`
	RequiredAnchor   string       `yaml:"required_anchor,omitempty"` // pinned first headline for RSAs
	MinClusterSize   int          `yaml:"min_cluster_size,omitempty"`
}

// Validate checks required fields and rejects structurally invalid
// configuration before it reaches the pipeline.
func (p *ProductConfig) Validate() error {
	if p.Name == "" {
		return fieldError("name", "required")
	}
	if len(p.Markets) == 0 {
		return fieldError("markets", "at least one market is required")
	}
	for i, tp := range p.TargetPages {
		if tp.URL == "" {
			return fieldErrorf("target_pages[%d].url", "required", i)
		}
		if tp.Purpose == "" {
			return fieldErrorf("target_pages[%d].purpose", "required", i)
		}
	}
	if p.MinClusterSize < 0 {
		return fieldError("min_cluster_size", "must be non-negative")
	}
	return nil
}
