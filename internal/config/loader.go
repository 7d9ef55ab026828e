package config

import (
	"bytes"
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the umbrella configuration object returned by Load, bundling
// the product document with every override section (scoring weights,
// intent dictionaries, SERP feature weights, guardrails, approval policy).
type Config struct {
	Product           ProductConfig
	ScoringWeights     ScoringWeights
	IntentDictionaries []IntentDictionary
	SERPFeatureWeights SERPFeatureWeights
	SourcePenalties    SourcePenalties
	Guardrails         GuardrailConfig
	ApprovalPolicy     ApprovalPolicy
}

// overridesYAML mirrors the optional override documents a caller may
// supply alongside the product config: scoring weights, intent
// dictionaries, SERP feature weights, guardrail constraints, and
// approval policy. Every field is optional; applyOverrides
// keeps the built-in defaults for anything absent, merging via mergo.
type overridesYAML struct {
	ScoringWeights     *ScoringWeights     `yaml:"scoring_weights,omitempty"`
	IntentDictionaries []IntentDictionary  `yaml:"intent_dictionaries,omitempty"`
	SERPFeatureWeights SERPFeatureWeights  `yaml:"serp_feature_weights,omitempty"`
	SourcePenalties    SourcePenalties     `yaml:"source_penalties,omitempty"`
	Guardrails         *GuardrailConfig    `yaml:"guardrails,omitempty"`
	ApprovalPolicy     *ApprovalPolicy     `yaml:"approval_policy,omitempty"`
}

// Load reads the product config document at productPath and, if present,
// an overrides document at overridesPath, merges them over the built-in
// defaults, validates the result, and returns a ready-to-use Config.
//
// Steps:
//  1. Read YAML files from disk.
//  2. Expand environment variables.
//  3. Strict-decode into explicit structs (unknown fields rejected).
//  4. Merge built-in defaults with any supplied overrides.
//  5. Validate.
func Load(productPath string, overridesPath string) (*Config, error) {
	product, err := loadProduct(productPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Product:            *product,
		ScoringWeights:     DefaultScoringWeights(),
		IntentDictionaries: DefaultIntentDictionaries(),
		SERPFeatureWeights: DefaultSERPFeatureWeights(),
		SourcePenalties:    DefaultSourcePenalties(),
		Guardrails:         DefaultGuardrailConfig(),
		ApprovalPolicy:     DefaultApprovalPolicy(),
	}

	if overridesPath != "" {
		if err := applyOverrides(cfg, overridesPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Product.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadProduct(path string) (*ProductConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fieldError("product_config", fmt.Sprintf("failed to read %s: %v", path, err))
	}
	data = []byte(os.ExpandEnv(string(data)))

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var pc ProductConfig
	if err := dec.Decode(&pc); err != nil {
		return nil, fieldError("product_config", fmt.Sprintf("failed to parse %s: %v", path, err))
	}
	return &pc, nil
}

func applyOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fieldError("overrides", fmt.Sprintf("failed to read %s: %v", path, err))
	}
	data = []byte(os.ExpandEnv(string(data)))

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var ov overridesYAML
	if err := dec.Decode(&ov); err != nil {
		return fieldError("overrides", fmt.Sprintf("failed to parse %s: %v", path, err))
	}

	if ov.ScoringWeights != nil {
		if err := mergo.Merge(&cfg.ScoringWeights, *ov.ScoringWeights, mergo.WithOverride); err != nil {
			return fieldError("overrides.scoring_weights", err.Error())
		}
	}
	if len(ov.IntentDictionaries) > 0 {
		cfg.IntentDictionaries = ov.IntentDictionaries
	}
	if len(ov.SERPFeatureWeights) > 0 {
		if err := mergo.Merge(&cfg.SERPFeatureWeights, ov.SERPFeatureWeights, mergo.WithOverride); err != nil {
			return fieldError("overrides.serp_feature_weights", err.Error())
		}
	}
	if len(ov.SourcePenalties) > 0 {
		if err := mergo.Merge(&cfg.SourcePenalties, ov.SourcePenalties, mergo.WithOverride); err != nil {
			return fieldError("overrides.source_penalties", err.Error())
		}
	}
	if ov.Guardrails != nil {
		if err := mergo.Merge(&cfg.Guardrails, *ov.Guardrails, mergo.WithOverride); err != nil {
			return fieldError("overrides.guardrails", err.Error())
		}
	}
	if ov.ApprovalPolicy != nil {
		if err := mergo.Merge(&cfg.ApprovalPolicy, *ov.ApprovalPolicy, mergo.WithOverride); err != nil {
			return fieldError("overrides.approval_policy", err.Error())
		}
	}
	return nil
}
