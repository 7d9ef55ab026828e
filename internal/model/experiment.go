package model

import "time"

// ExperimentType distinguishes RSA (responsive search ad) from
// landing-page experiments (C7/C9).
type ExperimentType string

const (
	ExperimentRSA         ExperimentType = "rsa"
	ExperimentLandingPage ExperimentType = "landing_page"
)

// ExperimentStatus is the experiment lifecycle state's
// finite-state machine.
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
	StatusAborted   ExperimentStatus = "aborted"
)

// TargetMetric is the metric an experiment is optimizing for.
type TargetMetric string

const (
	MetricCTR         TargetMetric = "ctr"
	MetricCVR         TargetMetric = "cvr"
	MetricCWSClickRate TargetMetric = "cws_click_rate"
)

// GuardConfig holds the thresholds `start` evaluates before allowing
// draft→active.
type GuardConfig struct {
	MinSampleSize       int     `json:"min_sample_size"`
	MinDurationHours    int     `json:"min_duration_hours"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	DailySpendCeiling   float64 `json:"daily_spend_ceiling"`
}

// Experiment is an A/B test over RSA or landing-page variants.
type Experiment struct {
	ID               string           `json:"id"`
	Type             ExperimentType   `json:"type"`
	Product          string           `json:"product"`
	TargetID         string           `json:"target_id"`
	Status           ExperimentStatus `json:"status"`
	TargetMetric     TargetMetric     `json:"target_metric"`
	Variants         []Variant        `json:"variants"`
	MinSampleSize    int              `json:"min_sample_size"`
	ConfidenceLevel  float64          `json:"confidence_level"`
	Guards           GuardConfig      `json:"guards"`
	StartAt          *time.Time       `json:"start_at,omitempty"`
	EndAt            *time.Time       `json:"end_at,omitempty"`
	WinnerVariantID  string           `json:"winner_variant_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ControlVariant returns the single control variant, if any.
func (e *Experiment) ControlVariant() (Variant, bool) {
	for _, v := range e.Variants {
		if v.IsControl {
			return v, true
		}
	}
	return Variant{}, false
}

// WeightSum returns the sum of variant weights.
func (e *Experiment) WeightSum() float64 {
	sum := 0.0
	for _, v := range e.Variants {
		sum += v.Weight
	}
	return sum
}

// Variant is a single arm of an experiment. Common fields apply to both
// RSA and landing-page experiments; the type-specific fields are left
// zero-valued for the other type.
type Variant struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	IsControl            bool     `json:"is_control"`
	Weight               float64  `json:"weight"`
	SimilarityToControl  float64  `json:"similarity_to_control"`

	// RSA extension.
	Headlines    []string `json:"headlines,omitempty"`
	Descriptions []string `json:"descriptions,omitempty"`
	FinalURLs    []string `json:"final_urls,omitempty"`
	Labels       []string `json:"labels,omitempty"`

	// Landing-page extension.
	ContentPath  string   `json:"content_path,omitempty"`
	RoutingRules []string `json:"routing_rules,omitempty"`
}

// MetricPoint is one day's aggregated performance counts for a variant.
// Primary key is (ExperimentID, VariantID, Date); upsert must be
// idempotent.
type MetricPoint struct {
	ExperimentID     string    `json:"experiment_id"`
	VariantID        string    `json:"variant_id"`
	Date             string    `json:"date"` // YYYY-MM-DD
	Impressions      int64     `json:"impressions"`
	Clicks           int64     `json:"clicks"`
	Cost             float64   `json:"cost"`
	Conversions      int64     `json:"conversions"`
	ConversionValue  float64   `json:"conversion_value"`
}

// Key identifies a MetricPoint for idempotent-upsert purposes.
func (m MetricPoint) Key() MetricKey {
	return MetricKey{ExperimentID: m.ExperimentID, VariantID: m.VariantID, Date: m.Date}
}

// MetricKey is the primary key of a MetricPoint.
type MetricKey struct {
	ExperimentID string
	VariantID    string
	Date         string
}
