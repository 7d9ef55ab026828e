package config

// GuardrailConfig carries the constraints consumed by the five guardrail
// rules.
type GuardrailConfig struct {
	DailyCapAUD          float64 `yaml:"daily_cap_aud"`
	DailyCapUSD          float64 `yaml:"daily_cap_usd"`
	DailyCapGBP          float64 `yaml:"daily_cap_gbp"`
	MaxChangePct         float64 `yaml:"max_change_pct"`
	MinQualityScore      float64 `yaml:"min_quality_score"`
	MinLandingPageHealth float64 `yaml:"min_landing_page_health"`
	ClaimsMaxAgeDays     int     `yaml:"claims_max_age_days"`
}

// DefaultGuardrailConfig returns the documented default thresholds.
func DefaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{
		MaxChangePct:         25,
		MinQualityScore:      3,
		MinLandingPageHealth: 0.6,
		ClaimsMaxAgeDays:     30,
	}
}

// DailyCap returns the configured cap for a currency code, and whether
// one is configured.
func (g GuardrailConfig) DailyCap(currency string) (float64, bool) {
	switch currency {
	case "AUD":
		return g.DailyCapAUD, g.DailyCapAUD > 0
	case "USD":
		return g.DailyCapUSD, g.DailyCapUSD > 0
	case "GBP":
		return g.DailyCapGBP, g.DailyCapGBP > 0
	default:
		return 0, false
	}
}

// ApprovalTier is one row of the severity→policy approval matrix.
type ApprovalTier struct {
	RequiredApprovals    int      `yaml:"required_approvals"`
	ApproverSet          []string `yaml:"approver_set"`
	EscalationAfterHours int      `yaml:"escalation_after_hours"`
}

// ApprovalPolicy is the approval workflow's configuration: budget tiers,
// approval matrix, auto-approval allowlist, expiration.
type ApprovalPolicy struct {
	BudgetTierLow         float64                 `yaml:"budget_tier_low"`
	BudgetTierMedium      float64                 `yaml:"budget_tier_medium"`
	BudgetTierHigh        float64                 `yaml:"budget_tier_high"`
	BudgetTierCritical    float64                 `yaml:"budget_tier_critical"`
	Matrix                map[string]ApprovalTier `yaml:"matrix"`
	AutoApprovalEnabled   bool                    `yaml:"auto_approval_enabled"`
	AutoApprovalAllowlist []string                `yaml:"auto_approval_allowlist"`
	AutoApprovalMaxDelta  float64                 `yaml:"auto_approval_max_delta"`
	ExpirationHours       int                     `yaml:"expiration_hours"`
}

// DefaultApprovalPolicy returns the documented default policy:
// budget tiers at $100/$1,000/$5,000/$10,000 and the approval matrix
// {LOW:1/24h, MEDIUM:1/12h, HIGH:2/6h, CRITICAL:3/2h}.
func DefaultApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{
		BudgetTierLow:      100,
		BudgetTierMedium:   1000,
		BudgetTierHigh:     5000,
		BudgetTierCritical: 10000,
		Matrix: map[string]ApprovalTier{
			"LOW":      {RequiredApprovals: 1, ApproverSet: []string{"any"}, EscalationAfterHours: 24},
			"MEDIUM":   {RequiredApprovals: 1, ApproverSet: []string{"any"}, EscalationAfterHours: 12},
			"HIGH":     {RequiredApprovals: 2, ApproverSet: []string{"any"}, EscalationAfterHours: 6},
			"CRITICAL": {RequiredApprovals: 3, ApproverSet: []string{"any"}, EscalationAfterHours: 2},
		},
		ExpirationHours: 48,
	}
}
