// Package guardrail implements C12: the open/closed guardrail rule
// system that validates a PlannedChanges proposal before it can reach
// the approval workflow.
package guardrail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/model"
)

// Rule is the open/closed contract every guardrail rule implements.
// New rules plug in by appending to the registry passed to New.
type Rule interface {
	Name() string
	Validate(ctx context.Context, proposal model.PlannedChanges, facts Facts, cfg config.GuardrailConfig) (passed bool, violation *model.Violation)
}

// Facts bundles the read-only signals rules 3-5 consume, queried by the
// caller ahead of validation.
type Facts struct {
	QualityScores     map[string]model.QualityScoreRecord     // keyed by campaign
	LandingPageHealth map[string][]model.LandingPageHealthRecord // keyed by campaign, worst taken
	ClaimsValidations map[string]model.ClaimsValidationRecord  // keyed by campaign
	Now               time.Time
}

// System runs the fixed-order rule registry and records an audit entry
// via the supplied AuditRecorder.
type System struct {
	rules []Rule
	cfg   config.GuardrailConfig
}

// AuditRecorder is the storage seam for the append-only audit table.
type AuditRecorder interface {
	Record(ctx context.Context, proposalHash string, result model.ValidationResult, proposal model.PlannedChanges, at time.Time) error
}

// New returns a System running the five default rules in a fixed order.
// Additional rules can be appended via WithRules.
func New(cfg config.GuardrailConfig) *System {
	return &System{
		cfg: cfg,
		rules: []Rule{
			budgetCapRule{},
			maxChangePctRule{},
			minQualityScoreRule{},
			landingPageHealthRule{},
			claimsFreshnessRule{},
		},
	}
}

// WithRules appends additional rules after the default five, preserving
// the open/closed contract.
func (s *System) WithRules(extra ...Rule) *System {
	s.rules = append(append([]Rule(nil), s.rules...), extra...)
	return s
}

// Validate runs every rule in order, producing a ValidationResult. A
// proposal can be overridden iff no critical violation is present.
func (s *System) Validate(ctx context.Context, proposal model.PlannedChanges, facts Facts) model.ValidationResult {
	var violations []model.Violation
	canOverride := true

	for _, rule := range s.rules {
		passed, violation := rule.Validate(ctx, proposal, facts, s.cfg)
		if passed || violation == nil {
			continue
		}
		violations = append(violations, *violation)
		if violation.Severity == model.SeverityCritical {
			canOverride = false
		}
	}

	return model.ValidationResult{
		Passed:      len(violations) == 0,
		Violations:  violations,
		CanOverride: canOverride,
	}
}

// ValidateAndAudit runs Validate and writes exactly one audit row
// per call.
func (s *System) ValidateAndAudit(ctx context.Context, recorder AuditRecorder, proposal model.PlannedChanges, facts Facts, at time.Time) (model.ValidationResult, error) {
	result := s.Validate(ctx, proposal, facts)
	hash := ProposalHash(proposal)
	if err := recorder.Record(ctx, hash, result, proposal, at); err != nil {
		return result, err
	}
	return result, nil
}

// ProposalHash returns a short content hash identifying a proposal for
// the audit table.
func ProposalHash(proposal model.PlannedChanges) string {
	data, _ := json.Marshal(proposal)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// --- Rule 1: Budget cap ---

type budgetCapRule struct{}

func (budgetCapRule) Name() string { return "budget_cap" }

func (budgetCapRule) Validate(_ context.Context, proposal model.PlannedChanges, _ Facts, cfg config.GuardrailConfig) (bool, *model.Violation) {
	byCurrency := make(map[string]float64)
	for _, m := range proposal.Mutations {
		if m.Type == model.MutationUpdateBudget {
			byCurrency[m.Currency] += m.Proposed
		}
	}
	for currency, total := range byCurrency {
		cap, bounded := cfg.DailyCap(currency)
		if bounded && total > cap {
			return false, &model.Violation{
				Rule:     "budget_cap",
				Severity: model.SeverityCritical,
				Message:  "proposed budgets exceed the configured daily cap",
			}
		}
	}
	return true, nil
}

// --- Rule 2: Max change % ---

type maxChangePctRule struct{}

func (maxChangePctRule) Name() string { return "max_change_pct" }

func (maxChangePctRule) Validate(_ context.Context, proposal model.PlannedChanges, _ Facts, cfg config.GuardrailConfig) (bool, *model.Violation) {
	limit := cfg.MaxChangePct
	if limit <= 0 {
		limit = 25
	}
	for _, m := range proposal.Mutations {
		if m.Type != model.MutationUpdateBudget && m.Type != model.MutationUpdateBid {
			continue
		}
		if m.PercentChange() > limit {
			return false, &model.Violation{
				Rule:     "max_change_pct",
				Severity: model.SeverityHigh,
				Message:  "campaign " + m.Campaign + " change exceeds maximum allowed percentage",
			}
		}
	}
	return true, nil
}

// --- Rule 3: Minimum quality score ---

type minQualityScoreRule struct{}

func (minQualityScoreRule) Name() string { return "min_quality_score" }

func (minQualityScoreRule) Validate(_ context.Context, proposal model.PlannedChanges, facts Facts, cfg config.GuardrailConfig) (bool, *model.Violation) {
	threshold := cfg.MinQualityScore
	if threshold <= 0 {
		threshold = 3
	}
	for _, m := range proposal.Mutations {
		if m.Type != model.MutationUpdateBudget || m.Delta() <= 0 {
			continue
		}
		rec, ok := facts.QualityScores[m.Campaign]
		if ok && rec.ImpressionWeighted <= threshold {
			return false, &model.Violation{
				Rule:     "min_quality_score",
				Severity: model.SeverityCritical,
				Message:  "campaign " + m.Campaign + " quality score too low to increase budget",
			}
		}
	}
	return true, nil
}

// --- Rule 4: Landing-page health ---

type landingPageHealthRule struct{}

func (landingPageHealthRule) Name() string { return "landing_page_health" }

func (landingPageHealthRule) Validate(_ context.Context, proposal model.PlannedChanges, facts Facts, cfg config.GuardrailConfig) (bool, *model.Violation) {
	threshold := cfg.MinLandingPageHealth
	if threshold <= 0 {
		threshold = 0.6
	}
	for _, m := range proposal.Mutations {
		if m.Type != model.MutationUpdateBudget || m.Delta() <= 0 {
			continue
		}
		records, ok := facts.LandingPageHealth[m.Campaign]
		if !ok {
			continue
		}
		worst := worstHealth(records)
		if worst < threshold {
			return false, &model.Violation{
				Rule:     "landing_page_health",
				Severity: model.SeverityCritical,
				Message:  "campaign " + m.Campaign + " has a landing page below the health threshold",
			}
		}
	}
	return true, nil
}

func worstHealth(records []model.LandingPageHealthRecord) float64 {
	if len(records) == 0 {
		return 1
	}
	worst := records[0].HealthScore
	for _, r := range records[1:] {
		if r.HealthScore < worst {
			worst = r.HealthScore
		}
	}
	return worst
}

// --- Rule 5: Claims validation freshness ---

type claimsFreshnessRule struct{}

func (claimsFreshnessRule) Name() string { return "claims_freshness" }

func (claimsFreshnessRule) Validate(_ context.Context, proposal model.PlannedChanges, facts Facts, cfg config.GuardrailConfig) (bool, *model.Violation) {
	maxAge := cfg.ClaimsMaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}
	for _, m := range proposal.Mutations {
		if m.Type != model.MutationUpdateBudget || m.Delta() <= 0 {
			continue
		}
		rec, ok := facts.ClaimsValidations[m.Campaign]
		if !ok {
			return false, &model.Violation{
				Rule:     "claims_freshness",
				Severity: model.SeverityCritical,
				Message:  "campaign " + m.Campaign + " has no claims validation record",
			}
		}
		validatedAt, err := time.Parse(time.RFC3339, rec.ValidatedAt)
		if err != nil {
			return false, &model.Violation{
				Rule:     "claims_freshness",
				Severity: model.SeverityCritical,
				Message:  "campaign " + m.Campaign + " has an unparseable claims validation timestamp",
			}
		}
		age := facts.Now.Sub(validatedAt)
		if age > time.Duration(maxAge)*24*time.Hour {
			return false, &model.Violation{
				Rule:     "claims_freshness",
				Severity: model.SeverityCritical,
				Message:  "campaign " + m.Campaign + " claims validation has expired",
			}
		}
	}
	return true, nil
}
