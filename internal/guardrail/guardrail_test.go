package guardrail_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/guardrail"
	"github.com/littlebearapps/adops-intel/internal/model"
)

func TestBudgetCapViolationIsCriticalAndBlocksOverride(t *testing.T) {
	cfg := config.DefaultGuardrailConfig()
	cfg.DailyCapUSD = 100
	sys := guardrail.New(cfg)

	proposal := model.PlannedChanges{
		Mutations: []model.Mutation{
			{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 50, Proposed: 150},
		},
	}
	result := sys.Validate(context.Background(), proposal, guardrail.Facts{Now: time.Now()})
	require.False(t, result.Passed)
	require.False(t, result.CanOverride)
	require.Equal(t, "budget_cap", result.Violations[0].Rule)
}

func TestMaxChangePctViolationIsHighAndAllowsOverride(t *testing.T) {
	cfg := config.DefaultGuardrailConfig()
	cfg.DailyCapUSD = 10000
	sys := guardrail.New(cfg)

	proposal := model.PlannedChanges{
		Mutations: []model.Mutation{
			{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 100, Proposed: 140},
		},
	}
	facts := guardrail.Facts{
		Now:               time.Now(),
		ClaimsValidations: map[string]model.ClaimsValidationRecord{"c1": {Campaign: "c1", ValidatedAt: time.Now().Format(time.RFC3339)}},
		QualityScores:     map[string]model.QualityScoreRecord{"c1": {Campaign: "c1", ImpressionWeighted: 8}},
		LandingPageHealth: map[string][]model.LandingPageHealthRecord{"c1": {{Campaign: "c1", HealthScore: 0.9}}},
	}
	result := sys.Validate(context.Background(), proposal, facts)
	require.False(t, result.Passed)
	require.True(t, result.CanOverride)
}

func TestValidPassesAllRules(t *testing.T) {
	cfg := config.DefaultGuardrailConfig()
	cfg.DailyCapUSD = 10000
	sys := guardrail.New(cfg)

	proposal := model.PlannedChanges{
		Mutations: []model.Mutation{
			{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 100, Proposed: 110},
		},
	}
	facts := guardrail.Facts{
		Now:               time.Now(),
		ClaimsValidations: map[string]model.ClaimsValidationRecord{"c1": {Campaign: "c1", ValidatedAt: time.Now().Format(time.RFC3339)}},
		QualityScores:     map[string]model.QualityScoreRecord{"c1": {Campaign: "c1", ImpressionWeighted: 8}},
		LandingPageHealth: map[string][]model.LandingPageHealthRecord{"c1": {{Campaign: "c1", HealthScore: 0.9}}},
	}
	result := sys.Validate(context.Background(), proposal, facts)
	require.True(t, result.Passed)
	require.Empty(t, result.Violations)
}

func TestClaimsFreshnessRejectsMissingRecord(t *testing.T) {
	cfg := config.DefaultGuardrailConfig()
	cfg.DailyCapUSD = 10000
	sys := guardrail.New(cfg)

	proposal := model.PlannedChanges{
		Mutations: []model.Mutation{
			{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 100, Proposed: 110},
		},
	}
	facts := guardrail.Facts{
		Now:               time.Now(),
		QualityScores:     map[string]model.QualityScoreRecord{"c1": {Campaign: "c1", ImpressionWeighted: 8}},
		LandingPageHealth: map[string][]model.LandingPageHealthRecord{"c1": {{Campaign: "c1", HealthScore: 0.9}}},
	}
	result := sys.Validate(context.Background(), proposal, facts)
	require.False(t, result.Passed)

	var found bool
	for _, v := range result.Violations {
		if v.Rule == "claims_freshness" {
			found = true
		}
	}
	require.True(t, found)
}

type fakeAuditRecorder struct{ calls int }

func (f *fakeAuditRecorder) Record(context.Context, string, model.ValidationResult, model.PlannedChanges, time.Time) error {
	f.calls++
	return nil
}

func TestValidateAndAuditWritesExactlyOneRow(t *testing.T) {
	cfg := config.DefaultGuardrailConfig()
	cfg.DailyCapUSD = 10000
	sys := guardrail.New(cfg)
	recorder := &fakeAuditRecorder{}

	proposal := model.PlannedChanges{Mutations: []model.Mutation{{Type: model.MutationAddNegative, Campaign: "c1"}}}
	_, err := sys.ValidateAndAudit(context.Background(), recorder, proposal, guardrail.Facts{Now: time.Now()}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, recorder.calls)
}
