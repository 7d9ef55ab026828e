package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/storage"
	"github.com/littlebearapps/adops-intel/test/testdb"
)

func TestGuardrailAuditRepositoryRecordsExactlyOneRowPerCall(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := storage.NewGuardrailAuditRepository(client.DB())
	ctx := context.Background()

	proposal := model.PlannedChanges{
		Product:   "webp-converter",
		Mutations: []model.Mutation{{Type: model.MutationUpdateBudget, Campaign: "c1", Current: 100, Proposed: 120}},
	}
	result := model.ValidationResult{
		Passed: false,
		Violations: []model.Violation{
			{Rule: "budget_delta", Severity: model.SeverityMedium, Message: "budget increase exceeds threshold"},
		},
		CanOverride: true,
	}

	require.NoError(t, repo.Record(ctx, "hash-1", result, proposal, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, repo.Record(ctx, "hash-2", result, proposal, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)))

	n, err = repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
