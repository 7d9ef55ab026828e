package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// GuardrailAuditRepository is the append-only audit table for every
// validate_proposal call.
type GuardrailAuditRepository struct {
	db *sql.DB
}

// NewGuardrailAuditRepository returns a repository backed by db.
func NewGuardrailAuditRepository(db *sql.DB) *GuardrailAuditRepository {
	return &GuardrailAuditRepository{db: db}
}

// Record appends exactly one audit row per call, satisfying the
// universal invariant "every call to validate_proposal produces exactly
// one audit row."
func (r *GuardrailAuditRepository) Record(ctx context.Context, proposalHash string, result model.ValidationResult, proposal model.PlannedChanges, at time.Time) error {
	violations, err := json.Marshal(result.Violations)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "marshal violations", "error", err.Error())
	}
	proposalJSON, err := json.Marshal(proposal)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "marshal proposal", "error", err.Error())
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO guardrail_validations
			(proposal_hash, passed, violation_count, can_override, violations_json, proposal_json, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		proposalHash, result.Passed, len(result.Violations), result.CanOverride, violations, proposalJSON, at)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "insert guardrail audit row", "error", err.Error())
	}
	return nil
}

// Count returns the number of audit rows recorded, used by tests to
// assert the one-row-per-call invariant.
func (r *GuardrailAuditRepository) Count(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guardrail_validations`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, pipeline.New(pipeline.StorageFailure, "count guardrail audit rows", "error", err.Error())
	}
	return n, nil
}
