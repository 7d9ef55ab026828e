package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// ApprovalRepository persists approval requests and their decisions.
// approval_decisions is append-only.
type ApprovalRepository struct {
	db *sql.DB
}

// NewApprovalRepository returns a repository backed by db.
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a new approval request with any decisions already
// attached (e.g. a synthetic auto-approval decision).
func (r *ApprovalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "begin tx", "error", err.Error())
	}
	defer tx.Rollback()

	approvers, err := json.Marshal(req.Approvers)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "marshal approvers", "error", err.Error())
	}
	changes, err := json.Marshal(req.Changes)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "marshal changes", "error", err.Error())
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_requests
			(id, requested_by, requested_at, change_type, severity, approvers, required_approvals,
			 status, expires_at, estimated_impact, changes_json, escalated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		req.ID, req.RequestedBy, req.RequestedAt, req.ChangeType, req.Severity, approvers,
		req.RequiredApprovals, req.Status, req.ExpiresAt, req.EstimatedImpact, changes, req.EscalatedAt)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "insert approval request", "error", err.Error())
	}

	for _, d := range req.CurrentApprovals {
		if err := insertDecision(ctx, tx, req.ID, d); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertDecision(ctx context.Context, tx *sql.Tx, requestID string, d model.Decision) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO approval_decisions (request_id, approver, approve, at, comment)
		VALUES ($1,$2,$3,$4,$5)`,
		requestID, d.Approver, d.Approve, d.At, nullString(d.Comment))
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "insert approval decision", "error", err.Error())
	}
	return nil
}

// AddDecision appends a single vote and updates request status/escalation
// state in one transaction, enforcing "a single approver votes at most
// once" at the repository boundary.
func (r *ApprovalRepository) AddDecision(ctx context.Context, req *model.ApprovalRequest, d model.Decision) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "begin tx", "error", err.Error())
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM approval_decisions WHERE request_id=$1 AND approver=$2)`,
		req.ID, d.Approver).Scan(&exists); err != nil {
		return pipeline.New(pipeline.StorageFailure, "check existing vote", "error", err.Error())
	}
	if exists {
		return pipeline.New(pipeline.StateConflict, "approver already voted", "approver", d.Approver)
	}

	if err := insertDecision(ctx, tx, req.ID, d); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE approval_requests SET status=$1, escalated_at=$2 WHERE id=$3`,
		req.Status, req.EscalatedAt, req.ID)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "update approval request", "error", err.Error())
	}

	return tx.Commit()
}

// UpdateStatus persists a terminal (or escalated) status change without
// adding a decision, e.g. expire/cancel.
func (r *ApprovalRepository) UpdateStatus(ctx context.Context, req *model.ApprovalRequest) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE approval_requests SET status=$1, escalated_at=$2 WHERE id=$3`,
		req.Status, req.EscalatedAt, req.ID)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "update approval status", "error", err.Error())
	}
	return nil
}

// Get loads an approval request with its decisions.
func (r *ApprovalRepository) Get(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, requested_by, requested_at, change_type, severity, approvers, required_approvals,
			status, expires_at, estimated_impact, changes_json, escalated_at
		FROM approval_requests WHERE id=$1`, id)

	var req model.ApprovalRequest
	var approvers, changes []byte
	if err := row.Scan(&req.ID, &req.RequestedBy, &req.RequestedAt, &req.ChangeType, &req.Severity,
		&approvers, &req.RequiredApprovals, &req.Status, &req.ExpiresAt, &req.EstimatedImpact,
		&changes, &req.EscalatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pipeline.ErrNotFound
		}
		return nil, pipeline.New(pipeline.StorageFailure, "get approval request", "error", err.Error())
	}
	if err := json.Unmarshal(approvers, &req.Approvers); err != nil {
		return nil, pipeline.New(pipeline.StorageFailure, "unmarshal approvers", "error", err.Error())
	}
	if err := json.Unmarshal(changes, &req.Changes); err != nil {
		return nil, pipeline.New(pipeline.StorageFailure, "unmarshal changes", "error", err.Error())
	}

	decisions, err := r.listDecisions(ctx, id)
	if err != nil {
		return nil, err
	}
	req.CurrentApprovals = decisions
	return &req, nil
}

func (r *ApprovalRepository) listDecisions(ctx context.Context, requestID string) ([]model.Decision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT approver, approve, at, COALESCE(comment,'') FROM approval_decisions
		WHERE request_id=$1 ORDER BY at`, requestID)
	if err != nil {
		return nil, pipeline.New(pipeline.StorageFailure, "list decisions", "error", err.Error())
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		var d model.Decision
		if err := rows.Scan(&d.Approver, &d.Approve, &d.At, &d.Comment); err != nil {
			return nil, pipeline.New(pipeline.StorageFailure, "scan decision", "error", err.Error())
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// ListPending returns requests still awaiting a terminal decision,
// used by the expiration/escalation sweep.
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*model.ApprovalRequest, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM approval_requests WHERE status = 'PENDING'`)
	if err != nil {
		return nil, pipeline.New(pipeline.StorageFailure, "list pending approvals", "error", err.Error())
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, pipeline.New(pipeline.StorageFailure, "scan pending id", "error", err.Error())
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*model.ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		req, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, nil
}
