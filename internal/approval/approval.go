// Package approval implements C13: severity grading, approval-matrix
// routing, auto-approval, expiration/escalation, and the
// ready-for-application record.
package approval

import (
	"context"
	"time"

	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/notify"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// Repository is the storage seam the workflow depends on.
type Repository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	AddDecision(ctx context.Context, req *model.ApprovalRequest, d model.Decision) error
	UpdateStatus(ctx context.Context, req *model.ApprovalRequest) error
	Get(ctx context.Context, id string) (*model.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]*model.ApprovalRequest, error)
}

// Workflow drives approval-request creation, voting, and the
// expiration/escalation sweep.
type Workflow struct {
	repo   Repository
	clk    clock.Clock
	policy config.ApprovalPolicy
	bus    *notify.Bus
}

// New returns a Workflow. bus may be nil (notifications are then a
// no-op).
func New(repo Repository, clk clock.Clock, policy config.ApprovalPolicy, bus *notify.Bus) *Workflow {
	return &Workflow{repo: repo, clk: clk, policy: policy, bus: bus}
}

// Severity derives an ApprovalRequest's severity from structural
// deletions and budget delta. The number of affected entities is not
// considered.
func Severity(changes model.PlannedChanges, policy config.ApprovalPolicy) model.Severity {
	if changes.HasStructuralDeletion() {
		return model.SeverityHigh
	}

	delta := changes.BudgetDelta()
	switch {
	case delta > policy.BudgetTierCritical:
		return model.SeverityCritical
	case delta > policy.BudgetTierHigh:
		return model.SeverityHigh
	case delta > policy.BudgetTierMedium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// Submit creates a new approval request for changes requested by
// requestedBy, applying auto-approval when eligible.
func (w *Workflow) Submit(ctx context.Context, id, requestedBy string, changes model.PlannedChanges) (*model.ApprovalRequest, error) {
	severity := Severity(changes, w.policy)
	tier, ok := w.policy.Matrix[string(severity)]
	if !ok {
		return nil, pipeline.New(pipeline.ConfigInvalid, "no approval matrix entry for severity", "severity", severity)
	}

	now := w.clk.Now()
	req := &model.ApprovalRequest{
		ID:                id,
		RequestedBy:       requestedBy,
		RequestedAt:       now,
		ChangeType:        dominantMutationType(changes),
		Severity:          severity,
		Approvers:         tier.ApproverSet,
		RequiredApprovals: tier.RequiredApprovals,
		Status:            model.ApprovalPending,
		ExpiresAt:         now.Add(expirationDuration(w.policy)),
		EstimatedImpact:   changes.BudgetDelta(),
		Changes:           changes,
	}

	if w.autoApprovalEligible(requestedBy, severity, changes.BudgetDelta()) {
		req.CurrentApprovals = []model.Decision{{Approver: "system:auto-approval", Approve: true, At: now, Comment: "auto-approved per policy"}}
		req.Status = model.ApprovalApproved
	}

	if err := w.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	w.publish(notify.EventApprovalRequested, req)
	if req.Status == model.ApprovalApproved {
		w.publish(notify.EventApprovalDecided, req)
	}
	return req, nil
}

func dominantMutationType(changes model.PlannedChanges) model.MutationType {
	if len(changes.Mutations) == 0 {
		return ""
	}
	return changes.Mutations[0].Type
}

func expirationDuration(policy config.ApprovalPolicy) time.Duration {
	hours := policy.ExpirationHours
	if hours <= 0 {
		hours = 48
	}
	return time.Duration(hours) * time.Hour
}

func (w *Workflow) autoApprovalEligible(requestedBy string, severity model.Severity, budgetDelta float64) bool {
	if !w.policy.AutoApprovalEnabled || severity != model.SeverityLow {
		return false
	}
	if budgetDelta > w.policy.AutoApprovalMaxDelta {
		return false
	}
	for _, allowed := range w.policy.AutoApprovalAllowlist {
		if allowed == requestedBy {
			return true
		}
	}
	return false
}

// Vote records a single approver's decision. Only one vote per approver
// is permitted; voting on a terminal request is rejected. Reaching the
// required approval count (with no rejections outstanding) transitions
// the request to APPROVED; any rejection immediately transitions it to
// REJECTED.
func (w *Workflow) Vote(ctx context.Context, id, approver string, approve bool, comment string) (*model.ApprovalRequest, error) {
	req, err := w.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, pipeline.New(pipeline.StateConflict, "request already terminal", "status", req.Status)
	}
	if !isAuthorizedApprover(req, approver) {
		return nil, pipeline.New(pipeline.Unauthorized, "approver is not in the request's approver set", "approver", approver)
	}
	if req.HasVoted(approver) {
		return nil, pipeline.New(pipeline.StateConflict, "approver already voted", "approver", approver)
	}

	decision := model.Decision{Approver: approver, Approve: approve, At: w.clk.Now(), Comment: comment}
	req.CurrentApprovals = append(req.CurrentApprovals, decision)

	switch {
	case !approve:
		req.Status = model.ApprovalRejected
	case req.ApprovalCount() >= req.RequiredApprovals:
		req.Status = model.ApprovalApproved
	}

	if err := w.repo.AddDecision(ctx, req, decision); err != nil {
		return nil, err
	}

	if req.Status.Terminal() {
		w.publish(notify.EventApprovalDecided, req)
	}
	return req, nil
}

func isAuthorizedApprover(req *model.ApprovalRequest, approver string) bool {
	for _, a := range req.Approvers {
		if a == "any" || a == approver {
			return true
		}
	}
	return false
}

// Cancel transitions a pending request to CANCELLED. Only the
// originator or an administrator may cancel.
func (w *Workflow) Cancel(ctx context.Context, id, actor string, isAdmin bool) (*model.ApprovalRequest, error) {
	req, err := w.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, pipeline.New(pipeline.StateConflict, "request already terminal", "status", req.Status)
	}
	if actor != req.RequestedBy && !isAdmin {
		return nil, pipeline.New(pipeline.Unauthorized, "only the originator or an administrator may cancel", "actor", actor)
	}

	req.Status = model.ApprovalCancelled
	if err := w.repo.UpdateStatus(ctx, req); err != nil {
		return nil, err
	}
	w.publish(notify.EventApprovalDecided, req)
	return req, nil
}

// Sweep expires requests past their expiration and escalates pending
// requests past their tier's escalation threshold.
func (w *Workflow) Sweep(ctx context.Context) error {
	pending, err := w.repo.ListPending(ctx)
	if err != nil {
		return err
	}

	now := w.clk.Now()
	for _, req := range pending {
		if !now.Before(req.ExpiresAt) {
			req.Status = model.ApprovalExpired
			if err := w.repo.UpdateStatus(ctx, req); err != nil {
				return err
			}
			w.publish(notify.EventApprovalExpired, req)
			continue
		}

		tier, ok := w.policy.Matrix[string(req.Severity)]
		if !ok || req.EscalatedAt != nil {
			continue
		}
		threshold := req.RequestedAt.Add(time.Duration(tier.EscalationAfterHours) * time.Hour)
		if !now.Before(threshold) {
			req.EscalatedAt = &now
			if err := w.repo.UpdateStatus(ctx, req); err != nil {
				return err
			}
			w.publish(notify.EventApprovalEscalated, req)
		}
	}
	return nil
}

func (w *Workflow) publish(eventType notify.EventType, req *model.ApprovalRequest) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(notify.Event{Type: eventType, Payload: req})
}

// ReadyForApplication is the record persisted once a request reaches
// APPROVED, carrying the approved mutation set for a downstream applier.
type ReadyForApplication struct {
	RequestID  string
	Changes    model.PlannedChanges
	ApprovedAt time.Time
}

// BuildReadyForApplication constructs the record for an APPROVED
// request, or returns an error if the request is not approved.
func BuildReadyForApplication(req *model.ApprovalRequest) (ReadyForApplication, error) {
	if req.Status != model.ApprovalApproved {
		return ReadyForApplication{}, pipeline.New(pipeline.StateConflict, "request is not approved", "status", req.Status)
	}
	approvedAt := req.RequestedAt
	for _, d := range req.CurrentApprovals {
		if d.Approve && d.At.After(approvedAt) {
			approvedAt = d.At
		}
	}
	return ReadyForApplication{
		RequestID:  req.ID,
		Changes:    req.Changes,
		ApprovedAt: approvedAt,
	}, nil
}
