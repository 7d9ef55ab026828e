package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/approval"
	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/notify"
)

type fakeRepo struct {
	requests map[string]*model.ApprovalRequest
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{requests: map[string]*model.ApprovalRequest{}}
}

func (f *fakeRepo) Create(_ context.Context, req *model.ApprovalRequest) error {
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRepo) AddDecision(_ context.Context, req *model.ApprovalRequest, _ model.Decision) error {
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, req *model.ApprovalRequest) error {
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*model.ApprovalRequest, error) {
	return f.requests[id], nil
}

func (f *fakeRepo) ListPending(_ context.Context) ([]*model.ApprovalRequest, error) {
	var pending []*model.ApprovalRequest
	for _, r := range f.requests {
		if r.Status == model.ApprovalPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

func lowSeverityChanges() model.PlannedChanges {
	return model.PlannedChanges{
		Mutations: []model.Mutation{
			{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 100, Proposed: 150},
		},
	}
}

func highSeverityChanges() model.PlannedChanges {
	return model.PlannedChanges{
		Mutations: []model.Mutation{
			{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 1000, Proposed: 6500},
		},
	}
}

func TestSeverityDerivesFromBudgetDeltaAndStructuralDeletion(t *testing.T) {
	policy := config.DefaultApprovalPolicy()

	require.Equal(t, model.SeverityLow, approval.Severity(lowSeverityChanges(), policy))
	require.Equal(t, model.SeverityHigh, approval.Severity(highSeverityChanges(), policy))

	deletion := model.PlannedChanges{Mutations: []model.Mutation{{Type: model.MutationDeleteCampaign, Campaign: "c1"}}}
	require.Equal(t, model.SeverityHigh, approval.Severity(deletion, policy))
}

func TestSubmitAutoApprovesWhenEligible(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	policy.AutoApprovalEnabled = true
	policy.AutoApprovalAllowlist = []string{"automation-bot"}
	policy.AutoApprovalMaxDelta = 100

	repo := newFakeRepo()
	wf := approval.New(repo, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), policy, nil)

	changes := model.PlannedChanges{Mutations: []model.Mutation{
		{Type: model.MutationUpdateBudget, Campaign: "c1", Currency: "USD", Current: 100, Proposed: 150},
	}}
	req, err := wf.Submit(context.Background(), "req-1", "automation-bot", changes)
	require.NoError(t, err)
	require.Equal(t, model.ApprovalApproved, req.Status)
}

func TestSubmitRequiresApprovalWhenNotEligibleForAutoApproval(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	repo := newFakeRepo()
	wf := approval.New(repo, clock.NewFixed(time.Now()), policy, nil)

	req, err := wf.Submit(context.Background(), "req-1", "someone", lowSeverityChanges())
	require.NoError(t, err)
	require.Equal(t, model.ApprovalPending, req.Status)
	require.Equal(t, 1, req.RequiredApprovals)
}

func TestVoteRejectsDuplicateVoteFromSameApprover(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	policy.Matrix["LOW"] = config.ApprovalTier{RequiredApprovals: 2, ApproverSet: []string{"any"}, EscalationAfterHours: 24}
	repo := newFakeRepo()
	wf := approval.New(repo, clock.NewFixed(time.Now()), policy, nil)

	req, err := wf.Submit(context.Background(), "req-1", "someone", lowSeverityChanges())
	require.NoError(t, err)

	_, err = wf.Vote(context.Background(), req.ID, "alice", true, "lgtm")
	require.NoError(t, err)

	_, err = wf.Vote(context.Background(), req.ID, "alice", true, "again")
	require.Error(t, err)
}

func TestVoteReachingRequiredCountApproves(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	policy.Matrix["LOW"] = config.ApprovalTier{RequiredApprovals: 2, ApproverSet: []string{"any"}, EscalationAfterHours: 24}
	repo := newFakeRepo()
	wf := approval.New(repo, clock.NewFixed(time.Now()), policy, nil)

	req, err := wf.Submit(context.Background(), "req-1", "someone", lowSeverityChanges())
	require.NoError(t, err)

	_, err = wf.Vote(context.Background(), req.ID, "alice", true, "")
	require.NoError(t, err)
	req2, err := wf.Vote(context.Background(), req.ID, "bob", true, "")
	require.NoError(t, err)
	require.Equal(t, model.ApprovalApproved, req2.Status)
}

func TestVoteRejectionImmediatelyRejectsRequest(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	policy.Matrix["LOW"] = config.ApprovalTier{RequiredApprovals: 2, ApproverSet: []string{"any"}, EscalationAfterHours: 24}
	repo := newFakeRepo()
	wf := approval.New(repo, clock.NewFixed(time.Now()), policy, nil)

	req, err := wf.Submit(context.Background(), "req-1", "someone", lowSeverityChanges())
	require.NoError(t, err)

	req2, err := wf.Vote(context.Background(), req.ID, "alice", false, "no")
	require.NoError(t, err)
	require.Equal(t, model.ApprovalRejected, req2.Status)
}

func TestCancelRequiresOriginatorOrAdmin(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	repo := newFakeRepo()
	wf := approval.New(repo, clock.NewFixed(time.Now()), policy, nil)

	req, err := wf.Submit(context.Background(), "req-1", "alice", lowSeverityChanges())
	require.NoError(t, err)

	_, err = wf.Cancel(context.Background(), req.ID, "mallory", false)
	require.Error(t, err)

	req2, err := wf.Cancel(context.Background(), req.ID, "alice", false)
	require.NoError(t, err)
	require.Equal(t, model.ApprovalCancelled, req2.Status)
}

func TestSweepExpiresRequestsPastExpiration(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := newFakeRepo()
	wf := approval.New(repo, clk, policy, nil)

	req, err := wf.Submit(context.Background(), "req-1", "alice", lowSeverityChanges())
	require.NoError(t, err)
	require.Equal(t, model.ApprovalPending, req.Status)

	clk.Set(time.Date(2026, 1, 3, 1, 0, 0, 0, time.UTC))
	err = wf.Sweep(context.Background())
	require.NoError(t, err)

	updated, err := repo.Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, model.ApprovalExpired, updated.Status)
}

func TestSweepEscalatesPendingRequestsPastThreshold(t *testing.T) {
	policy := config.DefaultApprovalPolicy()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := newFakeRepo()
	bus := notify.New()
	ch := bus.Subscribe()
	wf := approval.New(repo, clk, policy, bus)

	req, err := wf.Submit(context.Background(), "req-1", "alice", lowSeverityChanges())
	require.NoError(t, err)
	<-ch // drain the approval_requested event

	clk.Set(time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC))
	err = wf.Sweep(context.Background())
	require.NoError(t, err)

	updated, err := repo.Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.EscalatedAt)

	select {
	case ev := <-ch:
		require.Equal(t, notify.EventApprovalEscalated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an escalation event")
	}
}

func TestBuildReadyForApplicationRequiresApprovedStatus(t *testing.T) {
	req := &model.ApprovalRequest{Status: model.ApprovalPending}
	_, err := approval.BuildReadyForApplication(req)
	require.Error(t, err)

	req.Status = model.ApprovalApproved
	req.RequestedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req.CurrentApprovals = []model.Decision{{Approve: true, At: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}}
	ready, err := approval.BuildReadyForApplication(req)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), ready.ApprovedAt)
}
