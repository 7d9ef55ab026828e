package experiment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/experiment"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
	"github.com/littlebearapps/adops-intel/internal/rng"
)

type fakeRepo struct {
	experiments map[string]*model.Experiment
	metrics     map[string]model.MetricPoint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{experiments: make(map[string]*model.Experiment), metrics: make(map[string]model.MetricPoint)}
}

func (r *fakeRepo) Create(_ context.Context, e *model.Experiment) error {
	cp := *e
	r.experiments[e.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*model.Experiment, error) {
	e, ok := r.experiments[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, e *model.Experiment, _ string) error {
	cp := *e
	r.experiments[e.ID] = &cp
	return nil
}

func (r *fakeRepo) UpsertMetric(_ context.Context, m model.MetricPoint) error {
	r.metrics[m.ExperimentID+"|"+m.VariantID+"|"+m.Date] = m
	return nil
}

func (r *fakeRepo) AggregateMetrics(_ context.Context, experimentID, variantID string) (impressions, clicks, conversions int64, cost, convValue float64, err error) {
	for _, m := range r.metrics {
		if m.ExperimentID == experimentID && m.VariantID == variantID {
			impressions += m.Impressions
			clicks += m.Clicks
			conversions += m.Conversions
			cost += m.Cost
			convValue += m.ConversionValue
		}
	}
	return
}

func baseExperiment() *model.Experiment {
	return &model.Experiment{
		ID:            "exp-1",
		Type:          model.ExperimentRSA,
		TargetMetric:  model.MetricCTR,
		MinSampleSize: 1000,
		Guards: model.GuardConfig{
			MinSampleSize:       500,
			MinDurationHours:    24,
			SimilarityThreshold: 0.9,
			DailySpendCeiling:   50,
		},
		Variants: []model.Variant{
			{ID: "control", IsControl: true, Weight: 0.5},
			{ID: "treatment", SimilarityToControl: 0.3, Weight: 0.5},
		},
	}
}

func TestStartSucceedsWhenGuardsPass(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	exp := baseExperiment()
	require.NoError(t, eng.Create(context.Background(), exp))
	require.NoError(t, eng.Start(context.Background(), exp.ID))

	got, err := repo.Get(context.Background(), exp.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, got.Status)
}

func TestStartFailsOnSimilarityGuard(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	exp := baseExperiment()
	exp.Variants[1].SimilarityToControl = 0.95
	require.NoError(t, eng.Create(context.Background(), exp))

	err := eng.Start(context.Background(), exp.ID)
	require.Error(t, err)
	pe, ok := pipeline.As(err)
	require.True(t, ok)
	require.Equal(t, pipeline.ValidationFailed, pe.Kind)
	require.Contains(t, pe.Message, "guard:similarity")
}

func TestStartFailsOnWeightSumGuard(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	exp := baseExperiment()
	exp.Variants[0].Weight = 0.5
	exp.Variants[1].Weight = 0.2
	require.NoError(t, eng.Create(context.Background(), exp))

	err := eng.Start(context.Background(), exp.ID)
	require.Error(t, err)
	pe, ok := pipeline.As(err)
	require.True(t, ok)
	require.Equal(t, pipeline.ValidationFailed, pe.Kind)
	require.Contains(t, pe.Message, "guard:weight_sum")
}

func TestStartRefusesNonDraft(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	exp := baseExperiment()
	require.NoError(t, eng.Create(context.Background(), exp))
	require.NoError(t, eng.Start(context.Background(), exp.ID))

	err := eng.Start(context.Background(), exp.ID)
	require.Error(t, err)
	require.True(t, pipeline.Is(err, pipeline.StateConflict))
}

func TestCompleteRequiresValidWinner(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	exp := baseExperiment()
	require.NoError(t, eng.Create(context.Background(), exp))
	require.NoError(t, eng.Start(context.Background(), exp.ID))

	err := eng.Complete(context.Background(), exp.ID, "nonexistent")
	require.Error(t, err)

	require.NoError(t, eng.Complete(context.Background(), exp.ID, "treatment"))
	got, err := repo.Get(context.Background(), exp.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, "treatment", got.WinnerVariantID)
}

func TestRecordMetricsIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	point := model.MetricPoint{ExperimentID: "exp-1", VariantID: "control", Date: "2026-01-01", Impressions: 100, Clicks: 10}
	require.NoError(t, eng.RecordMetrics(context.Background(), point))
	require.NoError(t, eng.RecordMetrics(context.Background(), point))

	impr, clicks, _, _, _, err := repo.AggregateMetrics(context.Background(), "exp-1", "control")
	require.NoError(t, err)
	require.Equal(t, int64(100), impr)
	require.Equal(t, int64(10), clicks)
}

func TestAnalyzeReturnsContinueOnInsufficientData(t *testing.T) {
	repo := newFakeRepo()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	eng := experiment.New(repo, clk, rng.New(1))

	exp := baseExperiment()
	require.NoError(t, eng.Create(context.Background(), exp))

	results, err := eng.Analyze(context.Background(), exp.ID, 1, 3, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "continue", string(results[0].Decision))
}
