// Package experiment implements C9: the experiment lifecycle state
// machine, idempotent metric recording, and analysis via the
// statistical engine.
package experiment

import (
	"context"
	"math"
	"sync"

	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
	"github.com/littlebearapps/adops-intel/internal/rng"
	"github.com/littlebearapps/adops-intel/internal/stats"
)

// Repository is the storage seam the engine depends on.
type Repository interface {
	Create(ctx context.Context, e *model.Experiment) error
	Get(ctx context.Context, id string) (*model.Experiment, error)
	UpdateStatus(ctx context.Context, e *model.Experiment, transition string) error
	UpsertMetric(ctx context.Context, m model.MetricPoint) error
	AggregateMetrics(ctx context.Context, experimentID, variantID string) (impressions, clicks, conversions int64, cost, convValue float64, err error)
}

// Engine drives experiment transitions. Concurrent mutation of the same
// experiment is serialized via a per-ID lock.
type Engine struct {
	repo Repository
	clk  clock.Clock
	src  rng.Source

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an Engine backed by repo.
func New(repo Repository, clk clock.Clock, src rng.Source) *Engine {
	return &Engine{repo: repo, clk: clk, src: src, locks: make(map[string]*sync.Mutex)}
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Create persists a new draft experiment.
func (e *Engine) Create(ctx context.Context, exp *model.Experiment) error {
	exp.Status = model.StatusDraft
	exp.CreatedAt = e.clk.Now()
	exp.UpdatedAt = e.clk.Now()
	return e.repo.Create(ctx, exp)
}

// Start transitions draft→active after evaluating the configured
// guards. Any failing critical guard refuses the transition with a
// named invariant violation (e.g. "guard:similarity").
func (e *Engine) Start(ctx context.Context, id string) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	exp, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if exp.Status != model.StatusDraft {
		return pipeline.New(pipeline.StateConflict, "start requires draft status", "transition", "draft->active", "current", exp.Status)
	}

	if violation := evaluateGuards(exp); violation != "" {
		return pipeline.Invariant(violation, "experiment_id", id)
	}

	now := e.clk.Now()
	exp.Status = model.StatusActive
	exp.StartAt = &now
	exp.UpdatedAt = now
	return e.repo.UpdateStatus(ctx, exp, "draft->active")
}

// evaluateGuards checks the configuration-time promotion guards and
// returns the name of the first failing guard, or "" if all pass.
func evaluateGuards(exp *model.Experiment) string {
	if exp.Guards.MinSampleSize <= 0 || exp.MinSampleSize < exp.Guards.MinSampleSize {
		return "guard:min_sample_size"
	}
	if exp.Guards.MinDurationHours <= 0 {
		return "guard:min_duration"
	}
	if exp.Guards.DailySpendCeiling <= 0 {
		return "guard:daily_spend_ceiling"
	}
	for _, v := range exp.Variants {
		if v.IsControl {
			continue
		}
		if v.SimilarityToControl > exp.Guards.SimilarityThreshold {
			return "guard:similarity"
		}
	}
	if _, ok := exp.ControlVariant(); !ok {
		return "guard:control_variant_required"
	}
	if len(exp.Variants) < 2 {
		return "guard:min_variant_count"
	}
	if math.Abs(exp.WeightSum()-1) > 0.01 {
		return "guard:weight_sum"
	}
	return ""
}

// Pause transitions active→paused.
func (e *Engine) Pause(ctx context.Context, id string) error {
	return e.transition(ctx, id, model.StatusActive, model.StatusPaused, "active->paused", func(exp *model.Experiment) {})
}

// Resume transitions paused→active.
func (e *Engine) Resume(ctx context.Context, id string) error {
	return e.transitionFromAny(ctx, id, []model.ExperimentStatus{model.StatusPaused}, model.StatusActive, "paused->active", func(exp *model.Experiment) {})
}

// Abort transitions {active|paused}→aborted.
func (e *Engine) Abort(ctx context.Context, id string) error {
	return e.transitionFromAny(ctx, id, []model.ExperimentStatus{model.StatusActive, model.StatusPaused}, model.StatusAborted, "->aborted", func(exp *model.Experiment) {})
}

// Complete transitions active→completed, requiring a winner that names
// an existing variant's id/name or the reserved string "control".
func (e *Engine) Complete(ctx context.Context, id, winner string) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	exp, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if exp.Status != model.StatusActive {
		return pipeline.New(pipeline.StateConflict, "complete requires active status", "transition", "active->completed", "current", exp.Status)
	}

	if !validWinner(exp, winner) {
		return pipeline.Invariant("transition:active->completed", "reason", "winner must match a variant id/name or 'control'", "winner", winner)
	}

	now := e.clk.Now()
	exp.Status = model.StatusCompleted
	exp.EndAt = &now
	exp.UpdatedAt = now
	exp.WinnerVariantID = winner
	return e.repo.UpdateStatus(ctx, exp, "active->completed")
}

func validWinner(exp *model.Experiment, winner string) bool {
	if winner == "control" {
		return true
	}
	for _, v := range exp.Variants {
		if v.ID == winner || v.Name == winner {
			return true
		}
	}
	return false
}

func (e *Engine) transition(ctx context.Context, id string, from, to model.ExperimentStatus, label string, mutate func(*model.Experiment)) error {
	return e.transitionFromAny(ctx, id, []model.ExperimentStatus{from}, to, label, mutate)
}

func (e *Engine) transitionFromAny(ctx context.Context, id string, from []model.ExperimentStatus, to model.ExperimentStatus, label string, mutate func(*model.Experiment)) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	exp, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	ok := false
	for _, f := range from {
		if exp.Status == f {
			ok = true
			break
		}
	}
	if !ok {
		return pipeline.New(pipeline.StateConflict, "invalid transition", "transition", label, "current", exp.Status)
	}

	exp.Status = to
	exp.UpdatedAt = e.clk.Now()
	mutate(exp)
	return e.repo.UpdateStatus(ctx, exp, label)
}

// RecordMetrics idempotently upserts one day's aggregated counts for a
// variant, per (experiment, variant, date).
func (e *Engine) RecordMetrics(ctx context.Context, point model.MetricPoint) error {
	return e.repo.UpsertMetric(ctx, point)
}

// AnalysisResult bundles frequentist and Bayesian comparisons of a
// variant against the experiment's control, plus a sequential decision.
type AnalysisResult struct {
	VariantID    string
	ZTest        stats.ZTestResult
	Bayesian     stats.BayesianResult
	Decision     stats.SequentialDecision
}

// Analyze aggregates metrics for every non-control variant against the
// control and invokes C8.
func (e *Engine) Analyze(ctx context.Context, id string, peek, plannedPeeks int, futilityFloor float64) ([]AnalysisResult, error) {
	exp, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	control, ok := exp.ControlVariant()
	if !ok {
		return nil, pipeline.Invariant("guard:control_variant_required", "experiment_id", id)
	}

	_, controlClicks, controlConv, _, _, err := e.repo.AggregateMetrics(ctx, id, control.ID)
	if err != nil {
		return nil, err
	}

	var results []AnalysisResult
	for _, v := range exp.Variants {
		if v.IsControl {
			continue
		}
		_, variantClicks, variantConv, _, _, err := e.repo.AggregateMetrics(ctx, id, v.ID)
		if err != nil {
			return nil, err
		}

		zResult, zErr := stats.TwoProportionZTest(controlConv, controlClicks, variantConv, variantClicks, true)
		if zErr != nil && !pipeline.Is(zErr, pipeline.StatisticalInsufficientData) {
			return nil, zErr
		}

		bayes, bErr := stats.BayesianCompare(e.src, controlConv, controlClicks, variantConv, variantClicks, 10000)
		if bErr != nil && !pipeline.Is(bErr, pipeline.StatisticalInsufficientData) {
			return nil, bErr
		}

		decision := stats.DecisionContinue
		if zErr == nil {
			decision = stats.SequentialBoundary(zResult.Z, bayes.ProbabilityVariantBeatsControl, futilityFloor, peek, plannedPeeks)
		}

		results = append(results, AnalysisResult{
			VariantID: v.ID,
			ZTest:     zResult,
			Bayesian:  bayes,
			Decision:  decision,
		})
	}
	return results, nil
}
