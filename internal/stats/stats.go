// Package stats implements C8: the statistical engine used by the
// experiment engine's analyze operation. Every
// probabilistic component consumes an injected rng.Source; there is no
// hidden global randomness.
package stats

import (
	"math"

	"github.com/littlebearapps/adops-intel/internal/pipeline"
	"github.com/littlebearapps/adops-intel/internal/rng"
)

// ZTestResult is the output of a two-proportion z-test.
type ZTestResult struct {
	Z        float64
	PValue   float64
	CILow    float64
	CIHigh   float64
	Lift     float64
}

// TwoProportionZTest compares a control arm (successesA/trialsA) against
// a treatment arm (successesB/trialsB), with optional continuity
// correction. Returns StatisticalInsufficientData if either arm has
// zero trials.
func TwoProportionZTest(successesA, trialsA, successesB, trialsB int64, continuityCorrection bool) (ZTestResult, error) {
	if trialsA <= 0 || trialsB <= 0 {
		return ZTestResult{}, pipeline.New(pipeline.StatisticalInsufficientData, "zero trials in one or both arms")
	}

	pA := float64(successesA) / float64(trialsA)
	pB := float64(successesB) / float64(trialsB)
	pPool := float64(successesA+successesB) / float64(trialsA+trialsB)

	se := math.Sqrt(pPool * (1 - pPool) * (1/float64(trialsA) + 1/float64(trialsB)))
	if se == 0 {
		// Both arms have zero successes (or both all-successes): the
		// pooled proportion is 0 or 1, so there is no detectable
		// difference rather than insufficient data.
		return ZTestResult{Z: 0, PValue: 1, Lift: 0, CILow: 0, CIHigh: 0}, nil
	}

	diff := pB - pA
	if continuityCorrection {
		cc := 0.5 * (1/float64(trialsA) + 1/float64(trialsB))
		if diff > 0 {
			diff -= cc
		} else if diff < 0 {
			diff += cc
		}
	}

	z := diff / se
	p := 2 * (1 - standardNormalCDF(math.Abs(z)))

	seUnpooled := math.Sqrt(pA*(1-pA)/float64(trialsA) + pB*(1-pB)/float64(trialsB))
	margin := 1.96 * seUnpooled
	rawLift := pB - pA

	return ZTestResult{
		Z:      z,
		PValue: p,
		CILow:  rawLift - margin,
		CIHigh: rawLift + margin,
		Lift:   rawLift,
	}, nil
}

// standardNormalCDF evaluates the standard normal CDF via math.Erf.
func standardNormalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// BayesianResult is the output of the Bayesian Beta/Beta comparison.
type BayesianResult struct {
	ProbabilityVariantBeatsControl float64
	ExpectedLift                   float64
	CredibleIntervalLow            float64
	CredibleIntervalHigh           float64
}

// BayesianCompare computes P(variant > control) via Monte Carlo sampling
// from Beta(1+successes, 1+failures) posteriors, using src for every
// random draw. samples defaults to 10000 when <= 0.
func BayesianCompare(src rng.Source, successesControl, trialsControl, successesVariant, trialsVariant int64, samples int) (BayesianResult, error) {
	if trialsControl <= 0 || trialsVariant <= 0 {
		return BayesianResult{}, pipeline.New(pipeline.StatisticalInsufficientData, "zero trials in one or both arms")
	}
	if samples <= 0 {
		samples = 10000
	}

	alphaControl := 1 + float64(successesControl)
	betaControl := 1 + float64(trialsControl-successesControl)
	alphaVariant := 1 + float64(successesVariant)
	betaVariant := 1 + float64(trialsVariant-successesVariant)

	lifts := make([]float64, samples)
	wins := 0
	for i := 0; i < samples; i++ {
		pc := src.Beta(alphaControl, betaControl)
		pv := src.Beta(alphaVariant, betaVariant)
		if pv > pc {
			wins++
		}
		lifts[i] = pv - pc
	}

	sortFloats(lifts)
	lowIdx := int(0.025 * float64(samples))
	highIdx := int(0.975 * float64(samples))
	if highIdx >= samples {
		highIdx = samples - 1
	}

	var sum float64
	for _, l := range lifts {
		sum += l
	}

	return BayesianResult{
		ProbabilityVariantBeatsControl: float64(wins) / float64(samples),
		ExpectedLift:                   sum / float64(samples),
		CredibleIntervalLow:            lifts[lowIdx],
		CredibleIntervalHigh:           lifts[highIdx],
	}, nil
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}

// zTable holds standard normal quantiles for common significance/power
// levels; SampleSize takes zAlpha/zBeta directly, so callers needing
// other values pass them there.
var zTable = map[float64]float64{
	0.80: 0.8416,
	0.90: 1.2816,
	0.95: 1.6449,
	0.975: 1.9600,
	0.99: 2.3263,
}

// ZFor returns the standard normal quantile for the given
// significance/power level (0.95 gives 1.6449, 0.975 gives 1.96),
// falling back to the 0.95 entry if unknown.
func ZFor(level float64) float64 {
	if z, ok := zTable[level]; ok {
		return z
	}
	return zTable[0.95]
}

// SampleSize computes the per-arm sample size required to detect a
// difference of delta between baseline rate p and alternate rate pPrime,
// at significance zAlpha and power zBeta.
func SampleSize(zAlpha, zBeta, p, pPrime float64) int64 {
	delta := pPrime - p
	if delta == 0 {
		return 0
	}
	numerator := math.Pow(zAlpha+zBeta, 2) * (p*(1-p) + pPrime*(1-pPrime))
	n := numerator / (delta * delta)
	return int64(math.Ceil(n))
}

// SequentialDecision is the outcome of an O'Brien-Fleming-style peek.
type SequentialDecision string

const (
	DecisionContinue     SequentialDecision = "continue"
	DecisionStopSuccess  SequentialDecision = "stop_success"
	DecisionStopFutility SequentialDecision = "stop_futility"
)

// SequentialBoundary evaluates an O'Brien-Fleming alpha-spending
// approximation at peek k of plannedPeeks, given the current z-statistic
// and the futility floor (probability-to-reach-significance threshold).
// The classic O'Brien-Fleming boundary tightens as sqrt(plannedPeeks/k),
// using the final-analysis critical value as its base.
func SequentialBoundary(z float64, probabilityToSignificance, futilityFloor float64, peek, plannedPeeks int) SequentialDecision {
	if peek <= 0 {
		peek = 1
	}
	if plannedPeeks <= 0 {
		plannedPeeks = 1
	}

	finalCritical := ZFor(0.95)
	boundary := finalCritical * math.Sqrt(float64(plannedPeeks)/float64(peek))

	if math.Abs(z) >= boundary {
		return DecisionStopSuccess
	}
	if probabilityToSignificance < futilityFloor {
		return DecisionStopFutility
	}
	return DecisionContinue
}

// ThompsonAllocation draws one sample per arm from its Beta posterior
// and returns the index of the arm with the highest sampled value in
// this single draw (-1 when arms is empty).
// Callers average many draws (or call AllocationProbabilities) to
// obtain stable empirical win frequencies.
func ThompsonAllocation(src rng.Source, arms []BetaPosterior) int {
	best := -1
	bestVal := -1.0
	for i, arm := range arms {
		v := src.Beta(arm.Alpha, arm.Beta)
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}

// BetaPosterior is one arm's Beta(alpha, beta) posterior.
type BetaPosterior struct {
	Alpha float64
	Beta  float64
}

// AllocationProbabilities runs draws samples of ThompsonAllocation and
// returns each arm's empirical win frequency, summing to 1.0.
func AllocationProbabilities(src rng.Source, arms []BetaPosterior, draws int) []float64 {
	if draws <= 0 {
		draws = 10000
	}
	wins := make([]int, len(arms))
	for i := 0; i < draws; i++ {
		wins[ThompsonAllocation(src, arms)]++
	}
	probs := make([]float64, len(arms))
	for i, w := range wins {
		probs[i] = float64(w) / float64(draws)
	}
	return probs
}

// BonferroniAdjust multiplies each p-value by len(pValues), clamping to
// 1.0, implementing the Bonferroni multiple-comparison correction.
func BonferroniAdjust(pValues []float64) []float64 {
	n := float64(len(pValues))
	adjusted := make([]float64, len(pValues))
	for i, p := range pValues {
		adj := p * n
		if adj > 1 {
			adj = 1
		}
		adjusted[i] = adj
	}
	return adjusted
}
