// Package anomaly implements C10: rule-based anomaly detection over a
// bounded ring of recent points per metric key.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/model"
)

// RuleKind identifies which detection family a Rule implements.
type RuleKind string

const (
	RuleThreshold   RuleKind = "THRESHOLD"
	RuleStatistical RuleKind = "STATISTICAL"
	RuleTrend       RuleKind = "TREND"
	RuleSeasonal    RuleKind = "SEASONAL"
)

// Rule configures one detection rule for a metric.
type Rule struct {
	ID       string
	Metric   string
	Kind     RuleKind
	Severity model.Severity
	Type     model.AnomalyType

	// THRESHOLD
	BaselinePeriod   int
	Multiplier       float64
	PctThreshold     float64 // alternative to Multiplier; 0 disables

	// STATISTICAL
	WindowSize    int
	MinimumPoints int
	K             float64

	// TREND
	TrendPeriod       int
	InflationThreshold float64 // fractional increase that triggers "up"
	MinimumDecline     float64 // fractional decrease that triggers "down"

	// SEASONAL
	Period             int
	SeasonalThreshold  float64

	// Cooldown suppresses repeat flags for this rule within the window.
	Cooldown time.Duration
}

// ringCapacity bounds how many points are retained per metric key.
const ringCapacity = 512

// causeLookup and recommendationLookup are static tables keyed by
// metric_key.
var causeLookup = map[string][]string{
	"ctr":        {"ad fatigue", "creative rotation stalled", "audience saturation"},
	"cvr":        {"landing page regression", "checkout friction", "pricing change"},
	"cost":       {"bid strategy shift", "competitor bid escalation", "budget misconfiguration"},
	"quality_score": {"landing page health decline", "ad relevance drop"},
}

var recommendationLookup = map[string][]string{
	"ctr":        {"refresh ad creative", "review audience targeting"},
	"cvr":        {"audit landing page funnel", "check for broken tracking"},
	"cost":       {"review bid caps", "check for click fraud"},
	"quality_score": {"improve landing page experience", "tighten keyword relevance"},
}

func lookup(table map[string][]string, metricKey string) []string {
	if v, ok := table[metricKey]; ok {
		return v
	}
	return []string{"no known cause catalogued"}
}

// Detector maintains per-metric rings and applies configured rules.
type Detector struct {
	clk   clock.Clock
	rules []Rule

	rings      map[string][]model.TimeSeriesPoint
	lastFlagAt map[string]time.Time // keyed by metric|rule|severity
}

// New returns a Detector applying rules to incoming points.
func New(clk clock.Clock, rules []Rule) *Detector {
	return &Detector{
		clk:        clk,
		rules:      rules,
		rings:      make(map[string][]model.TimeSeriesPoint),
		lastFlagAt: make(map[string]time.Time),
	}
}

// Ingest appends point to its metric's ring (dropping the oldest point
// past capacity) and evaluates every rule whose Metric matches,
// returning any new (non-cooldown-suppressed) anomalies.
func (d *Detector) Ingest(point model.TimeSeriesPoint) []model.Anomaly {
	ring := append(d.rings[point.MetricKey], point)
	if len(ring) > ringCapacity {
		ring = ring[len(ring)-ringCapacity:]
	}
	d.rings[point.MetricKey] = ring

	var flagged []model.Anomaly
	for _, rule := range d.rules {
		if rule.Metric != point.MetricKey {
			continue
		}
		anomaly, ok := d.evaluate(rule, point, ring)
		if !ok {
			continue
		}
		if d.inCooldown(rule, anomaly) {
			continue
		}
		d.recordFlag(rule, anomaly)
		flagged = append(flagged, anomaly)
	}
	return flagged
}

func (d *Detector) evaluate(rule Rule, point model.TimeSeriesPoint, ring []model.TimeSeriesPoint) (model.Anomaly, bool) {
	switch rule.Kind {
	case RuleThreshold:
		return d.evaluateThreshold(rule, point, ring)
	case RuleStatistical:
		return d.evaluateStatistical(rule, point, ring)
	case RuleTrend:
		return d.evaluateTrend(rule, point, ring)
	case RuleSeasonal:
		return d.evaluateSeasonal(rule, point, ring)
	default:
		return model.Anomaly{}, false
	}
}

func (d *Detector) evaluateThreshold(rule Rule, point model.TimeSeriesPoint, ring []model.TimeSeriesPoint) (model.Anomaly, bool) {
	window := lastN(ring, rule.BaselinePeriod+1)
	window = window[:len(window)-1] // exclude current point from baseline
	if len(window) == 0 {
		return model.Anomaly{}, false
	}
	baseline := mean(window)

	var threshold float64
	if rule.PctThreshold > 0 {
		threshold = baseline * (1 + rule.PctThreshold/100)
	} else {
		threshold = baseline * rule.Multiplier
	}

	if point.Value <= threshold {
		return model.Anomaly{}, false
	}

	deviation := 0.0
	if baseline != 0 {
		deviation = (point.Value - baseline) / baseline * 100
	}

	return d.newAnomaly(rule, point, baseline, threshold, deviation, 0.8), true
}

func (d *Detector) evaluateStatistical(rule Rule, point model.TimeSeriesPoint, ring []model.TimeSeriesPoint) (model.Anomaly, bool) {
	window := lastN(ring, rule.WindowSize+1)
	window = window[:len(window)-1]
	if len(window) < rule.MinimumPoints {
		return model.Anomaly{}, false
	}

	m := mean(window)
	sigma := stddev(window, m)
	if sigma == 0 {
		return model.Anomaly{}, false
	}

	z := math.Abs(point.Value-m) / sigma
	if z < rule.K {
		return model.Anomaly{}, false
	}

	confidence := clamp(0.5+z/10, 0, 0.95)
	a := d.newAnomaly(rule, point, m, m+rule.K*sigma, z*100, confidence)
	return a, true
}

func (d *Detector) evaluateTrend(rule Rule, point model.TimeSeriesPoint, ring []model.TimeSeriesPoint) (model.Anomaly, bool) {
	window := lastN(ring, rule.TrendPeriod)
	if len(window) < 2 {
		return model.Anomaly{}, false
	}

	slope := fitSlope(window)
	first := window[0].Value
	if first == 0 {
		return model.Anomaly{}, false
	}
	pctChange := slope * float64(len(window)-1) / first

	if pctChange > rule.InflationThreshold {
		return d.newAnomaly(rule, point, first, first*(1+rule.InflationThreshold), pctChange*100, 0.7), true
	}
	if pctChange < -rule.MinimumDecline {
		return d.newAnomaly(rule, point, first, first*(1-rule.MinimumDecline), pctChange*100, 0.7), true
	}
	return model.Anomaly{}, false
}

func (d *Detector) evaluateSeasonal(rule Rule, point model.TimeSeriesPoint, ring []model.TimeSeriesPoint) (model.Anomaly, bool) {
	if rule.Period <= 0 || len(ring) <= rule.Period {
		return model.Anomaly{}, false
	}

	var samePhase []float64
	for i := len(ring) - 1 - rule.Period; i >= 0; i -= rule.Period {
		samePhase = append(samePhase, ring[i].Value)
	}
	if len(samePhase) == 0 {
		return model.Anomaly{}, false
	}

	var sum float64
	for _, v := range samePhase {
		sum += v
	}
	expected := sum / float64(len(samePhase))
	if expected == 0 {
		return model.Anomaly{}, false
	}

	deviation := (point.Value - expected) / expected
	if math.Abs(deviation) <= rule.SeasonalThreshold {
		return model.Anomaly{}, false
	}

	return d.newAnomaly(rule, point, expected, expected*(1+rule.SeasonalThreshold), deviation*100, 0.75), true
}

func (d *Detector) newAnomaly(rule Rule, point model.TimeSeriesPoint, expected, threshold, deviation, confidence float64) model.Anomaly {
	return model.Anomaly{
		ID:              fmt.Sprintf("%s-%s-%d", point.MetricKey, rule.ID, point.Timestamp.UnixNano()),
		MetricKey:       point.MetricKey,
		RuleID:          rule.ID,
		Type:            rule.Type,
		Severity:        rule.Severity,
		Observed:        point.Value,
		Expected:        expected,
		Threshold:       threshold,
		Deviation:       deviation,
		Confidence:      confidence,
		PossibleCauses:  lookup(causeLookup, point.MetricKey),
		Recommendations: lookup(recommendationLookup, point.MetricKey),
		DetectedAt:      d.clk.Now(),
	}
}

func (d *Detector) inCooldown(rule Rule, a model.Anomaly) bool {
	if rule.Cooldown <= 0 {
		return false
	}
	key := dedupKey(a)
	last, ok := d.lastFlagAt[key]
	if !ok {
		return false
	}
	return d.clk.Now().Sub(last) < rule.Cooldown
}

func (d *Detector) recordFlag(rule Rule, a model.Anomaly) {
	if rule.Cooldown <= 0 {
		return
	}
	d.lastFlagAt[dedupKey(a)] = d.clk.Now()
}

func dedupKey(a model.Anomaly) string {
	return a.MetricKey + "|" + a.RuleID + "|" + string(a.Severity)
}

func lastN(points []model.TimeSeriesPoint, n int) []model.TimeSeriesPoint {
	if n <= 0 || n > len(points) {
		return append([]model.TimeSeriesPoint(nil), points...)
	}
	return append([]model.TimeSeriesPoint(nil), points[len(points)-n:]...)
}

func mean(points []model.TimeSeriesPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}

func stddev(points []model.TimeSeriesPoint, m float64) float64 {
	if len(points) == 0 {
		return 0
	}
	var sumSq float64
	for _, p := range points {
		d := p.Value - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(points)))
}

// fitSlope fits a simple linear regression slope over points indexed
// 0..n-1, returning the per-step change in value.
func fitSlope(points []model.TimeSeriesPoint) float64 {
	n := float64(len(points))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SortBySeverityDesc orders anomalies most-severe first, for callers
// presenting a flagged batch to an operator.
func SortBySeverityDesc(anomalies []model.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		return !anomalies[j].Severity.AtLeast(anomalies[i].Severity)
	})
}
