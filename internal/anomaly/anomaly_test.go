package anomaly_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/anomaly"
	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/model"
)

func TestThresholdRuleFlagsSpike(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := anomaly.New(clk, []anomaly.Rule{
		{ID: "cost-spike", Metric: "cost", Kind: anomaly.RuleThreshold, Severity: model.SeverityHigh, Type: model.AnomalyBudget, BaselinePeriod: 3, Multiplier: 2},
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		d.Ingest(model.TimeSeriesPoint{MetricKey: "cost", Timestamp: base.Add(time.Duration(i) * time.Hour), Value: 10})
	}
	flagged := d.Ingest(model.TimeSeriesPoint{MetricKey: "cost", Timestamp: base.Add(4 * time.Hour), Value: 50})
	require.Len(t, flagged, 1)
	require.Equal(t, model.SeverityHigh, flagged[0].Severity)
}

func TestStatisticalRuleRequiresMinimumPoints(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := anomaly.New(clk, []anomaly.Rule{
		{ID: "ctr-stat", Metric: "ctr", Kind: anomaly.RuleStatistical, Severity: model.SeverityMedium, WindowSize: 10, MinimumPoints: 5, K: 2},
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		flagged := d.Ingest(model.TimeSeriesPoint{MetricKey: "ctr", Timestamp: base.Add(time.Duration(i) * time.Hour), Value: 0.02})
		require.Empty(t, flagged)
	}
}

func TestCooldownSuppressesRepeatFlags(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := anomaly.New(clk, []anomaly.Rule{
		{ID: "cost-spike", Metric: "cost", Kind: anomaly.RuleThreshold, Severity: model.SeverityHigh, BaselinePeriod: 2, Multiplier: 2, Cooldown: time.Hour},
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.Ingest(model.TimeSeriesPoint{MetricKey: "cost", Timestamp: base, Value: 10})
	d.Ingest(model.TimeSeriesPoint{MetricKey: "cost", Timestamp: base.Add(time.Hour), Value: 10})

	first := d.Ingest(model.TimeSeriesPoint{MetricKey: "cost", Timestamp: base.Add(2 * time.Hour), Value: 100})
	require.Len(t, first, 1)

	second := d.Ingest(model.TimeSeriesPoint{MetricKey: "cost", Timestamp: base.Add(2*time.Hour + time.Minute), Value: 100})
	require.Empty(t, second)
}

func TestSortBySeverityDescOrdersMostSevereFirst(t *testing.T) {
	anomalies := []model.Anomaly{
		{Severity: model.SeverityLow},
		{Severity: model.SeverityCritical},
		{Severity: model.SeverityMedium},
	}
	anomaly.SortBySeverityDesc(anomalies)
	require.Equal(t, model.SeverityCritical, anomalies[0].Severity)
	require.Equal(t, model.SeverityLow, anomalies[2].Severity)
}
