package plan_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/cache"
	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/clustering"
	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/connector"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/plan"
	"github.com/littlebearapps/adops-intel/internal/scoring"
)

func testProduct() config.ProductConfig {
	return config.ProductConfig{
		Name:        "webp-converter",
		Markets:     []string{"US"},
		SeedQueries: []string{"webp converter"},
		TargetPages: []config.TargetPage{
			{URL: "/convert", Purpose: "conversion", UseCase: "webp"},
		},
	}
}

func newTestEngine(competitors plan.CompetitorSource) *plan.Engine {
	product := testProduct()
	clk := clock.NewFixed(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	contentCache := cache.New(clk, nil)
	quotaLedger := cache.NewQuotaLedger(clk, nil, map[string]int{"estimated": 1000})
	connectors := []connector.Connector{connector.NewGated(connector.NewEstimatedConnector(), contentCache, quotaLedger, 24*time.Hour, nil)}
	scoringEngine := scoring.New(
		config.DefaultScoringWeights(),
		config.DefaultIntentDictionaries(),
		config.DefaultSERPFeatureWeights(),
		config.DefaultSourcePenalties(),
	)
	clusteringEngine := clustering.New(product)
	return plan.New(product, connectors, scoringEngine, clusteringEngine, competitors, contentCache, quotaLedger, clk, nil)
}

func TestRunProducesScoredClusteredPlan(t *testing.T) {
	eng := newTestEngine(nil)
	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Keywords)
	require.NotEmpty(t, result.Clusters)
	require.Equal(t, "webp-converter", result.Summary.Product)
	require.Equal(t, "2026-01-15", result.Summary.Date)
	require.Equal(t, len(result.Keywords), result.Summary.TotalKeywords)
}

func TestRunPopulatesCacheAndQuotaSummaryFields(t *testing.T) {
	eng := newTestEngine(nil)
	first, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Summary.SERPCallsUsed)
	require.Equal(t, 0.0, first.Summary.CacheHitRate)

	second, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, second.Summary.SERPCallsUsed)
	require.Greater(t, second.Summary.CacheHitRate, 0.0)
}

func TestRunFailsWithoutSeedQueries(t *testing.T) {
	product := testProduct()
	product.SeedQueries = nil
	clk := clock.NewFixed(time.Now())
	eng := plan.New(product, nil, scoring.New(config.DefaultScoringWeights(), config.DefaultIntentDictionaries(), config.DefaultSERPFeatureWeights(), config.DefaultSourcePenalties()), clustering.New(product), nil, nil, nil, clk, nil)
	_, err := eng.Run(context.Background())
	require.Error(t, err)
}

type fakeCompetitorSource struct{}

func (fakeCompetitorSource) Name() string { return "fake-serp" }

func (fakeCompetitorSource) TopCompetitors(_ context.Context, keyword, market string, topK int) ([]plan.CompetitorRow, error) {
	return []plan.CompetitorRow{
		{Domain: "rival.com", Keyword: keyword, Position: 1},
		{Domain: "other.com", Keyword: keyword, Position: 2},
	}, nil
}

func TestRunCollectsCompetitorsWhenSourceProvided(t *testing.T) {
	eng := newTestEngine(fakeCompetitorSource{})
	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Competitors)
	require.Equal(t, "rival.com", result.Competitors[0].Domain)
}

func TestEmitWritesAllArtifactsAtomically(t *testing.T) {
	eng := newTestEngine(nil)
	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	claims := plan.ClaimsValidationReport{GeneratedAt: "2026-01-15", Campaigns: []plan.ClaimsValidationEntry{
		{Campaign: "c1", Fresh: true},
	}}
	err = plan.Emit(dir, result, nil, claims)
	require.NoError(t, err)

	for _, name := range []string{
		plan.FileKeywords, plan.FileAds, plan.FileSEOPages, plan.FileCompetitors,
		plan.FileNegatives, plan.FileGoogleAdsScript, plan.FileSummary, plan.FileClaimsValidation,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoErrorf(t, err, "expected %s to exist", name)
		require.NotEmpty(t, data)
	}

	_, err = os.Stat(filepath.Join(dir, plan.FileDiff))
	require.True(t, os.IsNotExist(err), "diff.json should be omitted when no previous run is given")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, len(e.Name()) >= 5 && e.Name()[:5] == ".tmp-", "no temp file should remain: %s", e.Name())
	}

	var summary model.PlanSummary
	b, err := os.ReadFile(filepath.Join(dir, plan.FileSummary))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &summary))
	require.Equal(t, "webp-converter", summary.Product)
}

func TestEmitWritesDiffWhenPreviousRunProvided(t *testing.T) {
	eng := newTestEngine(nil)
	first, err := eng.Run(context.Background())
	require.NoError(t, err)
	second, err := eng.Run(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	err = plan.Emit(dir, second, first, plan.ClaimsValidationReport{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, plan.FileDiff))
	require.NoError(t, err)

	var diff plan.Diff
	require.NoError(t, json.Unmarshal(data, &diff))
	require.Empty(t, diff.Added)
	require.Empty(t, diff.Removed)
	require.Empty(t, diff.Rescored)
}

func TestBuildDiffDetectsAddedRemovedAndRescored(t *testing.T) {
	vol := int64(100)
	previous := &plan.Plan{Keywords: []model.KeywordRecord{
		{Keyword: "a", PrimaryMarket: "US", FinalScore: 0.5, Volume: &vol},
		{Keyword: "b", PrimaryMarket: "US", FinalScore: 0.4, Volume: &vol},
	}}
	current := &plan.Plan{Keywords: []model.KeywordRecord{
		{Keyword: "a", PrimaryMarket: "US", FinalScore: 0.6, Volume: &vol},
		{Keyword: "c", PrimaryMarket: "US", FinalScore: 0.3, Volume: &vol},
	}}

	diff := plan.BuildDiff(previous, current)
	require.Len(t, diff.Added, 1)
	require.Equal(t, "c", diff.Added[0].Keyword)
	require.Len(t, diff.Removed, 1)
	require.Equal(t, "b", diff.Removed[0].Keyword)
	require.Len(t, diff.Rescored, 1)
	require.Equal(t, "a", diff.Rescored[0].Keyword)
	require.Equal(t, 0.5, diff.Rescored[0].PreviousScore)
	require.Equal(t, 0.6, diff.Rescored[0].CurrentScore)
}
