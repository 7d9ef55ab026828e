// Package plan implements C6: the plan orchestrator that sequences
// connectors, the C2 cache/quota gate, C3 merge, C4 score, C5 cluster,
// bounded competitor SERP analysis, and artifact emission.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/littlebearapps/adops-intel/internal/cache"
	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/clustering"
	"github.com/littlebearapps/adops-intel/internal/config"
	"github.com/littlebearapps/adops-intel/internal/connector"
	"github.com/littlebearapps/adops-intel/internal/merge"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/scoring"
)

// CompetitorTopK bounds how many competitor rows are fetched per
// cluster per market.
const CompetitorTopK = 3

// Engine runs a single orchestrator pass for one product.
type Engine struct {
	product     config.ProductConfig
	connectors  []connector.Connector
	scoring     *scoring.Engine
	clustering  *clustering.Engine
	competitors CompetitorSource
	cache       *cache.Cache
	quota       *cache.QuotaLedger
	clk         clock.Clock
	log         *slog.Logger
}

// New returns an Engine wired to the given product config, connector
// set, scoring/clustering engines, an optional competitor source (nil
// disables phase 6), and the content cache/quota ledger the connectors
// were gated with (either may be nil, e.g. in tests that skip C2
// gating; the resulting summary fields are then left at zero).
func New(product config.ProductConfig, connectors []connector.Connector, scoringEngine *scoring.Engine, clusteringEngine *clustering.Engine, competitors CompetitorSource, contentCache *cache.Cache, quotaLedger *cache.QuotaLedger, clk clock.Clock, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		product:     product,
		connectors:  connectors,
		scoring:     scoringEngine,
		clustering:  clusteringEngine,
		competitors: competitors,
		cache:       contentCache,
		quota:       quotaLedger,
		clk:         clk,
		log:         log,
	}
}

// Run executes orchestrator phases 2 to 6 (collection, merge, scoring,
// clustering, competitor analysis) and returns the resulting Plan; config
// loading happens before New and artifact emission is Emit's. Any connector or competitor-analysis failure is degraded to a
// warning; the run only fails outright on a structural error (e.g. the
// product config has no seed queries at all).
func (e *Engine) Run(ctx context.Context) (*Plan, error) {
	start := e.clk.Now()
	var warnings []string

	if len(e.product.SeedQueries) == 0 {
		return nil, fmt.Errorf("product %q has no seed queries configured", e.product.Name)
	}

	// Phase 2: parallel data collection per market, one connector
	// fan-out per market, each connector already C2-gated by the caller
	// (internal/connector.Gated wraps cache+quota before reaching here).
	var allLists [][]model.KeywordRecord
	sourceTally := map[string]int{}
	for _, market := range e.product.Markets {
		results := connector.FetchAll(ctx, e.connectors, market, e.product.SeedQueries)
		for _, r := range results {
			if r.Err != nil {
				warnings = append(warnings, fmt.Sprintf("connector %s degraded for market %s: %v", r.ConnectorName, market, r.Err))
				continue
			}
			records := withMarket(r.Records, market)
			allLists = append(allLists, records)
			sourceTally[string(r.Source)] += len(records)
		}
	}

	// Phase 3: precedence merge.
	mergeResult := merge.Merge(allLists...)

	// Phase 4: score.
	scored := e.scoring.ScoreAll(mergeResult.Records)

	// Phase 5: cluster.
	clusters := e.clustering.Cluster(scored)

	// Phase 6: bounded competitor SERP analysis.
	competitorRows, competitorWarnings := collectCompetitors(ctx, e.competitors, clusters, e.product.Markets, CompetitorTopK)
	warnings = append(warnings, competitorWarnings...)
	competitorSummary := summarizeCompetitors(competitorRows)

	var serpCallsUsed int
	var cacheHitRate float64
	if e.quota != nil {
		serpCallsUsed = e.quota.TotalCalls()
	}
	if e.cache != nil {
		cacheHitRate = e.cache.OverallHitRate()
	}

	summary := model.PlanSummary{
		Product:          e.product.Name,
		Date:             e.clk.Now().Format("2006-01-02"),
		Markets:          append([]string(nil), e.product.Markets...),
		TotalKeywords:    len(scored),
		TotalAdGroups:    len(clusters),
		SERPCallsUsed:    serpCallsUsed,
		CacheHitRate:     cacheHitRate,
		DataSourceCounts: sourceTally,
		TopOpportunities: topOpportunities(scored, 10),
		GenerationTimeMS: e.clk.Now().Sub(start).Milliseconds(),
		Warnings:         warnings,
	}

	return &Plan{
		Summary:     summary,
		Keywords:    scored,
		Clusters:    clusters,
		Diagnostics: mergeResult.Diagnostics,
		Competitors: competitorSummary,
	}, nil
}

// Plan is the complete in-memory result of one orchestrator run, before
// artifact emission.
type Plan struct {
	Summary     model.PlanSummary
	Keywords    []model.KeywordRecord
	Clusters    []model.Cluster
	Diagnostics []merge.DuplicateDiagnostic
	Competitors []CompetitorSummary
}

func withMarket(records []model.KeywordRecord, market string) []model.KeywordRecord {
	out := make([]model.KeywordRecord, len(records))
	for i, r := range records {
		if r.PrimaryMarket == "" {
			r.PrimaryMarket = market
		}
		if len(r.Markets) == 0 {
			r.Markets = []string{market}
		}
		out[i] = r
	}
	return out
}

func topOpportunities(records []model.KeywordRecord, n int) []model.KeywordRecord {
	sorted := append([]model.KeywordRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FinalScore > sorted[j].FinalScore
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
