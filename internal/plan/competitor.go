package plan

import (
	"context"
	"sort"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// CompetitorRow is a single competitor domain observed in a SERP for one
// of our clustered keywords.
type CompetitorRow struct {
	Domain   string `json:"domain"`
	Keyword  string `json:"keyword"`
	Position int    `json:"position"`
}

// CompetitorSource is the bounded SERP-analysis collaborator for phase
// 6 of the orchestrator.
type CompetitorSource interface {
	Name() string
	TopCompetitors(ctx context.Context, keyword, market string, topK int) ([]CompetitorRow, error)
}

// CompetitorSummary aggregates competitor appearances across clusters.
// Summaries are ranked by appearance count descending, then by domain
// ascending.
type CompetitorSummary struct {
	Domain          string
	Appearances     int
	BestPosition    int
	SampleKeywords  []string
}

func summarizeCompetitors(rows []CompetitorRow) []CompetitorSummary {
	byDomain := map[string]*CompetitorSummary{}
	var order []string
	for _, r := range rows {
		s, ok := byDomain[r.Domain]
		if !ok {
			s = &CompetitorSummary{Domain: r.Domain, BestPosition: r.Position}
			byDomain[r.Domain] = s
			order = append(order, r.Domain)
		}
		s.Appearances++
		if r.Position < s.BestPosition {
			s.BestPosition = r.Position
		}
		if len(s.SampleKeywords) < 5 && !containsString(s.SampleKeywords, r.Keyword) {
			s.SampleKeywords = append(s.SampleKeywords, r.Keyword)
		}
	}

	summaries := make([]CompetitorSummary, 0, len(order))
	for _, d := range order {
		summaries = append(summaries, *byDomain[d])
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Appearances != summaries[j].Appearances {
			return summaries[i].Appearances > summaries[j].Appearances
		}
		return summaries[i].Domain < summaries[j].Domain
	})
	return summaries
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// collectCompetitors runs bounded top-K SERP analysis over a cluster
// set: one competitor lookup per cluster per market, for the cluster's
// top primary keyword, each asking the source for at most topK rows, so
// total calls never exceed len(markets)·len(clusters).
func collectCompetitors(ctx context.Context, src CompetitorSource, clusters []model.Cluster, markets []string, topK int) ([]CompetitorRow, []string) {
	if src == nil || topK <= 0 {
		return nil, nil
	}

	var rows []CompetitorRow
	var warnings []string
	for _, cluster := range clusters {
		if len(cluster.PrimaryKeywords) == 0 {
			continue
		}
		keyword := cluster.PrimaryKeywords[0].Keyword
		for _, market := range markets {
			result, err := src.TopCompetitors(ctx, keyword, market, topK)
			if err != nil {
				warnings = append(warnings, "competitor analysis failed for "+keyword+" ("+market+"): "+err.Error())
				continue
			}
			rows = append(rows, result...)
		}
	}
	return rows, warnings
}
