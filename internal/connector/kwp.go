package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// KeywordDataSource is the minimal interface a real keyword-volume API
// client must satisfy to back KWPConnector. A production implementation
// issues HTTP calls the way pkg/runbook's GitHubClient does in the
// teacher repo (context-scoped http.Client, bearer auth, typed JSON
// response); this package ships the contract plus a deterministic fake
// used by tests and local plan runs without API credentials.
type KeywordDataSource interface {
	LookupVolumes(ctx context.Context, market string, terms []string) (map[string]VolumeStat, error)
}

// VolumeStat is one term's reported metrics from a keyword-volume API.
type VolumeStat struct {
	Volume      int64
	CPC         float64
	Competition float64
}

// KWPConnector fetches authoritative search-volume data, the
// highest-precedence source in C3's merge.
type KWPConnector struct {
	client KeywordDataSource
}

// NewKWPConnector returns a connector backed by client.
func NewKWPConnector(client KeywordDataSource) *KWPConnector {
	return &KWPConnector{client: client}
}

func (c *KWPConnector) Name() string             { return "kwp" }
func (c *KWPConnector) Source() model.DataSource { return model.SourceKWP }

// Fetch expands each seed into keyword candidates and looks up volume
// metrics from the underlying client.
func (c *KWPConnector) Fetch(ctx context.Context, market string, seeds []string) ([]model.KeywordRecord, error) {
	terms := expandSeeds(seeds)
	stats, err := c.client.LookupVolumes(ctx, market, terms)
	if err != nil {
		return nil, fmt.Errorf("kwp lookup: %w", err)
	}

	records := make([]model.KeywordRecord, 0, len(terms))
	for _, term := range terms {
		st, ok := stats[term]
		if !ok {
			continue
		}
		vol := st.Volume
		cpc := st.CPC
		comp := st.Competition
		records = append(records, model.KeywordRecord{
			Keyword:       term,
			DataSource:    model.SourceKWP,
			Markets:       []string{market},
			PrimaryMarket: market,
			Volume:        &vol,
			CPC:           &cpc,
			Competition:   &comp,
		})
	}
	return records, nil
}

// expandSeeds generates modifier variants of each seed query, the
// pattern a real keyword-planner integration would otherwise perform
// server-side.
func expandSeeds(seeds []string) []string {
	modifiers := []string{"", "free", "online", "download", "chrome extension", "for chrome"}
	seen := make(map[string]bool)
	var out []string
	for _, seed := range seeds {
		seed = strings.ToLower(strings.TrimSpace(seed))
		for _, m := range modifiers {
			term := seed
			if m != "" {
				term = seed + " " + m
			}
			if !seen[term] {
				seen[term] = true
				out = append(out, term)
			}
		}
	}
	return out
}

// FakeKeywordDataSource is a deterministic in-memory KeywordDataSource
// for tests and offline plan runs, keyed by exact term.
type FakeKeywordDataSource struct {
	Stats map[string]VolumeStat
}

// NewFakeKeywordDataSource returns a fake seeded with stats.
func NewFakeKeywordDataSource(stats map[string]VolumeStat) *FakeKeywordDataSource {
	return &FakeKeywordDataSource{Stats: stats}
}

func (f *FakeKeywordDataSource) LookupVolumes(_ context.Context, _ string, terms []string) (map[string]VolumeStat, error) {
	out := make(map[string]VolumeStat, len(terms))
	for _, t := range terms {
		if st, ok := f.Stats[t]; ok {
			out[t] = st
		}
	}
	return out, nil
}
