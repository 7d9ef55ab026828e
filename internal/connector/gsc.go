package connector

import (
	"context"
	"fmt"

	"github.com/littlebearapps/adops-intel/internal/model"
)

// SearchConsoleClient is the minimal client contract GSCConnector needs:
// actual query/impression/click rows for the product's own properties,
// the second-highest-precedence source since it reflects real observed
// search behavior rather than a third-party volume estimate.
type SearchConsoleClient interface {
	QueryRows(ctx context.Context, market string) ([]SearchConsoleRow, error)
}

// SearchConsoleRow is one (query, market) observation from Search Console.
type SearchConsoleRow struct {
	Query       string
	Impressions int64
	Clicks      int64
	Position    float64
}

// GSCConnector derives keyword records from observed Search Console
// query data.
type GSCConnector struct {
	client SearchConsoleClient
}

// NewGSCConnector returns a connector backed by client.
func NewGSCConnector(client SearchConsoleClient) *GSCConnector {
	return &GSCConnector{client: client}
}

func (c *GSCConnector) Name() string             { return "gsc" }
func (c *GSCConnector) Source() model.DataSource { return model.SourceGSC }

// Fetch converts Search Console rows into KeywordRecords. Impressions
// stand in for volume; no CPC is observable from organic search data.
func (c *GSCConnector) Fetch(ctx context.Context, market string, _ []string) ([]model.KeywordRecord, error) {
	rows, err := c.client.QueryRows(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("gsc query: %w", err)
	}

	records := make([]model.KeywordRecord, 0, len(rows))
	for _, row := range rows {
		if row.Query == "" {
			continue
		}
		vol := row.Impressions
		var comp *float64
		if row.Position > 0 {
			c := clampPositionToCompetition(row.Position)
			comp = &c
		}
		records = append(records, model.KeywordRecord{
			Keyword:       row.Query,
			DataSource:    model.SourceGSC,
			Markets:       []string{market},
			PrimaryMarket: market,
			Volume:        &vol,
			Competition:   comp,
		})
	}
	return records, nil
}

// clampPositionToCompetition maps an average SERP position (1=best) to a
// rough [0,1] competition proxy: higher positions (worse ranking) imply
// a more contested query.
func clampPositionToCompetition(position float64) float64 {
	c := (position - 1) / 99
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// FakeSearchConsoleClient is a deterministic in-memory SearchConsoleClient.
type FakeSearchConsoleClient struct {
	Rows map[string][]SearchConsoleRow // keyed by market
}

// NewFakeSearchConsoleClient returns a fake seeded with rows.
func NewFakeSearchConsoleClient(rows map[string][]SearchConsoleRow) *FakeSearchConsoleClient {
	return &FakeSearchConsoleClient{Rows: rows}
}

func (f *FakeSearchConsoleClient) QueryRows(_ context.Context, market string) ([]SearchConsoleRow, error) {
	return f.Rows[market], nil
}
