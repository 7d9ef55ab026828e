package connector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/cache"
	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/connector"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

func TestKWPConnectorFetch(t *testing.T) {
	fake := connector.NewFakeKeywordDataSource(map[string]connector.VolumeStat{
		"color picker": {Volume: 1200, CPC: 0.8, Competition: 0.4},
	})
	c := connector.NewKWPConnector(fake)

	records, err := c.Fetch(context.Background(), "US", []string{"color picker"})
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var found bool
	for _, r := range records {
		if r.Keyword == "color picker" {
			found = true
			require.Equal(t, model.SourceKWP, r.DataSource)
			require.Equal(t, int64(1200), *r.Volume)
		}
	}
	require.True(t, found)
}

func TestEstimatedConnectorNeverErrors(t *testing.T) {
	c := connector.NewEstimatedConnector()
	records, err := c.Fetch(context.Background(), "US", []string{"webp to png chrome extension"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, model.SourceEstimated, records[0].DataSource)
}

type failingConnector struct{}

func (failingConnector) Name() string             { return "broken" }
func (failingConnector) Source() model.DataSource { return model.SourceEstimated }
func (failingConnector) Fetch(context.Context, string, []string) ([]model.KeywordRecord, error) {
	return nil, errors.New("upstream unavailable")
}

func TestFetchAllIsolatesConnectorFailures(t *testing.T) {
	good := connector.NewEstimatedConnector()
	results := connector.FetchAll(context.Background(), []connector.Connector{good, failingConnector{}}, "US", []string{"seed"})

	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.NotEmpty(t, results[0].Records)
	require.Error(t, results[1].Err)
}

func TestGatedConnectorRespectsQuota(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := cache.New(clk, nil)
	quota := cache.NewQuotaLedger(clk, nil, map[string]int{"estimated": 0})

	g := connector.NewGated(connector.NewEstimatedConnector(), c, quota, time.Hour, nil)
	_, err := g.Fetch(context.Background(), "US", []string{"seed"})
	require.Error(t, err)
	pe, ok := pipeline.As(err)
	require.True(t, ok)
	require.Equal(t, pipeline.QuotaExhausted, pe.Kind)
}

func TestGatedConnectorServesFromCacheWithoutCallingQuota(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := cache.New(clk, nil)
	quota := cache.NewQuotaLedger(clk, nil, map[string]int{"estimated": 1})

	g := connector.NewGated(connector.NewEstimatedConnector(), c, quota, time.Hour, nil)
	first, err := g.Fetch(context.Background(), "US", []string{"seed"})
	require.NoError(t, err)

	second, err := g.Fetch(context.Background(), "US", []string{"seed"})
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))

	ok, err := quota.CanCall(context.Background(), "estimated")
	require.NoError(t, err)
	require.False(t, ok)
}
