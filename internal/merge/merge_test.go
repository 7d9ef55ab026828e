package merge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/merge"
	"github.com/littlebearapps/adops-intel/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestMergePrefersKWPAndBackfillsAbsentFields(t *testing.T) {
	kwp := []model.KeywordRecord{
		{Keyword: "color picker", PrimaryMarket: "US", Markets: []string{"US"}, DataSource: model.SourceKWP, Volume: ptr(int64(1200)), CPC: ptr(0.80)},
	}
	estimated := []model.KeywordRecord{
		{Keyword: "color picker", PrimaryMarket: "US", Markets: []string{"US"}, DataSource: model.SourceEstimated, Volume: ptr(int64(2000)), Competition: ptr(0.4)},
	}

	result := merge.Merge(kwp, estimated)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	require.Equal(t, model.SourceKWP, rec.DataSource)
	require.Equal(t, int64(1200), *rec.Volume)
	require.Equal(t, 0.80, *rec.CPC)
	require.Equal(t, 0.4, *rec.Competition)
	require.Equal(t, 1, result.DuplicatesResolved)
	require.Len(t, result.Diagnostics, 1)
	require.Equal(t, "KWP", result.Diagnostics[0].WinningSource)
	require.Contains(t, result.Diagnostics[0].FilledFrom, "ESTIMATED")
}

func TestMergeKeepsDistinctKeysByMarket(t *testing.T) {
	us := []model.KeywordRecord{{Keyword: "color picker", PrimaryMarket: "US", Markets: []string{"US"}, DataSource: model.SourceKWP}}
	gb := []model.KeywordRecord{{Keyword: "color picker", PrimaryMarket: "GB", Markets: []string{"GB"}, DataSource: model.SourceKWP}}

	result := merge.Merge(us, gb)
	require.Len(t, result.Records, 2)
	require.Equal(t, 0, result.DuplicatesResolved)
}

func TestMergeSourceCounts(t *testing.T) {
	kwp := []model.KeywordRecord{
		{Keyword: "a", PrimaryMarket: "US", DataSource: model.SourceKWP},
		{Keyword: "b", PrimaryMarket: "US", DataSource: model.SourceKWP},
	}
	gsc := []model.KeywordRecord{{Keyword: "c", PrimaryMarket: "US", DataSource: model.SourceGSC}}

	result := merge.Merge(kwp, gsc)
	require.Equal(t, 2, result.SourceCounts[model.SourceKWP])
	require.Equal(t, 1, result.SourceCounts[model.SourceGSC])
}
