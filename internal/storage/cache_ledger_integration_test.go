package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/littlebearapps/adops-intel/internal/storage"
	"github.com/littlebearapps/adops-intel/test/testdb"
)

func TestCacheLedgerRepositoryPutThenGetRoundTrips(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := storage.NewCacheLedgerRepository(client.DB())
	ctx := context.Background()

	_, ok := repo.Get(ctx, "missing-key")
	require.False(t, ok)

	require.NoError(t, repo.Put(ctx, "key-1", "kwp", []byte(`{"volume":100}`), time.Now().Add(time.Hour)))

	value, ok := repo.Get(ctx, "key-1")
	require.True(t, ok)
	require.JSONEq(t, `{"volume":100}`, string(value))
}

func TestCacheLedgerRepositoryGetMissesExpiredEntries(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := storage.NewCacheLedgerRepository(client.DB())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "key-2", "kwp", []byte(`{}`), time.Now().Add(-time.Minute)))

	_, ok := repo.Get(ctx, "key-2")
	require.False(t, ok)
}

func TestCacheLedgerRepositoryCanCallEnforcesDailyCeiling(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := storage.NewCacheLedgerRepository(client.DB())
	ctx := context.Background()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, calls, err := repo.CanCall(ctx, "kwp", day, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, calls)

	require.NoError(t, repo.RecordCall(ctx, "kwp", day))
	require.NoError(t, repo.RecordCall(ctx, "kwp", day))

	ok, calls, err = repo.CanCall(ctx, "kwp", day, 2)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, calls)
}

func TestCacheLedgerRepositoryCountsResetAcrossDayBoundary(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := storage.NewCacheLedgerRepository(client.DB())
	ctx := context.Background()
	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordCall(ctx, "kwp", day1))

	ok, calls, err := repo.CanCall(ctx, "kwp", day2, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, calls)
}
