package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// CacheLedgerRepository is the Postgres-backed half of C2: a content
// cache table plus daily per-API quota counters. The in-memory layer in
// internal/cache wraps this for fast reads and delegates durable writes
// here, matching ("the ledger persists across process
// restarts").
type CacheLedgerRepository struct {
	db *sql.DB
}

// NewCacheLedgerRepository returns a repository backed by db.
func NewCacheLedgerRepository(db *sql.DB) *CacheLedgerRepository {
	return &CacheLedgerRepository{db: db}
}

// Get returns the cached value for key, or (nil, false) on a miss.
// Per, cache read failure degrades to a miss rather than
// propagating an error.
func (r *CacheLedgerRepository) Get(ctx context.Context, key string) ([]byte, bool) {
	row := r.db.QueryRowContext(ctx, `
		SELECT value_json FROM cache_entries WHERE cache_key=$1 AND expires_at > now()`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		return nil, false
	}
	return value, true
}

// Put stores value under key with the given endpoint (for hit/miss
// accounting) and absolute expiry.
func (r *CacheLedgerRepository) Put(ctx context.Context, key, endpoint string, value []byte, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, endpoint, value_json, expires_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (cache_key) DO UPDATE SET value_json=EXCLUDED.value_json, expires_at=EXCLUDED.expires_at`,
		key, endpoint, value, expiresAt)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "put cache entry", "error", err.Error())
	}
	return nil
}

// CanCall reports whether the given API still has budget for today, and
// the current call count. A ledger write failure here is fatal to the
// call.
func (r *CacheLedgerRepository) CanCall(ctx context.Context, api string, day time.Time, ceiling int) (bool, int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT calls FROM quota_counters WHERE api=$1 AND day=$2`, api, day.Format("2006-01-02"))
	var calls int
	if err := row.Scan(&calls); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, 0, nil
		}
		return false, 0, pipeline.New(pipeline.StorageFailure, "read quota counter", "error", err.Error())
	}
	return calls < ceiling, calls, nil
}

// RecordCall increments today's counter for api. The caller must pair it
// with exactly one successful fetch.
func (r *CacheLedgerRepository) RecordCall(ctx context.Context, api string, day time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quota_counters (api, day, calls) VALUES ($1,$2,1)
		ON CONFLICT (api, day) DO UPDATE SET calls = quota_counters.calls + 1`,
		api, day.Format("2006-01-02"))
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "record quota call", "error", err.Error())
	}
	return nil
}

// marshalValue is a small helper so callers can store arbitrary
// connector responses as JSONB.
func marshalValue(v any) ([]byte, error) {
	return json.Marshal(v)
}
