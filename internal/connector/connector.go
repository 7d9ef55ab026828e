// Package connector defines the keyword-data source contract and the
// cache/quota-gated fetch wrapper used by the precedence merger. Each
// concrete connector (KWP, GSC, estimated fallback) implements Connector;
// FetchAll runs them and degrades a single connector's failure to a
// warning rather than aborting the run (ConnectorUnavailable is
// non-fatal).
package connector

import (
	"context"
	"log/slog"
	"time"

	"github.com/littlebearapps/adops-intel/internal/cache"
	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// Connector fetches keyword data for a set of seed queries in a market.
// Implementations must be safe for concurrent use: FetchAll invokes all
// configured connectors in parallel.
type Connector interface {
	// Name identifies the connector for logging, stats, and the quota
	// ledger's per-API key (e.g. "kwp", "gsc", "estimated").
	Name() string
	// Source is the DataSource this connector contributes, used by the
	// precedence merger.
	Source() model.DataSource
	// Fetch returns keyword records for the given seeds in market.
	Fetch(ctx context.Context, market string, seeds []string) ([]model.KeywordRecord, error)
}

// Result is one connector's contribution to a FetchAll call.
type Result struct {
	ConnectorName string
	Source        model.DataSource
	Records       []model.KeywordRecord
	Err           error
}

// quotaGate is the subset of cache.QuotaLedger a gated connector needs.
type quotaGate interface {
	CanCall(ctx context.Context, api string) (bool, error)
	RecordCall(ctx context.Context, api string) error
}

// Gated wraps a Connector with the C2 cache and quota ledger: a cache
// hit skips the call entirely; a quota-exhausted API returns
// QuotaExhausted without invoking the underlying connector.
type Gated struct {
	inner Connector
	cache *cache.Cache
	quota quotaGate
	ttl   time.Duration
	log   *slog.Logger
}

// NewGated returns a Connector that checks the cache and quota ledger
// before delegating to inner.
func NewGated(inner Connector, c *cache.Cache, q quotaGate, ttl time.Duration, log *slog.Logger) *Gated {
	if log == nil {
		log = slog.Default()
	}
	return &Gated{inner: inner, cache: c, quota: q, ttl: ttl, log: log}
}

func (g *Gated) Name() string             { return g.inner.Name() }
func (g *Gated) Source() model.DataSource { return g.inner.Source() }

// Fetch checks the content cache first, then the quota ledger, before
// delegating to the wrapped connector. A successful fetch is cached and
// recorded against the quota ledger.
func (g *Gated) Fetch(ctx context.Context, market string, seeds []string) ([]model.KeywordRecord, error) {
	params := map[string]string{"market": market}
	for i, s := range seeds {
		params[cacheSeedKey(i)] = s
	}

	var cached []model.KeywordRecord
	if g.cache != nil && g.cache.Get(ctx, g.inner.Name(), params, &cached) {
		return cached, nil
	}

	if g.quota != nil {
		ok, err := g.quota.CanCall(ctx, g.inner.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, pipeline.New(pipeline.QuotaExhausted, "daily call quota exhausted", "connector", g.inner.Name())
		}
	}

	records, err := g.inner.Fetch(ctx, market, seeds)
	if err != nil {
		return nil, pipeline.New(pipeline.ConnectorUnavailable, "connector fetch failed", "connector", g.inner.Name(), "error", err.Error())
	}

	if g.quota != nil {
		if err := g.quota.RecordCall(ctx, g.inner.Name()); err != nil {
			g.log.Warn("quota record failed", "connector", g.inner.Name(), "error", err)
		}
	}
	if g.cache != nil {
		if err := g.cache.Put(ctx, g.inner.Name(), params, records, g.ttl); err != nil {
			g.log.Warn("cache write failed", "connector", g.inner.Name(), "error", err)
		}
	}
	return records, nil
}

func cacheSeedKey(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "seed_" + string(letters[i])
	}
	return "seed_overflow"
}

// FetchAll runs every connector concurrently for the given market/seeds
// and returns one Result per connector, in connector-list order. A
// connector error is captured in Result.Err rather than aborting the
// others ("a connector failure degrades to a
// warning; the merge proceeds with whatever sources succeeded").
func FetchAll(ctx context.Context, connectors []Connector, market string, seeds []string) []Result {
	results := make([]Result, len(connectors))
	done := make(chan int, len(connectors))

	for i, c := range connectors {
		go func(i int, c Connector) {
			records, err := c.Fetch(ctx, market, seeds)
			results[i] = Result{ConnectorName: c.Name(), Source: c.Source(), Records: records, Err: err}
			done <- i
		}(i, c)
	}
	for range connectors {
		<-done
	}
	return results
}
