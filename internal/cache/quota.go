package cache

import (
	"context"
	"sync"
	"time"

	"github.com/littlebearapps/adops-intel/internal/clock"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// QuotaPersister is the durable half of the quota ledger. A nil
// QuotaPersister means counters live only in memory for the process
// lifetime (acceptable for tests; requires the ledger to
// persist across restarts in production).
type QuotaPersister interface {
	CanCall(ctx context.Context, api string, day time.Time, ceiling int) (bool, int, error)
	RecordCall(ctx context.Context, api string, day time.Time) error
}

// QuotaLedger enforces daily per-API call ceilings.
// Day boundaries roll counters over atomically under the ledger's
// single mutex, shared by all APIs.
type QuotaLedger struct {
	clk        clock.Clock
	persister  QuotaPersister
	ceilings   map[string]int

	mu       sync.Mutex
	counters map[string]dailyCounter
}

type dailyCounter struct {
	day   string
	calls int
}

// NewQuotaLedger returns a ledger enforcing the given per-API daily
// ceilings.
func NewQuotaLedger(clk clock.Clock, persister QuotaPersister, ceilings map[string]int) *QuotaLedger {
	return &QuotaLedger{
		clk:       clk,
		persister: persister,
		ceilings:  ceilings,
		counters:  make(map[string]dailyCounter),
	}
}

func (q *QuotaLedger) today() string {
	return q.clk.Now().Format("2006-01-02")
}

// CanCall reports whether api has remaining budget for the current day.
// APIs with no configured ceiling are treated as unbounded.
func (q *QuotaLedger) CanCall(ctx context.Context, api string) (bool, error) {
	ceiling, bounded := q.ceilings[api]
	if !bounded {
		return true, nil
	}

	if q.persister != nil {
		ok, _, err := q.persister.CanCall(ctx, api, q.clk.Now(), ceiling)
		if err != nil {
			return false, pipeline.New(pipeline.StorageFailure, "quota ledger unavailable", "api", api, "error", err.Error())
		}
		return ok, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.rollover(api)
	return c.calls < ceiling, nil
}

// RecordCall increments the day's counter for api. Must only be called
// after a successful fetch ("idempotent only when
// paired with a successful fetch").
func (q *QuotaLedger) RecordCall(ctx context.Context, api string) error {
	if q.persister != nil {
		if err := q.persister.RecordCall(ctx, api, q.clk.Now()); err != nil {
			return pipeline.New(pipeline.StorageFailure, "quota ledger write failed", "api", api, "error", err.Error())
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.rollover(api)
	c.calls++
	q.counters[api] = c
	return nil
}

// Count returns the current day's recorded call count for api.
func (q *QuotaLedger) Count(api string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rollover(api).calls
}

// TotalCalls sums the current day's recorded call count across every
// configured API, used for PlanSummary.serp_calls_used.
func (q *QuotaLedger) TotalCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for api := range q.ceilings {
		total += q.rollover(api).calls
	}
	return total
}

// rollover returns (and stores) the counter for api, resetting to zero
// if the stored counter is from a previous day. Callers must hold q.mu.
func (q *QuotaLedger) rollover(api string) dailyCounter {
	today := q.today()
	c, ok := q.counters[api]
	if !ok || c.day != today {
		c = dailyCounter{day: today}
	}
	q.counters[api] = c
	return c
}
