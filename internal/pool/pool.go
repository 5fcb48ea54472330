// Package pool fetches squads for a list of entries with bounded concurrency.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/observability"
)

// DefaultConcurrency is the number of in-flight picks requests.
const DefaultConcurrency = 5

// PicksFetcher loads one entry's squad. *fetch.Client implements it.
type PicksFetcher interface {
	FetchPicks(ctx context.Context, entryID, period int) (*model.EntityPicks, error)
}

// Deriver turns a squad into metrics. *aggregate.Deriver implements it.
type Deriver interface {
	Derive(picks *model.EntityPicks) model.EntityMetrics
}

// Result holds the entries that were fetched successfully, in no
// particular order.
type Result struct {
	Metrics  []model.EntityMetrics
	RawPicks []model.EntityPicks
	Failed   int
}

// Pool runs a fixed number of workers over a shared cursor.
type Pool struct {
	fetcher     PicksFetcher
	concurrency int
	metrics     *observability.Metrics
}

// New creates a pool. concurrency below 1 uses DefaultConcurrency.
func New(fetcher PicksFetcher, concurrency int, metrics *observability.Metrics) *Pool {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Pool{fetcher: fetcher, concurrency: concurrency, metrics: metrics}
}

// Fetch loads picks for every id and derives their metrics. An entry whose
// fetch fails is logged and dropped; Fetch itself never fails. Workers stop
// taking new ids once ctx is done.
func (p *Pool) Fetch(ctx context.Context, ids []int, period int, deriver Deriver) Result {
	var (
		cursor int64 = -1
		mu     sync.Mutex
		wg     sync.WaitGroup
		res    = Result{
			Metrics:  make([]model.EntityMetrics, 0, len(ids)),
			RawPicks: make([]model.EntityPicks, 0, len(ids)),
		}
	)

	workers := p.concurrency
	if workers > len(ids) {
		workers = len(ids)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1))
				if i >= len(ids) || ctx.Err() != nil {
					return
				}

				picks, err := p.fetcher.FetchPicks(ctx, ids[i], period)
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"entry_id": ids[i],
						"gameweek": period,
					}).WithError(err).Warn("Dropping entry from sample")
					p.metrics.PoolFailure()
					mu.Lock()
					res.Failed++
					mu.Unlock()
					continue
				}

				m := deriver.Derive(picks)
				mu.Lock()
				res.Metrics = append(res.Metrics, m)
				res.RawPicks = append(res.RawPicks, *picks)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return res
}
