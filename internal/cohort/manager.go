// Package cohort computes, caches and archives per gameweek cohort
// snapshots. It is the entry point used by the HTTP layer, the scheduler
// and backfill tooling.
package cohort

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/fpl-cohorts/internal/aggregate"
	"github.com/yourorg/fpl-cohorts/internal/cache"
	"github.com/yourorg/fpl-cohorts/internal/lifecycle"
	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/observability"
	tracing "github.com/yourorg/fpl-cohorts/internal/otel"
	"github.com/yourorg/fpl-cohorts/internal/pool"
	"github.com/yourorg/fpl-cohorts/internal/retry"
	"github.com/yourorg/fpl-cohorts/internal/storage"
	"github.com/yourorg/fpl-cohorts/internal/validation"
)

// ErrEmptySample is returned by ComputeCohortMetrics when a completed
// gameweek produced no sampled entry in any band. Such a snapshot is not
// archived.
var ErrEmptySample = errors.New("no entries sampled in any band")

// ReferenceSource supplies the latest reference snapshot.
// *fetch.ReferenceCache implements it.
type ReferenceSource interface {
	Get(ctx context.Context) (*model.Reference, error)
}

// Sampler selects entry ids for a band. *sampler.Sampler implements it.
type Sampler interface {
	Sample(ctx context.Context, band model.Band) ([]int, error)
}

// Fetcher loads squads for entry ids. *pool.Pool implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ids []int, period int, deriver pool.Deriver) pool.Result
}

// Options configure a Manager. Reference, Sampler and Fetcher are required.
type Options struct {
	Reference ReferenceSource
	Sampler   Sampler
	Fetcher   Fetcher

	// Store defaults to a fresh cache.Store.
	Store *cache.Store
	// Blobs is the cold storage; nil disables archiving.
	Blobs storage.BlobStore

	Oracle     *lifecycle.Oracle
	Policy     cache.Policy
	Bands      []model.Band
	FDRHorizon int

	// ArchiveRetry applies to every cold storage write.
	ArchiveRetry retry.Policy
	Metrics      *observability.Metrics
}

// GetOptions modify a cached read.
type GetOptions struct {
	// Force skips memory and cold storage and recomputes.
	Force bool
}

// Manager owns the in-memory snapshot cache for every gameweek.
type Manager struct {
	reference ReferenceSource
	sampler   Sampler
	fetcher   Fetcher
	store     *cache.Store
	blobs     storage.BlobStore
	oracle    *lifecycle.Oracle
	policy    cache.Policy
	bands     []model.Band
	horizon   int
	archive   retry.Policy
	metrics   *observability.Metrics
	tracer    trace.Tracer

	inflight singleflight.Group
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = cache.NewStore()
	}
	if opts.Oracle == nil {
		opts.Oracle = lifecycle.New()
	}
	if opts.Policy.TTL <= 0 || opts.Policy.CompletedRecentTTL <= 0 {
		opts.Policy = cache.DefaultPolicy()
	}
	if len(opts.Bands) == 0 {
		opts.Bands = model.DefaultBands()
	}
	if opts.FDRHorizon <= 0 {
		opts.FDRHorizon = aggregate.DefaultFDRHorizon
	}
	if opts.ArchiveRetry.MaxAttempts <= 0 {
		opts.ArchiveRetry = retry.DefaultPolicy()
	}

	return &Manager{
		reference: opts.Reference,
		sampler:   opts.Sampler,
		fetcher:   opts.Fetcher,
		store:     opts.Store,
		blobs:     opts.Blobs,
		oracle:    opts.Oracle,
		policy:    opts.Policy,
		bands:     opts.Bands,
		horizon:   opts.FDRHorizon,
		archive:   opts.ArchiveRetry,
		metrics:   opts.Metrics,
		tracer:    tracing.Tracer(),
	}
}

// GetCohortMetrics returns the cohort snapshot of period, 0 meaning the
// latest completed gameweek. Upstream and storage failures never surface
// here; at worst the snapshot has empty bands. Only an out of range period
// is an error.
func (m *Manager) GetCohortMetrics(ctx context.Context, period int, opts GetOptions) (*model.CohortSnapshot, error) {
	snap, err := m.get(ctx, period, opts)
	if err != nil {
		return nil, err
	}
	return snap.Cohorts, nil
}

// GetPicks is GetCohortMetrics for the ownership side of the snapshot.
func (m *Manager) GetPicks(ctx context.Context, period int, opts GetOptions) (*model.PicksSnapshot, error) {
	snap, err := m.get(ctx, period, opts)
	if err != nil {
		return nil, err
	}
	return snap.Picks, nil
}

// ComputeCohortMetrics recomputes period synchronously, bypassing every
// cache, and re-archives it if the gameweek is completed. Unlike
// GetCohortMetrics it fails when reference data cannot be loaded, and
// returns ErrEmptySample alongside the snapshot when a completed gameweek
// sampled nothing.
func (m *Manager) ComputeCohortMetrics(ctx context.Context, period int) (*model.Snapshot, error) {
	if err := validation.ValidatePeriod(period); err != nil {
		return nil, err
	}

	ref, err := m.reference.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}

	state := m.oracle.Classify(ref.Periods, period)
	snap, err := m.computeShared(ctx, period, ref, state, false)
	if err != nil {
		return nil, err
	}
	if state == lifecycle.StateCompleted && snap.Cohorts.TotalSampled() == 0 {
		return snap, ErrEmptySample
	}
	return snap, nil
}

// Has reports whether period is final in memory or archived in cold storage.
func (m *Manager) Has(ctx context.Context, period int) bool {
	if e, ok := m.store.Get(period); ok && e.Final {
		return true
	}
	if m.blobs == nil {
		return false
	}

	ok, err := m.blobs.Exists(ctx, storage.CohortsKey(period))
	if err != nil {
		logrus.WithField("gameweek", period).WithError(err).Warn("Cold storage lookup failed")
		return false
	}
	return ok
}

// Invalidate drops the in-memory entry of period.
func (m *Manager) Invalidate(period int) {
	m.store.Delete(period)
}

// CachedPeriods lists the gameweeks held in memory.
func (m *Manager) CachedPeriods() []int {
	return m.store.Periods()
}

func (m *Manager) get(ctx context.Context, period int, opts GetOptions) (*model.Snapshot, error) {
	if period != 0 {
		if err := validation.ValidatePeriod(period); err != nil {
			return nil, err
		}
	}

	degraded := false
	ref, err := m.reference.Get(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Reference data unavailable, computing without it")
		ref, degraded = &model.Reference{}, true
	}
	if period == 0 {
		period = m.oracle.LatestCompleted(ref.Periods)
	}

	state := m.oracle.Classify(ref.Periods, period)
	log := logrus.WithFields(logrus.Fields{"gameweek": period, "state": state.String()})

	if !opts.Force {
		e, cached := m.store.Get(period)
		fresh := cached && m.policy.Fresh(e, state, m.oracle.Now())
		if fresh && (e.Final || state != lifecycle.StateCompleted) {
			m.metrics.CacheLookup("memory", "hit")
			return e.Snapshot, nil
		}

		// A completed gameweek without a final entry prefers the archive
		// over anything computed before completion.
		if state == lifecycle.StateCompleted {
			if snap := m.restore(ctx, period); snap != nil {
				m.store.Put(period, cache.Entry{Snapshot: snap, ComputedAt: m.oracle.Now(), Final: true})
				log.Info("Restored snapshot from cold storage")
				return snap, nil
			}
		}

		switch {
		case fresh:
			m.metrics.CacheLookup("memory", "hit")
			return e.Snapshot, nil
		case cached:
			m.metrics.CacheLookup("memory", "stale")
		default:
			m.metrics.CacheLookup("memory", "miss")
		}
	}

	return m.computeShared(ctx, period, ref, state, degraded)
}

// computeShared runs at most one compute per gameweek at a time; callers
// arriving while one is running wait for its result. The compute is
// detached from the caller's cancellation.
func (m *Manager) computeShared(ctx context.Context, period int, ref *model.Reference, state lifecycle.State, degraded bool) (*model.Snapshot, error) {
	v, err, shared := m.inflight.Do(strconv.Itoa(period), func() (interface{}, error) {
		return m.compute(context.WithoutCancel(ctx), period, ref, state, degraded)
	})
	if shared {
		logrus.WithField("gameweek", period).Debug("Joined in-flight compute")
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.Snapshot), nil
}

// compute runs the pipeline for period. degraded marks a run against an
// empty reference; its snapshot is cached but never trusted once the
// gameweek can be classified.
func (m *Manager) compute(ctx context.Context, period int, ref *model.Reference, state lifecycle.State, degraded bool) (*model.Snapshot, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := logrus.WithFields(logrus.Fields{
		"component": "cohort",
		"gameweek":  period,
		"run_id":    runID,
	})

	ctx, span := m.tracer.Start(ctx, "cohort.compute", trace.WithAttributes(
		attribute.Int("gameweek", period),
		attribute.String("state", state.String()),
		attribute.String("run_id", runID),
	))
	defer span.End()

	log.WithField("state", state.String()).Info("Computing cohort snapshot")

	deriver := aggregate.NewDeriver(ref, period, m.horizon)
	cohorts := make(map[string]model.BandSummary, len(m.bands))
	picks := make(map[string]*model.PicksAggregate, len(m.bands))

	for _, band := range m.bands {
		summary, agg, err := m.computeBand(ctx, period, band, deriver)
		if err != nil {
			tracing.RecordError(ctx, err)
			m.metrics.Compute(time.Since(start), "error")
			return nil, fmt.Errorf("compute band %s: %w", band.Key, err)
		}
		cohorts[band.Key] = summary
		picks[band.Key] = agg
		m.metrics.BandSample(band.Key, summary.SampleSize)
	}

	ts := m.oracle.Now()
	snap := &model.Snapshot{
		Cohorts: &model.CohortSnapshot{Gameweek: period, Timestamp: ts, Buckets: cohorts},
		Picks:   &model.PicksSnapshot{Gameweek: period, Timestamp: ts, Buckets: picks},
	}

	sampled := snap.Cohorts.TotalSampled()
	completed := state == lifecycle.StateCompleted
	entry := cache.Entry{Snapshot: snap, ComputedAt: ts, Final: completed && sampled > 0, Degraded: degraded}

	switch {
	case completed && sampled > 0:
		m.store.Put(period, entry)
		m.archiveSnapshot(ctx, period, snap, ref)
	case completed:
		if m.store.PutUnlessFinal(period, entry) {
			log.Warn("Completed gameweek sampled no entries, not archiving")
		} else {
			log.Warn("Completed gameweek sampled no entries, keeping the final snapshot")
		}
	default:
		m.store.Put(period, entry)
	}

	outcome := "ok"
	if sampled == 0 {
		outcome = "empty"
	}
	m.metrics.Compute(time.Since(start), outcome)
	log.WithFields(logrus.Fields{
		"sampled":  sampled,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Cohort snapshot computed")

	return snap, nil
}

func (m *Manager) computeBand(ctx context.Context, period int, band model.Band, deriver *aggregate.Deriver) (model.BandSummary, *model.PicksAggregate, error) {
	ctx, span := m.tracer.Start(ctx, "cohort.band", trace.WithAttributes(attribute.String("band", band.Key)))
	defer span.End()

	ids, err := m.sampler.Sample(ctx, band)
	if err != nil {
		return model.BandSummary{}, nil, err
	}

	res := m.fetcher.Fetch(ctx, ids, period, deriver)
	span.SetAttributes(
		attribute.Int("attempted", len(ids)),
		attribute.Int("sampled", len(res.Metrics)),
	)

	logrus.WithFields(logrus.Fields{
		"gameweek": period,
		"band":     band.Key,
		"sampled":  len(res.Metrics),
		"failed":   res.Failed,
	}).Debug("Band fetched")

	return aggregate.ReduceBand(res.Metrics, len(ids)), aggregate.ReducePicks(res.RawPicks, deriver.Players()), nil
}
