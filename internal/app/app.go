// Package app wires configuration into a running cohort pipeline. It is
// shared by the HTTP server and the backfill tool.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/circuitbreaker"
	"github.com/yourorg/fpl-cohorts/internal/cohort"
	"github.com/yourorg/fpl-cohorts/internal/config"
	"github.com/yourorg/fpl-cohorts/internal/fetch"
	"github.com/yourorg/fpl-cohorts/internal/lifecycle"
	"github.com/yourorg/fpl-cohorts/internal/observability"
	"github.com/yourorg/fpl-cohorts/internal/pool"
	"github.com/yourorg/fpl-cohorts/internal/retry"
	"github.com/yourorg/fpl-cohorts/internal/sampler"
	"github.com/yourorg/fpl-cohorts/internal/scheduler"
	"github.com/yourorg/fpl-cohorts/internal/storage"
	"github.com/yourorg/fpl-cohorts/internal/storage/memory"
	"github.com/yourorg/fpl-cohorts/internal/storage/postgres"
	"github.com/yourorg/fpl-cohorts/internal/storage/s3store"
)

// App holds the long lived components of the service.
type App struct {
	Config    *config.Config
	Metrics   *observability.Metrics
	Breaker   *circuitbreaker.CircuitBreaker
	Oracle    *lifecycle.Oracle
	Reference *fetch.ReferenceCache
	Manager   *cohort.Manager
	Scheduler *scheduler.Scheduler
	Blobs     storage.BlobStore

	closers []func()
}

// Build constructs every component from cfg. Collectors are registered on
// reg; a nil reg disables metrics.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	var metrics *observability.Metrics
	if reg != nil {
		metrics = observability.NewMetrics(reg)
	}

	breaker := circuitbreaker.New(cfg.Upstream.BreakerThreshold).
		WithResetDelay(cfg.Upstream.BreakerReset).
		WithTripCallback(func(string) { metrics.BreakerOpen(true) })

	retryPolicy := cfg.RetryPolicy()
	client := fetch.NewClient(fetch.Options{
		BaseURL:           cfg.Upstream.BaseURL,
		UserAgent:         cfg.Upstream.UserAgent,
		Timeout:           cfg.Upstream.Timeout,
		Retry:             retryPolicy,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
		Breaker:           breaker,
		Metrics:           metrics,
	})

	oracle := lifecycle.New()
	reference := fetch.NewReferenceCache(client, cfg.Upstream.ReferenceTTL).WithRetryPolicy(retryPolicy)

	blobs, closeBlobs, err := OpenBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	manager := cohort.NewManager(cohort.Options{
		Reference:    reference,
		Sampler:      sampler.New(client, cfg.SamplerOptions()),
		Fetcher:      pool.New(client, cfg.Sampling.Concurrency, metrics),
		Blobs:        blobs,
		Oracle:       oracle,
		Policy:       cfg.CachePolicy(),
		Bands:        cfg.Bands,
		FDRHorizon:   cfg.Sampling.FDRHorizon,
		ArchiveRetry: retry.DefaultPolicy(),
		Metrics:      metrics,
	})

	sched := scheduler.New(manager, reference, scheduler.Options{
		PollInterval: cfg.Scheduler.PollInterval,
		SettleWindow: cfg.Scheduler.SettleWindow,
		RetryDelay:   cfg.Scheduler.RetryDelay,
		Oracle:       oracle,
		Metrics:      metrics,
	})

	logrus.WithFields(logrus.Fields{
		"storage":   cfg.Storage.Backend,
		"bands":     len(cfg.Bands),
		"league_id": cfg.Sampling.LeagueID,
		"samples":   cfg.Sampling.SamplesPerBand,
	}).Info("Cohort pipeline initialized")

	return &App{
		Config:    cfg,
		Metrics:   metrics,
		Breaker:   breaker,
		Oracle:    oracle,
		Reference: reference,
		Manager:   manager,
		Scheduler: sched,
		Blobs:     blobs,
		closers:   []func(){closeBlobs},
	}, nil
}

// Close releases storage connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// OpenBlobStore opens the configured cold storage backend.
func OpenBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory, "":
		return memory.New(), noop, nil
	case config.BackendS3:
		store, err := s3store.New(ctx, cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return store, noop, nil
	case config.BackendPostgres:
		store, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
