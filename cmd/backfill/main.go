// Command backfill computes and archives cohort snapshots for a range of
// finished gameweeks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/app"
	"github.com/yourorg/fpl-cohorts/internal/cohort"
	"github.com/yourorg/fpl-cohorts/internal/config"
	"github.com/yourorg/fpl-cohorts/internal/lifecycle"
	"github.com/yourorg/fpl-cohorts/internal/logging"
	"github.com/yourorg/fpl-cohorts/internal/model"
)

// computer is the part of *cohort.Manager a backfill needs.
type computer interface {
	ComputeCohortMetrics(ctx context.Context, period int) (*model.Snapshot, error)
	Has(ctx context.Context, period int) bool
}

type options struct {
	from, to int
	// overwrite recomputes gameweeks that are already archived.
	overwrite bool
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}

	var opts options
	flag.IntVar(&opts.from, "from", 1, "first gameweek")
	flag.IntVar(&opts.to, "to", 0, "last gameweek, 0 for the latest finished")
	flag.BoolVar(&opts.overwrite, "overwrite", false, "recompute gameweeks that are already archived")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := requirePersistentStorage(cfg.Storage); err != nil {
		logrus.WithError(err).Fatal("Cannot backfill")
	}
	logCloser, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, MaxAgeDays: cfg.LogMaxAgeDays})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	periods, err := a.Reference.Periods(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Cannot load gameweeks")
	}

	failed := backfill(ctx, a.Manager, a.Oracle, periods, opts)
	if failed > 0 {
		logrus.WithField("failed", failed).Error("Backfill finished with failures")
		os.Exit(1)
	}
	logrus.Info("Backfill finished")
}

// errVolatileStorage rejects backends that do not outlive the process.
var errVolatileStorage = errors.New("backfill needs a persistent storage backend")

func requirePersistentStorage(cfg config.StorageConfig) error {
	if cfg.Backend == config.BackendMemory {
		return fmt.Errorf("%w: set FPL_COHORTS_STORAGE__BACKEND to %s or %s",
			errVolatileStorage, config.BackendS3, config.BackendPostgres)
	}
	return nil
}

// backfill computes every completed gameweek in [from, to] and returns the
// number of failures.
func backfill(ctx context.Context, c computer, oracle *lifecycle.Oracle, periods []model.Period, opts options) int {
	to := opts.to
	if to == 0 {
		to = oracle.LatestCompleted(periods)
	}

	failed := 0
	for gw := opts.from; gw <= to; gw++ {
		if ctx.Err() != nil {
			return failed + 1
		}
		log := logrus.WithField("gameweek", gw)

		if state := oracle.Classify(periods, gw); state != lifecycle.StateCompleted {
			log.WithField("state", state.String()).Info("Skipping unfinished gameweek")
			continue
		}
		if !opts.overwrite && c.Has(ctx, gw) {
			log.Info("Already archived")
			continue
		}

		snap, err := c.ComputeCohortMetrics(ctx, gw)
		if err != nil {
			if errors.Is(err, cohort.ErrEmptySample) {
				log.Warn("No entries sampled")
			} else {
				log.WithError(err).Error("Compute failed")
			}
			failed++
			continue
		}
		log.WithField("sampled", snap.Cohorts.TotalSampled()).Infof("Gameweek %d archived", gw)
	}
	return failed
}
