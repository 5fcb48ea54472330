// Package main runs the cohort HTTP service: it serves cohort snapshots,
// computes newly completed gameweeks in the background and archives them.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/fpl-cohorts/internal/app"
	"github.com/yourorg/fpl-cohorts/internal/config"
	"github.com/yourorg/fpl-cohorts/internal/logging"
	tracing "github.com/yourorg/fpl-cohorts/internal/otel"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logCloser, err := logging.Setup(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := tracing.InitTracer(ctx, cfg.OtelEndpoint, cfg.OtelInsecure)
	defer shutdownTracer()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, reg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		a.Scheduler.Start(ctx)
		defer a.Scheduler.Stop()
	}

	srv := &Server{
		cohorts:   a.Manager,
		scheduler: a.Scheduler,
		breaker:   a.Breaker,
		gatherer:  reg,
		admin:     rate.NewLimiter(rate.Limit(cfg.AdminRPS), cfg.AdminBurst),
		storage:   cfg.Storage.Backend,
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.Addr).Info("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Error starting server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	logrus.Info("Server stopped")
}
