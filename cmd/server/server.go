package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/fpl-cohorts/internal/circuitbreaker"
	"github.com/yourorg/fpl-cohorts/internal/cohort"
	"github.com/yourorg/fpl-cohorts/internal/fetch"
	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/scheduler"
	"github.com/yourorg/fpl-cohorts/internal/validation"
)

const version = "1.0.0"

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// cohortService is the part of *cohort.Manager the HTTP layer uses.
type cohortService interface {
	GetCohortMetrics(ctx context.Context, period int, opts cohort.GetOptions) (*model.CohortSnapshot, error)
	GetPicks(ctx context.Context, period int, opts cohort.GetOptions) (*model.PicksSnapshot, error)
	ComputeCohortMetrics(ctx context.Context, period int) (*model.Snapshot, error)
	CachedPeriods() []int
}

type statusReporter interface {
	Status() scheduler.Status
}

// Server exposes cohort snapshots over HTTP.
type Server struct {
	cohorts   cohortService
	scheduler statusReporter
	breaker   *circuitbreaker.CircuitBreaker
	gatherer  prometheus.Gatherer
	admin     *rate.Limiter
	storage   string
}

// Router registers every route.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cohorts", s.handleCohorts).Methods(http.MethodGet)
	api.HandleFunc("/cohorts/{gameweek:[0-9]+}", s.handleCohorts).Methods(http.MethodGet)
	api.HandleFunc("/cohorts/{gameweek:[0-9]+}/picks", s.handlePicks).Methods(http.MethodGet)
	api.HandleFunc("/admin/cohorts/{gameweek:[0-9]+}/compute", s.handleCompute).Methods(http.MethodPost)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// gameweek reads the path variable; a missing one means latest completed.
func gameweek(r *http.Request) (int, error) {
	raw, ok := mux.Vars(r)["gameweek"]
	if !ok {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleCohorts(w http.ResponseWriter, r *http.Request) {
	gw, err := gameweek(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid gameweek")
		return
	}

	snap, err := s.cohorts.GetCohortMetrics(r.Context(), gw, cohort.GetOptions{})
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePicks(w http.ResponseWriter, r *http.Request) {
	gw, err := gameweek(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid gameweek")
		return
	}

	snap, err := s.cohorts.GetPicks(r.Context(), gw, cohort.GetOptions{})
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleCompute forces a synchronous recompute and re-archive.
func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	if s.admin != nil && !s.admin.Allow() {
		s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	gw, err := gameweek(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid gameweek")
		return
	}

	snap, err := s.cohorts.ComputeCohortMetrics(r.Context(), gw)
	if err != nil {
		s.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":         "operational",
		"uptime":         time.Since(startTime).Round(time.Second).String(),
		"version":        version,
		"storage":        s.storage,
		"cached_periods": s.cohorts.CachedPeriods(),
	}
	if s.breaker != nil {
		status["circuit_state"] = s.breaker.GetState().String()
	}
	if s.scheduler != nil {
		status["scheduler"] = s.scheduler.Status()
	}
	writeJSON(w, http.StatusOK, status)
}

// failure maps pipeline errors to status codes.
func (s *Server) failure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidPeriod):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cohort.ErrEmptySample):
		s.errorResponse(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, fetch.ErrUpstreamUnavailable), errors.Is(err, fetch.ErrCircuitOpen):
		s.errorResponse(w, http.StatusBadGateway, err.Error())
	default:
		logrus.WithError(err).Error("Request failed")
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, msg string) {
	logrus.WithField("status", statusCode).Warn(msg)
	writeJSON(w, statusCode, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Cannot encode response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		}).Debug("HTTP request")
	})
}
