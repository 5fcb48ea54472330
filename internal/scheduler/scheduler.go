// Package scheduler materialises cohort snapshots for newly completed
// gameweeks once upstream data has had time to settle.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/lifecycle"
	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/observability"
)

// Defaults for Options.
const (
	DefaultPollInterval = 15 * time.Minute
	DefaultSettleWindow = 2 * time.Hour
	DefaultRetryDelay   = 30 * time.Minute
)

// Computer computes and archives a gameweek. *cohort.Manager implements it.
type Computer interface {
	ComputeCohortMetrics(ctx context.Context, period int) (*model.Snapshot, error)
	Has(ctx context.Context, period int) bool
}

// PeriodSource lists gameweeks. *fetch.ReferenceCache implements it.
type PeriodSource interface {
	Periods(ctx context.Context) ([]model.Period, error)
}

// Options configure a Scheduler.
type Options struct {
	PollInterval time.Duration
	// SettleWindow is how long after upstream marks a gameweek's data as
	// checked before it is trusted.
	SettleWindow time.Duration
	RetryDelay   time.Duration

	Oracle  *lifecycle.Oracle
	Metrics *observability.Metrics
}

// Status is a point in time view of the scheduler.
type Status struct {
	LastProcessed int   `json:"last_processed"`
	Pending       []int `json:"pending,omitempty"`
	Running       bool  `json:"running"`
}

// Scheduler polls for the latest completed gameweek and computes it once.
// Each pending gameweek keeps its own timer and retries until it succeeds;
// computations run one at a time.
type Scheduler struct {
	computer Computer
	periods  PeriodSource
	oracle   *lifecycle.Oracle
	metrics  *observability.Metrics

	pollInterval time.Duration
	settleWindow time.Duration
	retryDelay   time.Duration

	// runMu serialises computations.
	runMu sync.Mutex

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	stopped       bool
	lastProcessed int
	pending       map[int]*time.Timer
	running       bool
	wg            sync.WaitGroup
}

// New creates a scheduler; call Start to run it.
func New(computer Computer, periods PeriodSource, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SettleWindow <= 0 {
		opts.SettleWindow = DefaultSettleWindow
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Oracle == nil {
		opts.Oracle = lifecycle.New()
	}

	return &Scheduler{
		computer:     computer,
		periods:      periods,
		oracle:       opts.Oracle,
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		settleWindow: opts.SettleWindow,
		retryDelay:   opts.RetryDelay,
		ctx:          context.Background(),
		pending:      make(map[int]*time.Timer),
	}
}

// Start runs the poll loop until ctx is done or Stop is called. The first
// check happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	logrus.WithFields(logrus.Fields{
		"poll_interval": s.pollInterval.String(),
		"settle_window": s.settleWindow.String(),
		"retry_delay":   s.retryDelay.String(),
	}).Info("Gameweek scheduler started")
}

// Stop cancels pending timers and waits for a running computation to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	for period, timer := range s.pending {
		timer.Stop()
		delete(s.pending, period)
	}
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Info("Gameweek scheduler stopped")
}

// Status reports the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []int
	for period := range s.pending {
		pending = append(pending, period)
	}
	sort.Ints(pending)
	return Status{LastProcessed: s.lastProcessed, Pending: pending, Running: s.running}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.check(s.ctx)
	for {
		select {
		case <-ticker.C:
			s.check(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// check looks for a completed gameweek that has not been processed yet and
// schedules it after the settle delay.
func (s *Scheduler) check(ctx context.Context) {
	periods, err := s.periods.Periods(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Scheduler cannot load gameweeks")
		return
	}

	latest := s.oracle.LatestCompleted(periods)
	p, ok := findPeriod(periods, latest)
	if !ok || !p.Finished {
		return
	}

	s.mu.Lock()
	_, pending := s.pending[latest]
	seen := latest <= s.lastProcessed || pending
	s.mu.Unlock()
	if seen {
		return
	}

	log := logrus.WithField("gameweek", latest)
	if s.computer.Has(ctx, latest) {
		s.mu.Lock()
		s.lastProcessed = latest
		s.mu.Unlock()
		log.Debug("Gameweek already archived")
		s.metrics.SchedulerRun("skipped")
		return
	}

	delay := s.settleDelay(p)
	log.WithField("delay", delay.String()).Info("Scheduling gameweek computation")
	s.schedule(latest, delay)
}

// settleDelay is what is left of the settle window since upstream checked
// the gameweek's data, or the whole window when that time is unknown.
func (s *Scheduler) settleDelay(p model.Period) time.Duration {
	if p.DataCheckedAt == nil {
		return s.settleWindow
	}
	remaining := s.settleWindow - s.oracle.Now().Sub(*p.DataCheckedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Scheduler) schedule(period int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.pending[period]; ok {
		return
	}
	s.pending[period] = time.AfterFunc(delay, func() { s.run(period) })
}

func (s *Scheduler) run(period int) {
	s.mu.Lock()
	if _, ok := s.pending[period]; s.stopped || !ok {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log := logrus.WithField("gameweek", period)
	start := time.Now()
	_, err := s.computer.ComputeCohortMetrics(ctx, period)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false

	if err != nil {
		s.metrics.SchedulerRun("failed")
		if s.stopped {
			return
		}
		log.WithError(err).Warnf("Gameweek computation failed, retrying in %s", s.retryDelay)
		s.pending[period] = time.AfterFunc(s.retryDelay, func() { s.run(period) })
		return
	}

	s.metrics.SchedulerRun("ok")
	delete(s.pending, period)
	if period > s.lastProcessed {
		s.lastProcessed = period
	}
	log.WithField("duration", time.Since(start).Round(time.Millisecond).String()).Info("Gameweek computed and archived")
}

func findPeriod(periods []model.Period, id int) (model.Period, bool) {
	for _, p := range periods {
		if p.ID == id {
			return p, true
		}
	}
	return model.Period{}, false
}
