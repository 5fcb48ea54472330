// Package lifecycle classifies gameweeks as live, completed or upcoming.
//
// Everything here is a pure function of the periods passed in and the
// supplied clock; nothing is cached between calls.
package lifecycle

import (
	"time"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

// State is the lifecycle classification of a period.
type State int

// Lifecycle states
const (
	StateUnknown State = iota
	StateUpcoming
	StateLive
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateUpcoming:
		return "upcoming"
	case StateLive:
		return "live"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Oracle answers lifecycle questions against externally supplied periods.
type Oracle struct {
	now func() time.Time
}

// New returns an Oracle using the wall clock.
func New() *Oracle {
	return &Oracle{now: time.Now}
}

// WithClock overrides the clock, mostly for tests.
func (o *Oracle) WithClock(now func() time.Time) *Oracle {
	o.now = now
	return o
}

// Now returns the oracle's notion of the current time.
func (o *Oracle) Now() time.Time {
	return o.now()
}

// Classify returns the state of period id within periods.
func (o *Oracle) Classify(periods []model.Period, id int) State {
	for _, p := range periods {
		if p.ID == id {
			return o.ClassifyPeriod(p)
		}
	}
	return StateUnknown
}

// ClassifyPeriod returns the state of a single period.
func (o *Oracle) ClassifyPeriod(p model.Period) State {
	if p.Finished {
		return StateCompleted
	}
	if p.Deadline.IsZero() {
		return StateUnknown
	}
	if !p.Deadline.After(o.now()) {
		return StateLive
	}
	return StateUpcoming
}

// LatestCompleted returns the highest finished period id, or 1 when none
// has finished yet.
func (o *Oracle) LatestCompleted(periods []model.Period) int {
	latest := 0
	for _, p := range periods {
		if p.Finished && p.ID > latest {
			latest = p.ID
		}
	}
	if latest == 0 {
		return 1
	}
	return latest
}

// Current returns the period upstream flags as current, if any.
func (o *Oracle) Current(periods []model.Period) (model.Period, bool) {
	for _, p := range periods {
		if p.IsCurrent {
			return p, true
		}
	}
	return model.Period{}, false
}

// TimeUntilDeadline returns the time until the next deadline that has not
// passed yet. ok is false when no future deadline is known.
func (o *Oracle) TimeUntilDeadline(periods []model.Period) (d time.Duration, ok bool) {
	now := o.now()
	var next time.Time
	for _, p := range periods {
		if p.Finished || p.Deadline.IsZero() || !p.Deadline.After(now) {
			continue
		}
		if next.IsZero() || p.Deadline.Before(next) {
			next = p.Deadline
		}
	}
	if next.IsZero() {
		return 0, false
	}
	return next.Sub(now), true
}
