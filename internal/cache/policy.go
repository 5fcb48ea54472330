package cache

import (
	"time"

	"github.com/yourorg/fpl-cohorts/internal/lifecycle"
)

// Default TTLs.
const (
	DefaultTTL         = 6 * time.Hour
	CompletedRecentTTL = 3 * time.Hour
)

// Policy decides whether a cached entry can be served.
type Policy struct {
	// TTL applies to live, upcoming and unknown gameweeks.
	TTL time.Duration
	// CompletedRecentTTL applies to entries of a completed gameweek that
	// were computed before it completed.
	CompletedRecentTTL time.Duration
}

// DefaultPolicy returns the production TTLs.
func DefaultPolicy() Policy {
	return Policy{TTL: DefaultTTL, CompletedRecentTTL: CompletedRecentTTL}
}

// Fresh reports whether e may be served for a gameweek in state at now.
// Final entries of a completed gameweek never expire. Degraded entries are
// only served while the gameweek still classifies as unknown.
func (p Policy) Fresh(e Entry, state lifecycle.State, now time.Time) bool {
	if e.Snapshot == nil {
		return false
	}
	if e.Degraded && state != lifecycle.StateUnknown {
		return false
	}
	age := now.Sub(e.ComputedAt)
	if state == lifecycle.StateCompleted {
		if e.Final {
			return true
		}
		return age < p.CompletedRecentTTL
	}
	return age < p.TTL
}
