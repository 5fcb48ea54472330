package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/retry"
)

// ReferenceFetcher loads a fresh reference snapshot. *Client implements it.
type ReferenceFetcher interface {
	FetchReference(ctx context.Context) (*model.Reference, error)
}

// ReferenceCache keeps the latest bootstrap and fixtures snapshot for ttl.
// It also stamps Period.DataCheckedAt with the time a period was first seen
// with data_checked set, which upstream does not report itself.
type ReferenceCache struct {
	src    ReferenceFetcher
	ttl    time.Duration
	policy retry.Policy
	now    func() time.Time

	mu        sync.RWMutex
	ref       *model.Reference
	checkedAt map[int]time.Time

	group singleflight.Group
}

// NewReferenceCache creates a cache over src.
func NewReferenceCache(src ReferenceFetcher, ttl time.Duration) *ReferenceCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ReferenceCache{
		src:       src,
		ttl:       ttl,
		policy:    retry.DefaultPolicy(),
		now:       time.Now,
		checkedAt: make(map[int]time.Time),
	}
}

// WithClock overrides the cache clock.
func (rc *ReferenceCache) WithClock(now func() time.Time) *ReferenceCache {
	rc.now = now
	return rc
}

// WithRetryPolicy sets the policy used around a refresh.
func (rc *ReferenceCache) WithRetryPolicy(p retry.Policy) *ReferenceCache {
	rc.policy = p
	return rc
}

// Get returns the cached reference, refreshing it when older than ttl.
// A failed refresh falls back to the stale snapshot if there is one.
func (rc *ReferenceCache) Get(ctx context.Context) (*model.Reference, error) {
	rc.mu.RLock()
	ref := rc.ref
	rc.mu.RUnlock()

	if ref != nil && rc.now().Sub(ref.FetchedAt) < rc.ttl {
		return ref, nil
	}

	v, err, _ := rc.group.Do("reference", func() (interface{}, error) {
		return rc.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if ref != nil {
			logrus.WithError(err).Warn("Reference refresh failed, serving stale snapshot")
			return ref, nil
		}
		return nil, err
	}
	return v.(*model.Reference), nil
}

// Periods returns the gameweek list of the current snapshot.
func (rc *ReferenceCache) Periods(ctx context.Context) ([]model.Period, error) {
	ref, err := rc.Get(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Periods, nil
}

// Invalidate forces the next Get to refresh.
func (rc *ReferenceCache) Invalidate() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.ref != nil {
		stale := *rc.ref
		stale.FetchedAt = time.Time{}
		rc.ref = &stale
	}
}

func (rc *ReferenceCache) refresh(ctx context.Context) (*model.Reference, error) {
	var fresh *model.Reference
	err := retry.Do(ctx, rc.policy, func(ctx context.Context) error {
		ref, err := rc.src.FetchReference(ctx)
		if err != nil {
			return err
		}
		fresh = ref
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := rc.now()
	fresh.FetchedAt = now

	rc.mu.Lock()
	defer rc.mu.Unlock()

	for i := range fresh.Periods {
		p := &fresh.Periods[i]
		if !p.DataChecked {
			continue
		}
		at, seen := rc.checkedAt[p.ID]
		if !seen {
			at = now
			rc.checkedAt[p.ID] = at
			logrus.WithField("gameweek", p.ID).Info("Gameweek data marked as checked upstream")
		}
		stamped := at
		p.DataCheckedAt = &stamped
	}

	rc.ref = fresh
	return fresh, nil
}
