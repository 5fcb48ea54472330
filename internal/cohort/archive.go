package cohort

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/retry"
	"github.com/yourorg/fpl-cohorts/internal/storage"
	"github.com/yourorg/fpl-cohorts/internal/validation"
)

// archiveSnapshot writes the cohort, picks and reference artifacts of a
// completed gameweek. Every key is overwritten, so re-archiving is safe.
// Failures are logged and otherwise ignored.
func (m *Manager) archiveSnapshot(ctx context.Context, period int, snap *model.Snapshot, ref *model.Reference) {
	if m.blobs == nil {
		return
	}
	log := logrus.WithField("gameweek", period)

	if err := validation.ValidateSnapshot(snap.Cohorts, period, validation.SnapshotOptions{
		Bands:         m.bands,
		RequireSample: true,
	}); err != nil {
		log.WithError(err).Error("Refusing to archive invalid snapshot")
		m.metrics.ArchiveWrite("invalid")
		return
	}

	refSnap := model.ReferenceSnapshot{
		Gameweek:  period,
		Timestamp: snap.Cohorts.Timestamp,
		Players:   ref.Players,
		Teams:     ref.Teams,
		Fixtures:  ref.Fixtures,
	}

	artifacts := []struct {
		key   string
		value any
	}{
		{storage.CohortsKey(period), snap.Cohorts},
		{storage.PicksKey(period), snap.Picks},
		{storage.ReferenceKey(period), refSnap},
	}

	for _, a := range artifacts {
		data, err := json.Marshal(a.value)
		if err != nil {
			log.WithField("key", a.key).WithError(err).Error("Cannot encode artifact")
			m.metrics.ArchiveWrite("error")
			continue
		}

		err = retry.Do(ctx, m.archive, func(ctx context.Context) error {
			return m.blobs.Put(ctx, a.key, data)
		})
		if err != nil {
			log.WithField("key", a.key).WithError(err).Warn("Archive write failed")
			m.metrics.ArchiveWrite("error")
			continue
		}
		m.metrics.ArchiveWrite("ok")
		log.WithField("key", a.key).Debug("Archived artifact")
	}
}

// restore loads a completed gameweek from cold storage. Any miss, backend
// error or invalid artifact yields nil.
func (m *Manager) restore(ctx context.Context, period int) *model.Snapshot {
	if m.blobs == nil {
		return nil
	}
	log := logrus.WithField("gameweek", period)

	var cohorts model.CohortSnapshot
	if !m.load(ctx, storage.CohortsKey(period), &cohorts) {
		return nil
	}
	if err := validation.ValidateSnapshot(&cohorts, period, validation.SnapshotOptions{
		Bands:         m.bands,
		RequireSample: true,
	}); err != nil {
		log.WithError(err).Warn("Ignoring invalid archived snapshot")
		m.metrics.CacheLookup("cold", "invalid")
		return nil
	}

	var picks model.PicksSnapshot
	if !m.load(ctx, storage.PicksKey(period), &picks) {
		return nil
	}
	if picks.Gameweek != period {
		log.WithField("picks_gameweek", picks.Gameweek).Warn("Ignoring mismatched archived picks")
		m.metrics.CacheLookup("cold", "invalid")
		return nil
	}

	m.metrics.CacheLookup("cold", "hit")
	return &model.Snapshot{Cohorts: &cohorts, Picks: &picks}
}

func (m *Manager) load(ctx context.Context, key string, out any) bool {
	data, err := m.blobs.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.metrics.CacheLookup("cold", "miss")
		return false
	case err != nil:
		logrus.WithField("key", key).WithError(err).Warn("Cold storage read failed, treating as miss")
		m.metrics.CacheLookup("cold", "error")
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Cannot decode archived artifact")
		m.metrics.CacheLookup("cold", "invalid")
		return false
	}
	return true
}
