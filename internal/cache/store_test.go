package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/fpl-cohorts/internal/lifecycle"
	"github.com/yourorg/fpl-cohorts/internal/model"
)

func snapshot(period int, ts time.Time) *model.Snapshot {
	return &model.Snapshot{
		Cohorts: &model.CohortSnapshot{Gameweek: period, Timestamp: ts},
		Picks:   &model.PicksSnapshot{Gameweek: period, Timestamp: ts},
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	s := NewStore()
	now := time.Now()

	_, ok := s.Get(5)
	assert.False(t, ok)

	s.Put(5, Entry{Snapshot: snapshot(5, now), ComputedAt: now, Final: true})
	s.Put(2, Entry{Snapshot: snapshot(2, now), ComputedAt: now})

	e, ok := s.Get(5)
	require.True(t, ok)
	assert.True(t, e.Final)
	assert.Equal(t, 5, e.Snapshot.Cohorts.Gameweek)
	assert.Equal(t, []int{2, 5}, s.Periods())

	s.Delete(5)
	_, ok = s.Get(5)
	assert.False(t, ok)
}

func TestStore_PutUnlessFinal(t *testing.T) {
	s := NewStore()
	now := time.Now()

	assert.True(t, s.PutUnlessFinal(3, Entry{Snapshot: snapshot(3, now), ComputedAt: now}))
	assert.True(t, s.PutUnlessFinal(3, Entry{Snapshot: snapshot(3, now), ComputedAt: now, Final: true}))

	later := now.Add(time.Minute)
	assert.False(t, s.PutUnlessFinal(3, Entry{Snapshot: snapshot(3, later), ComputedAt: later}))

	e, ok := s.Get(3)
	require.True(t, ok)
	assert.True(t, e.Final)
	assert.Equal(t, now, e.ComputedAt)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Put(i%4, Entry{Snapshot: snapshot(i%4, now), ComputedAt: now})
		}(i)
		go func(i int) {
			defer wg.Done()
			if e, ok := s.Get(i % 4); ok {
				assert.Equal(t, i%4, e.Snapshot.Cohorts.Gameweek)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Periods(), 4)
}

func TestPolicy_Fresh(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	entry := func(age time.Duration, final bool) Entry {
		return Entry{Snapshot: snapshot(1, now.Add(-age)), ComputedAt: now.Add(-age), Final: final}
	}

	tests := []struct {
		name  string
		entry Entry
		state lifecycle.State
		want  bool
	}{
		{"final completed never expires", entry(30*24*time.Hour, true), lifecycle.StateCompleted, true},
		{"completed recent within 3h", entry(2*time.Hour, false), lifecycle.StateCompleted, true},
		{"completed recent after 3h", entry(4*time.Hour, false), lifecycle.StateCompleted, false},
		{"live within 6h", entry(5*time.Hour, false), lifecycle.StateLive, true},
		{"live after 6h", entry(7*time.Hour, false), lifecycle.StateLive, false},
		{"unknown after 6h", entry(7*time.Hour, true), lifecycle.StateUnknown, false},
		{"upcoming within 6h", entry(time.Hour, false), lifecycle.StateUpcoming, true},
		{"missing snapshot", Entry{ComputedAt: now}, lifecycle.StateCompleted, false},
		{"degraded while unknown", Entry{Snapshot: snapshot(1, now), ComputedAt: now, Degraded: true}, lifecycle.StateUnknown, true},
		{"degraded once completed", Entry{Snapshot: snapshot(1, now), ComputedAt: now, Degraded: true}, lifecycle.StateCompleted, false},
		{"degraded once live", Entry{Snapshot: snapshot(1, now), ComputedAt: now, Degraded: true}, lifecycle.StateLive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Fresh(tt.entry, tt.state, now))
		})
	}
}
