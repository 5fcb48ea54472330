// Package cache holds computed gameweek snapshots in memory and decides
// when they are fresh.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

// Entry is one cached compute result.
type Entry struct {
	Snapshot   *model.Snapshot
	ComputedAt time.Time

	// Final is set when the snapshot was computed (or restored) while its
	// gameweek was already completed.
	Final bool

	// Degraded is set when reference data was unavailable at compute time.
	Degraded bool
}

// Store is a concurrency-safe gameweek -> Entry map. Entries are replaced
// whole, so readers see either the old or the new snapshot.
type Store struct {
	mu      sync.RWMutex
	entries map[int]Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[int]Entry)}
}

// Get returns the entry for period.
func (s *Store) Get(period int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[period]
	return e, ok
}

// Put replaces the entry for period.
func (s *Store) Put(period int, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[period] = e
}

// PutUnlessFinal stores e unless the current entry for period is final,
// and reports whether it did.
func (s *Store) PutUnlessFinal(period int, e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[period]; ok && cur.Final {
		return false
	}
	s.entries[period] = e
	return true
}

// Delete drops the entry for period.
func (s *Store) Delete(period int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, period)
}

// Periods lists cached gameweeks in ascending order.
func (s *Store) Periods() []int {
	s.mu.RLock()
	out := make([]int, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Ints(out)
	return out
}
