// Package memory provides an in-memory watcher repository for development
// and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopassist/watchd/internal/watcher"
)

// ErrNotFound is returned when a watcher id is unknown.
var ErrNotFound = errors.New("watcher not found")

// WatcherStore implements watcher.Repository with an in-memory map.
type WatcherStore struct {
	mu       sync.RWMutex
	watchers map[string]watcher.Watcher
}

// NewWatcherStore constructs an empty WatcherStore.
func NewWatcherStore() *WatcherStore {
	return &WatcherStore{watchers: make(map[string]watcher.Watcher)}
}

// Put inserts or replaces a watcher. Intended for seeding and tests.
func (s *WatcherStore) Put(w watcher.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[w.ID] = w
}

// FindDue returns active watchers that were never checked or whose last
// check is older than the floor, never-checked first, then longest
// unchecked.
func (s *WatcherStore) FindDue(_ context.Context, now time.Time, floor time.Duration, limit int) ([]watcher.Watcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(-floor)
	var due []watcher.Watcher
	for _, w := range s.watchers {
		if w.Status != watcher.StatusActive {
			continue
		}
		if w.LastCheckAt == nil || !w.LastCheckAt.After(cutoff) {
			due = append(due, w)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		switch {
		case a.LastCheckAt == nil && b.LastCheckAt == nil:
			return a.ID < b.ID
		case a.LastCheckAt == nil:
			return true
		case b.LastCheckAt == nil:
			return false
		default:
			return a.LastCheckAt.Before(*b.LastCheckAt)
		}
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Get fetches one watcher by id.
func (s *WatcherStore) Get(_ context.Context, id string) (watcher.Watcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.watchers[id]
	if !ok {
		return watcher.Watcher{}, ErrNotFound
	}
	return w, nil
}

// List returns all watchers ordered by id.
func (s *WatcherStore) List(_ context.Context) ([]watcher.Watcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]watcher.Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordOutcome applies one check's delta atomically under the store lock.
func (s *WatcherStore) RecordOutcome(_ context.Context, id string, outcome watcher.CheckOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchers[id]
	if !ok {
		return ErrNotFound
	}

	checkedAt := outcome.CheckedAt
	w.LastCheckAt = &checkedAt
	if outcome.Success {
		w.ErrorCount = 0
	} else {
		w.ErrorCount += outcome.ErrorIncrement
	}
	if outcome.Snapshot != nil {
		w.LastSnapshot = outcome.Snapshot
	}
	if outcome.StatusTransition != nil {
		w.Status = *outcome.StatusTransition
	}

	s.watchers[id] = w
	return nil
}
