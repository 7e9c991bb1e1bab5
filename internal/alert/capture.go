package alert

import (
	"context"
	"sync"

	"github.com/shopassist/watchd/internal/watcher"
)

// CaptureSink stores emitted events for inspection in tests.
type CaptureSink struct {
	mu     sync.RWMutex
	events []watcher.AlertEvent
}

// NewCaptureSink returns an empty CaptureSink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Emit records the event.
func (s *CaptureSink) Emit(_ context.Context, event watcher.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (s *CaptureSink) Events() []watcher.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]watcher.AlertEvent, len(s.events))
	copy(out, s.events)
	return out
}
