// Package scheduler finds due watchers and feeds the job queue.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/watcher"
)

const (
	basePriority = 100
	minPriority  = 10
	maxPriority  = 200

	// overduePenalty is the largest priority boost a badly overdue
	// watcher can earn.
	overduePenalty = 40

	// errorPenalty deprioritizes watchers that keep failing so healthy
	// ones are checked first.
	errorPenalty = 5
)

// Config controls the scheduling loop.
type Config struct {
	Tick          time.Duration
	IntervalFloor time.Duration
	BatchLimit    int
}

func (c *Config) applyDefaults() {
	if c.Tick <= 0 {
		c.Tick = 30 * time.Second
	}
	if c.IntervalFloor <= 0 {
		c.IntervalFloor = time.Minute
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
}

// Scheduler periodically selects due watchers and enqueues one job per
// watcher. Duplicate suppression is the queue's responsibility.
type Scheduler struct {
	cfg    Config
	repo   watcher.Repository
	queue  watcher.Queue
	clock  watcher.Clock
	logger *zap.Logger
}

// New builds a Scheduler.
func New(cfg Config, repo watcher.Repository, queue watcher.Queue, clock watcher.Clock, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:    cfg,
		repo:   repo,
		queue:  queue,
		clock:  clock,
		logger: logger,
	}
}

// Run ticks until the context is cancelled. A failing pass is logged and
// retried on the next tick; the loop never aborts.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	now := s.clock.Now()
	due, err := s.repo.FindDue(ctx, now, s.cfg.IntervalFloor, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Error("find due watchers", zap.Error(err))
		return
	}

	enqueued := 0
	for _, w := range due {
		if !s.isDue(w, now) {
			continue
		}
		item := watcher.QueueItem{
			WatcherID: w.ID,
			URL:       w.URL,
			Domain:    w.Domain,
			Priority:  Priority(w, now),
			Submitted: now,
		}
		ok, err := s.queue.EnqueueUnique(ctx, item)
		if err != nil {
			s.logger.Warn("enqueue watcher", zap.String("watcher_id", w.ID), zap.Error(err))
			continue
		}
		if ok {
			enqueued++
		}
	}
	if enqueued > 0 {
		s.logger.Debug("scheduled watchers",
			zap.Int("due", len(due)),
			zap.Int("enqueued", enqueued))
	}
}

// isDue applies the per-watcher interval on top of the repository's
// global floor. The floor also clamps intervals configured below it.
func (s *Scheduler) isDue(w watcher.Watcher, now time.Time) bool {
	if w.LastCheckAt == nil {
		return true
	}
	interval := w.Interval
	if interval < s.cfg.IntervalFloor {
		interval = s.cfg.IntervalFloor
	}
	return now.Sub(*w.LastCheckAt) >= interval
}

// Priority computes the queue priority for a due watcher. Lower values
// dequeue first. Short intervals and overdue checks pull the value down,
// consecutive errors push it up.
func Priority(w watcher.Watcher, now time.Time) int {
	p := basePriority

	switch {
	case w.Interval > 0 && w.Interval <= 2*time.Minute:
		p -= 30
	case w.Interval > 0 && w.Interval <= 10*time.Minute:
		p -= 15
	}

	if w.LastCheckAt == nil {
		p -= overduePenalty
	} else if w.Interval > 0 {
		overdue := now.Sub(*w.LastCheckAt) - w.Interval
		if overdue > 0 {
			ratio := float64(overdue) / float64(w.Interval)
			if ratio > 1 {
				ratio = 1
			}
			p -= int(ratio * overduePenalty)
		}
	}

	p += errorPenalty * w.ErrorCount

	if p < minPriority {
		p = minPriority
	}
	if p > maxPriority {
		p = maxPriority
	}
	return p
}
