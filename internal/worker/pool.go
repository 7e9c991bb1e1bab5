// Package worker runs the check execution loop.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/processor"
	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// Checker runs one watcher check. Implemented by processor.Processor.
type Checker interface {
	Check(ctx context.Context, w watcher.Watcher) (processor.CheckResult, error)
}

// Config controls Pool behavior.
type Config struct {
	Workers int
}

// Pool consumes queue items with a fixed set of goroutines.
type Pool struct {
	cfg     Config
	queue   watcher.Queue
	repo    watcher.Repository
	checker Checker
	logger  *zap.Logger
}

// New constructs a Pool.
func New(cfg Config, queue watcher.Queue, repo watcher.Repository, checker Checker, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Pool{
		cfg:     cfg,
		queue:   queue,
		repo:    repo,
		checker: checker,
		logger:  logger,
	}
}

// Run blocks until the context finishes and all workers have drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			return
		}
		p.process(ctx, logger, item)
	}
}

// process re-reads the watcher so the check sees state changes made after
// scheduling, then releases the queue reservation whatever the outcome.
func (p *Pool) process(ctx context.Context, logger *zap.Logger, item watcher.QueueItem) {
	defer p.queue.Done(item.WatcherID)

	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	w, err := p.repo.Get(ctx, item.WatcherID)
	if err != nil {
		logger.Warn("load watcher", zap.String("watcher_id", item.WatcherID), zap.Error(err))
		return
	}

	res, err := p.checker.Check(ctx, w)
	if err != nil {
		logger.Warn("check failed",
			zap.String("watcher_id", w.ID),
			zap.String("domain", w.Domain),
			zap.String("outcome", string(res.Outcome)),
			zap.Error(err))
		return
	}
	logger.Debug("check done",
		zap.String("watcher_id", w.ID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("alerts", res.Alerts))
}
