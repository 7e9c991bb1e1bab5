// Package processor runs a single watcher check end to end: throttle
// gate, conditional fetch, parse, rule evaluation, persistence, alerts.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/archive"
	"github.com/shopassist/watchd/internal/extract"
	"github.com/shopassist/watchd/internal/fetch"
	"github.com/shopassist/watchd/internal/rules"
	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// Outcome labels how a check ended.
type Outcome string

const (
	OutcomeNotActive   Outcome = "not_active"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeSuccess     Outcome = "success"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeParseFailed Outcome = "parse_failed"
	OutcomeAborted     Outcome = "aborted"
)

// CheckResult summarizes one check.
type CheckResult struct {
	Outcome Outcome
	Alerts  int
}

// Fetcher performs the conditional GET for a product page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Result, error)
}

// AdapterResolver picks the parse adapter for a domain.
type AdapterResolver interface {
	Resolve(domain string) extract.Adapter
}

// Gate is the per-domain throttle plus the global in-flight limit.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
	Wait(ctx context.Context, domain string) error
	RecordSuccess(domain string)
	RecordFailure(domain string)
}

// IDGenerator mints alert event ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Processor checks one watcher at a time. Safe for concurrent use.
type Processor struct {
	repo     watcher.Repository
	fetcher  Fetcher
	adapters AdapterResolver
	gate     Gate
	sink     watcher.AlertSink
	archive  archive.Provider
	ids      IDGenerator
	clock    watcher.Clock
	logger   *zap.Logger
}

// New builds a Processor.
func New(
	repo watcher.Repository,
	fetcher Fetcher,
	adapters AdapterResolver,
	gate Gate,
	sink watcher.AlertSink,
	arc archive.Provider,
	ids IDGenerator,
	clock watcher.Clock,
	logger *zap.Logger,
) *Processor {
	if arc == nil {
		arc = archive.Noop{}
	}
	return &Processor{
		repo:     repo,
		fetcher:  fetcher,
		adapters: adapters,
		gate:     gate,
		sink:     sink,
		archive:  arc,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

// Check runs the full pipeline for one watcher. A watcher that is no
// longer active is skipped without touching the throttle or the network;
// it may have been paused between scheduling and dispatch.
func (p *Processor) Check(ctx context.Context, w watcher.Watcher) (CheckResult, error) {
	if w.Status != watcher.StatusActive {
		p.logger.Debug("skipping inactive watcher",
			zap.String("watcher_id", w.ID),
			zap.String("status", string(w.Status)))
		return CheckResult{Outcome: OutcomeNotActive}, nil
	}

	domain := w.Domain
	if domain == "" {
		d, err := watcher.NormalizeDomain(w.URL)
		if err != nil {
			return CheckResult{Outcome: OutcomeFetchFailed}, p.recordFailure(ctx, w, fmt.Errorf("watcher url: %w", err))
		}
		domain = d
	}

	if err := p.gate.Acquire(ctx); err != nil {
		return CheckResult{Outcome: OutcomeAborted}, err
	}
	defer p.gate.Release()

	if err := p.gate.Wait(ctx, domain); err != nil {
		return CheckResult{Outcome: OutcomeAborted}, err
	}

	now := p.clock.Now()
	res, err := p.fetcher.Fetch(ctx, w.URL)
	if err != nil {
		p.gate.RecordFailure(domain)
		telemetry.ObserveCheck(domain, string(OutcomeFetchFailed))
		var failure *fetch.Failure
		if errors.As(err, &failure) {
			p.logger.Warn("fetch failed",
				zap.String("watcher_id", w.ID),
				zap.String("domain", domain),
				zap.String("kind", string(failure.Kind)),
				zap.Int("status", failure.StatusCode))
		}
		return CheckResult{Outcome: OutcomeFetchFailed}, p.recordFailure(ctx, w, err)
	}

	if res.Unchanged {
		p.gate.RecordSuccess(domain)
		telemetry.ObserveCheck(domain, string(OutcomeUnchanged))
		outcome := watcher.CheckOutcome{Success: true, CheckedAt: now}
		if err := p.repo.RecordOutcome(ctx, w.ID, outcome); err != nil {
			return CheckResult{Outcome: OutcomeUnchanged}, fmt.Errorf("record unchanged check: %w", err)
		}
		return CheckResult{Outcome: OutcomeUnchanged}, nil
	}

	snap := p.adapters.Resolve(domain).Parse(res.Body, w.URL)
	if !snap.OK {
		// The page was served fine, so the domain is healthy even
		// though the adapter could not read it.
		p.gate.RecordSuccess(domain)
		telemetry.ObserveCheck(domain, string(OutcomeParseFailed))
		p.archiveBody(ctx, w, domain, now.Unix(), res.Body)
		p.logger.Warn("parse failed",
			zap.String("watcher_id", w.ID),
			zap.String("domain", domain),
			zap.String("reason", snap.Error))
		return CheckResult{Outcome: OutcomeParseFailed},
			p.recordFailure(ctx, w, fmt.Errorf("parse page: %s", snap.Error))
	}

	p.gate.RecordSuccess(domain)

	events := rules.Evaluate(w, snap, w.LastSnapshot, now)
	outcome := watcher.CheckOutcome{Success: true, Snapshot: &snap, CheckedAt: now}
	if err := p.repo.RecordOutcome(ctx, w.ID, outcome); err != nil {
		return CheckResult{Outcome: OutcomeSuccess}, fmt.Errorf("record check outcome: %w", err)
	}

	for i := range events {
		if id, idErr := p.ids.NewID(); idErr == nil {
			events[i].ID = id
		}
		if err := p.sink.Emit(ctx, events[i]); err != nil {
			p.logger.Error("emit alert",
				zap.String("watcher_id", w.ID),
				zap.String("type", string(events[i].Type)),
				zap.Error(err))
		}
	}

	telemetry.ObserveCheck(domain, string(OutcomeSuccess))
	return CheckResult{Outcome: OutcomeSuccess, Alerts: len(events)}, nil
}

// recordFailure persists one failed check and flips the watcher to the
// error status once the consecutive failure count reaches the threshold.
func (p *Processor) recordFailure(ctx context.Context, w watcher.Watcher, cause error) error {
	outcome := watcher.CheckOutcome{
		Success:        false,
		ErrorIncrement: 1,
		CheckedAt:      p.clock.Now(),
	}
	if w.ErrorCount+1 >= watcher.ErrorThreshold {
		errStatus := watcher.StatusError
		outcome.StatusTransition = &errStatus
	}
	if err := p.repo.RecordOutcome(ctx, w.ID, outcome); err != nil {
		return fmt.Errorf("record failed check: %w (cause: %v)", err, cause)
	}
	return cause
}

func (p *Processor) archiveBody(ctx context.Context, w watcher.Watcher, domain string, unix int64, body []byte) {
	if len(body) == 0 {
		return
	}
	path := fmt.Sprintf("%s/%s-%d.html", domain, w.ID, unix)
	uri, err := p.archive.Put(ctx, path, "text/html", body)
	if err != nil {
		p.logger.Warn("archive page body", zap.String("watcher_id", w.ID), zap.Error(err))
		return
	}
	if uri != "" {
		p.logger.Info("archived unparseable page",
			zap.String("watcher_id", w.ID),
			zap.String("uri", uri))
	}
}
