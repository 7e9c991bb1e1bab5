// Package throttle enforces per-domain request spacing with exponential
// backoff, plus a process-wide cap on concurrent in-flight fetches.
package throttle

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopassist/watchd/internal/telemetry"
)

const shardCount = 32

// Config controls coordinator behavior.
type Config struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	ErrorCap    int
	MaxInFlight int
	IdleExpiry  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 5 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Minute
	}
	if c.ErrorCap <= 0 {
		c.ErrorCap = 10
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 10
	}
	if c.IdleExpiry <= 0 {
		c.IdleExpiry = time.Hour
	}
}

type entry struct {
	lastAttempt time.Time
	errors      int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Coordinator tracks per-domain pacing state. Domains hash to shards so
// unrelated domains never contend on one lock; all updates to a domain's
// entry are read-modify-write under its shard lock.
type Coordinator struct {
	cfg    Config
	shards [shardCount]*shard
	sem    chan struct{}
	now    func() time.Time
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxInFlight),
		now: func() time.Time { return time.Now().UTC() },
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return c
}

func (c *Coordinator) shardFor(domain string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain))
	return c.shards[h.Sum32()%shardCount]
}

// delayFor computes the required spacing for an error count: base * mult^n
// clamped to [base, max].
func (c *Coordinator) delayFor(errors int) time.Duration {
	if errors > c.cfg.ErrorCap {
		errors = c.cfg.ErrorCap
	}
	d := float64(c.cfg.BaseDelay)
	for i := 0; i < errors; i++ {
		d *= c.cfg.Multiplier
		if d >= float64(c.cfg.MaxDelay) {
			return c.cfg.MaxDelay
		}
	}
	if d < float64(c.cfg.BaseDelay) {
		return c.cfg.BaseDelay
	}
	return time.Duration(d)
}

// Reserve answers "may this domain be requested now". A zero return means the
// caller is admitted and the attempt timestamp has been stamped; a positive
// return is the remaining wait. Admission and stamping happen atomically so
// two callers can never both compute "proceed" from the same stale state.
func (c *Coordinator) Reserve(domain string) time.Duration {
	s := c.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.now()
	e, ok := s.entries[domain]
	if !ok {
		s.entries[domain] = &entry{lastAttempt: now}
		return 0
	}
	required := c.delayFor(e.errors)
	elapsed := now.Sub(e.lastAttempt)
	if elapsed >= required {
		e.lastAttempt = now
		return 0
	}
	return required - elapsed
}

// Wait blocks until the domain may be requested or the context ends. The
// loop re-reserves after each sleep because another worker may have taken
// the slot in between.
func (c *Coordinator) Wait(ctx context.Context, domain string) error {
	start := c.now()
	for {
		wait := c.Reserve(domain)
		if wait <= 0 {
			if waited := c.now().Sub(start); waited > time.Millisecond {
				telemetry.ObserveThrottleDelay(domain, waited)
			}
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("throttle wait canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// RecordSuccess resets the domain's consecutive error count.
func (c *Coordinator) RecordSuccess(domain string) {
	s := c.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[domain]
	if !ok {
		e = &entry{}
		s.entries[domain] = e
	}
	e.lastAttempt = c.now()
	e.errors = 0
}

// RecordFailure increments the domain's consecutive error count, capped so
// backoff growth stays bounded.
func (c *Coordinator) RecordFailure(domain string) {
	s := c.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[domain]
	if !ok {
		e = &entry{}
		s.entries[domain] = e
	}
	e.lastAttempt = c.now()
	if e.errors < c.cfg.ErrorCap {
		e.errors++
	}
}

// Errors returns the current consecutive error count for a domain.
func (c *Coordinator) Errors(domain string) int {
	s := c.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[domain]; ok {
		return e.errors
	}
	return 0
}

// Acquire takes a slot from the global in-flight semaphore.
func (c *Coordinator) Acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("in-flight slot acquire canceled: %w", ctx.Err())
	}
}

// Release returns a slot to the global in-flight semaphore.
func (c *Coordinator) Release() {
	select {
	case <-c.sem:
	default:
	}
}

// Run expires idle domain entries until the context finishes. Unpolled
// domains need no throttling memory.
func (c *Coordinator) Run(ctx context.Context) {
	interval := c.cfg.IdleExpiry / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.expire(c.now().Add(-c.cfg.IdleExpiry))
		}
	}
}

func (c *Coordinator) expire(cutoff time.Time) {
	for _, s := range c.shards {
		s.mu.Lock()
		for domain, e := range s.entries {
			if e.lastAttempt.Before(cutoff) {
				delete(s.entries, domain)
			}
		}
		s.mu.Unlock()
	}
}
