// Package postgres provides a Postgres-backed watcher repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopassist/watchd/internal/watcher"
)

// ErrNotFound is returned when a watcher id is unknown.
var ErrNotFound = errors.New("watcher not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// WatcherStore implements watcher.Repository on top of pgxpool.
type WatcherStore struct {
	pool dbPool
}

// NewWatcherStore creates a store using the provided pool config.
func NewWatcherStore(ctx context.Context, cfg Config) (*WatcherStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("repository.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &WatcherStore{pool: pool}, nil
}

// NewWatcherStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewWatcherStoreWithPool(pool dbPool) (*WatcherStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &WatcherStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *WatcherStore) Close() {
	s.pool.Close()
}

const watcherColumns = `id, name, url, domain, rules, interval_seconds, status,
	last_check_at, last_alert_at, error_count, snapshot`

// FindDue returns active watchers never checked or last checked before
// now-floor, never-checked first, then longest unchecked.
func (s *WatcherStore) FindDue(ctx context.Context, now time.Time, floor time.Duration, limit int) ([]watcher.Watcher, error) {
	cutoff := now.Add(-floor)
	rows, err := s.pool.Query(ctx, `SELECT `+watcherColumns+`
		FROM watchers
		WHERE status = 'active' AND (last_check_at IS NULL OR last_check_at <= $1)
		ORDER BY last_check_at ASC NULLS FIRST
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query due watchers: %w", err)
	}
	defer rows.Close()
	return scanWatchers(rows)
}

// Get fetches one watcher by id.
func (s *WatcherStore) Get(ctx context.Context, id string) (watcher.Watcher, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+watcherColumns+`
		FROM watchers WHERE id = $1`, id)
	w, err := scanWatcher(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return watcher.Watcher{}, ErrNotFound
	}
	if err != nil {
		return watcher.Watcher{}, fmt.Errorf("get watcher %s: %w", id, err)
	}
	return w, nil
}

// List returns all watchers ordered by id.
func (s *WatcherStore) List(ctx context.Context) ([]watcher.Watcher, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+watcherColumns+`
		FROM watchers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list watchers: %w", err)
	}
	defer rows.Close()
	return scanWatchers(rows)
}

// RecordOutcome applies one check's delta in a single UPDATE so the write
// is atomic per row and idempotent on replay.
func (s *WatcherStore) RecordOutcome(ctx context.Context, id string, outcome watcher.CheckOutcome) error {
	var statusArg *string
	if outcome.StatusTransition != nil {
		v := string(*outcome.StatusTransition)
		statusArg = &v
	}
	var snapshotArg []byte
	if outcome.Snapshot != nil {
		data, err := json.Marshal(outcome.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		snapshotArg = data
	}

	tag, err := s.pool.Exec(ctx, `UPDATE watchers SET
			last_check_at = $2,
			error_count = CASE WHEN $3 THEN 0 ELSE error_count + $4 END,
			status = COALESCE($5, status),
			snapshot = COALESCE($6, snapshot)
		WHERE id = $1`,
		id, outcome.CheckedAt, outcome.Success, outcome.ErrorIncrement, statusArg, snapshotArg)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatcher(row rowScanner) (watcher.Watcher, error) {
	var (
		w               watcher.Watcher
		rulesJSON       []byte
		intervalSeconds int64
		status          string
		snapshotJSON    []byte
	)
	err := row.Scan(&w.ID, &w.Name, &w.URL, &w.Domain, &rulesJSON, &intervalSeconds,
		&status, &w.LastCheckAt, &w.LastAlertAt, &w.ErrorCount, &snapshotJSON)
	if err != nil {
		return watcher.Watcher{}, err
	}
	w.Interval = time.Duration(intervalSeconds) * time.Second
	w.Status = watcher.Status(status)
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &w.Rules); err != nil {
			return watcher.Watcher{}, fmt.Errorf("decode rules: %w", err)
		}
	}
	if len(snapshotJSON) > 0 {
		var snap watcher.ProductSnapshot
		if err := json.Unmarshal(snapshotJSON, &snap); err != nil {
			return watcher.Watcher{}, fmt.Errorf("decode snapshot: %w", err)
		}
		w.LastSnapshot = &snap
	}
	return w, nil
}

func scanWatchers(rows pgx.Rows) ([]watcher.Watcher, error) {
	var out []watcher.Watcher
	for rows.Next() {
		w, err := scanWatcher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watcher row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watcher rows: %w", err)
	}
	return out, nil
}
