// Package app initializes and holds long-lived services, acting as the
// dependency injection container for the daemon.
package app

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/alert"
	"github.com/shopassist/watchd/internal/archive"
	"github.com/shopassist/watchd/internal/clock/system"
	"github.com/shopassist/watchd/internal/config"
	"github.com/shopassist/watchd/internal/extract"
	"github.com/shopassist/watchd/internal/fetch"
	"github.com/shopassist/watchd/internal/id/uuid"
	qmemory "github.com/shopassist/watchd/internal/queue/memory"
	smemory "github.com/shopassist/watchd/internal/storage/memory"
	"github.com/shopassist/watchd/internal/storage/postgres"
	"github.com/shopassist/watchd/internal/throttle"
	"github.com/shopassist/watchd/internal/watcher"
)

// App holds the shared services built from configuration. Initialized once
// at startup and torn down with Close.
type App struct {
	Logger     *zap.Logger
	Repository watcher.Repository
	Queue      *qmemory.Queue
	Throttle   *throttle.Coordinator
	Fetcher    *fetch.Client
	Adapters   *extract.Registry
	Sink       watcher.AlertSink
	Archive    archive.Provider
	Clock      watcher.Clock
	IDs        *uuid.Generator

	closers []func()
}

// New builds the service graph. It fails fast when any provider cannot be
// initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Logger: logger,
		Clock:  system.New(),
		IDs:    uuid.NewUUIDGenerator(),
	}

	repo, err := a.buildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Repository = repo

	sink, err := a.buildSink(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sink = sink

	arc, err := a.buildArchive(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Archive = arc

	a.Queue = qmemory.NewQueue(cfg.Workers.QueueDepth)
	a.Throttle = throttle.New(throttle.Config{
		BaseDelay:   cfg.BaseDelay(),
		Multiplier:  float64(cfg.Throttle.Multiplier),
		MaxDelay:    cfg.MaxDelay(),
		MaxInFlight: cfg.Throttle.MaxInFlight,
	})
	a.Fetcher = fetch.New(fetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		MaxBody:   cfg.Fetch.MaxBodyBytes,
	})
	a.Adapters = extract.NewRegistry(extract.NewGenericAdapter(a.Clock))

	return a, nil
}

func (a *App) buildRepository(ctx context.Context, cfg config.Config) (watcher.Repository, error) {
	switch cfg.Repository.Provider {
	case "postgres":
		a.Logger.Info("connecting to postgres")
		store, err := postgres.NewWatcherStore(ctx, postgres.Config{
			DSN:             cfg.Repository.DSN,
			MaxConns:        int32(cfg.Repository.MaxOpenConns),
			MinConns:        int32(cfg.Repository.MinOpenConns),
			MaxConnLifetime: time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres repository: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		a.Logger.Info("using in-memory watcher repository")
		return smemory.NewWatcherStore(), nil
	default:
		return nil, fmt.Errorf("unknown repository provider: %s", cfg.Repository.Provider)
	}
}

func (a *App) buildSink(ctx context.Context, cfg config.Config) (watcher.AlertSink, error) {
	switch cfg.Alerts.Provider {
	case "pubsub":
		a.Logger.Info("connecting to pub/sub",
			zap.String("project", cfg.Alerts.ProjectID),
			zap.String("topic", cfg.Alerts.TopicName))
		client, err := pubsub.NewClient(ctx, cfg.Alerts.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return alert.NewPubSubSink(client.Publisher(cfg.Alerts.TopicName))
	case "log":
		return alert.NewLogSink(a.Logger.Named("alerts")), nil
	default:
		return nil, fmt.Errorf("unknown alerts provider: %s", cfg.Alerts.Provider)
	}
}

func (a *App) buildArchive(ctx context.Context, cfg config.Config) (archive.Provider, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		a.Logger.Info("using gcs page archive", zap.String("bucket", cfg.Archive.GCSBucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize storage client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return archive.NewGCS(client, archive.GCSConfig{Bucket: cfg.Archive.GCSBucket})
	case "local":
		a.Logger.Info("using local page archive", zap.String("dir", cfg.Archive.BaseDir))
		return archive.NewLocal(archive.LocalConfig{BaseDir: cfg.Archive.BaseDir})
	case "noop":
		return archive.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

// Close shuts down held services in reverse initialization order.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
