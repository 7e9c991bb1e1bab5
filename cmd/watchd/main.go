// Package main wires together the watchd daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/api"
	"github.com/shopassist/watchd/internal/app"
	"github.com/shopassist/watchd/internal/config"
	"github.com/shopassist/watchd/internal/logging"
	"github.com/shopassist/watchd/internal/processor"
	"github.com/shopassist/watchd/internal/scheduler"
	"github.com/shopassist/watchd/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		os.Exit(1)
	}
	defer services.Close()

	proc := processor.New(
		services.Repository,
		services.Fetcher,
		services.Adapters,
		services.Throttle,
		services.Sink,
		services.Archive,
		services.IDs,
		services.Clock,
		logger.Named("processor"),
	)
	sched := scheduler.New(scheduler.Config{
		Tick:          cfg.SchedulerTick(),
		IntervalFloor: cfg.IntervalFloor(),
		BatchLimit:    cfg.Scheduler.BatchLimit,
	}, services.Repository, services.Queue, services.Clock, logger.Named("scheduler"))
	pool := worker.New(worker.Config{Workers: cfg.Workers.Count},
		services.Queue, services.Repository, proc, logger.Named("worker"))

	apiServer := api.NewServer(services.Repository, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		services.Throttle.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		logger.Info("scheduler started")
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		logger.Info("worker pool started", zap.Int("workers", cfg.Workers.Count))
		pool.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	services.Queue.Close()
	wg.Wait()
	logger.Info("shutdown complete")
}
