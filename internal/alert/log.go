// Package alert contains sinks that deliver alert events downstream.
package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// LogSink writes alert events to the structured log. It is the default
// sink for local development.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event at info level.
func (s *LogSink) Emit(_ context.Context, event watcher.AlertEvent) error {
	telemetry.ObserveAlert(string(event.Type))
	s.logger.Info("alert",
		zap.String("alert_id", event.ID),
		zap.String("watcher_id", event.WatcherID),
		zap.String("type", string(event.Type)),
		zap.String("title", event.Title),
		zap.String("url", event.URL),
		zap.String("message", event.Message),
		zap.Time("at", event.At),
	)
	return nil
}
