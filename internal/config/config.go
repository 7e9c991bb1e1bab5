// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Throttle   ThrottleConfig   `mapstructure:"throttle"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs the scheduling loop.
type SchedulerConfig struct {
	TickSeconds          int `mapstructure:"tick_seconds"`
	IntervalFloorSeconds int `mapstructure:"interval_floor_seconds"`
	BatchLimit           int `mapstructure:"batch_limit"`
}

// WorkersConfig sizes the worker pool and the job queue.
type WorkersConfig struct {
	Count      int `mapstructure:"count"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// ThrottleConfig governs per-domain politeness and the global in-flight cap.
type ThrottleConfig struct {
	BaseDelaySeconds int `mapstructure:"base_delay_seconds"`
	Multiplier       int `mapstructure:"multiplier"`
	MaxDelaySeconds  int `mapstructure:"max_delay_seconds"`
	MaxInFlight      int `mapstructure:"max_in_flight"`
}

// FetchConfig configures the conditional page fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
}

// RepositoryConfig selects and configures watcher persistence.
type RepositoryConfig struct {
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinOpenConns int    `mapstructure:"min_open_conns"`
}

// AlertsConfig selects the alert sink.
type AlertsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects where unparseable page bodies go.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.tick_seconds", 30)
	v.SetDefault("scheduler.interval_floor_seconds", 60)
	v.SetDefault("scheduler.batch_limit", 100)
	v.SetDefault("workers.count", 5)
	v.SetDefault("workers.queue_depth", 256)
	v.SetDefault("throttle.base_delay_seconds", 5)
	v.SetDefault("throttle.multiplier", 2)
	v.SetDefault("throttle.max_delay_seconds", 300)
	v.SetDefault("throttle.max_in_flight", 10)
	v.SetDefault("fetch.user_agent", "watchd/1.0 (+https://github.com/shopassist/watchd)")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("repository.provider", "memory")
	v.SetDefault("alerts.provider", "log")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be > 0")
	}
	if c.Scheduler.IntervalFloorSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_floor_seconds must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Workers.QueueDepth <= 0 {
		return fmt.Errorf("workers.queue_depth must be > 0")
	}
	if c.Throttle.BaseDelaySeconds <= 0 {
		return fmt.Errorf("throttle.base_delay_seconds must be > 0")
	}
	if c.Throttle.MaxDelaySeconds < c.Throttle.BaseDelaySeconds {
		return fmt.Errorf("throttle.max_delay_seconds must be >= throttle.base_delay_seconds")
	}
	if c.Throttle.MaxInFlight <= 0 {
		return fmt.Errorf("throttle.max_in_flight must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.Repository.Provider {
	case "memory":
	case "postgres":
		if c.Repository.DSN == "" {
			return fmt.Errorf("repository.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("repository.provider must be memory or postgres, got %q", c.Repository.Provider)
	}
	switch c.Alerts.Provider {
	case "log":
	case "pubsub":
		if c.Alerts.ProjectID == "" || c.Alerts.TopicName == "" {
			return fmt.Errorf("alerts.project_id and alerts.topic_name must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("alerts.provider must be log or pubsub, got %q", c.Alerts.Provider)
	}
	switch c.Archive.Provider {
	case "noop":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("archive.provider must be noop, local or gcs, got %q", c.Archive.Provider)
	}
	return nil
}

// SchedulerTick returns the tick as a duration.
func (c Config) SchedulerTick() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}

// IntervalFloor returns the minimum effective watcher interval.
func (c Config) IntervalFloor() time.Duration {
	return time.Duration(c.Scheduler.IntervalFloorSeconds) * time.Second
}

// FetchTimeout returns the per-request fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BaseDelay returns the throttle base delay.
func (c Config) BaseDelay() time.Duration {
	return time.Duration(c.Throttle.BaseDelaySeconds) * time.Second
}

// MaxDelay returns the throttle delay ceiling.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Throttle.MaxDelaySeconds) * time.Second
}
