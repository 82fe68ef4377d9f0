// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WorkerCount sets the number of lap loader workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory lap load job queue.
	QueueSize int `koanf:"queue_size"`

	// SessionCacheSize bounds the number of memoized sessions.
	SessionCacheSize int `koanf:"session_cache_size"`

	// SessionCacheTTLSeconds expires memoized sessions; 0 keeps them until evicted.
	SessionCacheTTLSeconds int `koanf:"session_cache_ttl_seconds"`

	// DatabasePath is the SQLite telemetry store.
	DatabasePath string `koanf:"database_path"`

	// TracksFile optionally overrides or extends the built-in track catalog.
	TracksFile string `koanf:"tracks_file"`

	// MinisectorCount is the number of equal bins for tracks without a table.
	MinisectorCount int `koanf:"minisector_count"`

	// MatchTargetSamples is the query lap size after downsampling.
	MatchTargetSamples int `koanf:"match_target_samples"`

	// MatchDistanceThreshold is the along-track disagreement (metres) above
	// which the nearest spatial candidate is distrusted.
	MatchDistanceThreshold float64 `koanf:"match_distance_threshold"`

	// GapSmoothingWindow is the centred moving-average width in samples.
	GapSmoothingWindow int `koanf:"gap_smoothing_window"`

	// BrakeDecelThreshold is the per-sample speed drop marking ideal braking.
	BrakeDecelThreshold float64 `koanf:"brake_decel_threshold"`

	// Minimum-speed label cut-offs in km/h.
	LabelSlowBelow   float64 `koanf:"label_slow_below"`
	LabelMediumBelow float64 `koanf:"label_medium_below"`
	LabelFastBelow   float64 `koanf:"label_fast_below"`

	// CORSOrigins is a comma separated list of allowed origins.
	CORSOrigins string `koanf:"cors_origins"`

	// RequestTimeoutMS bounds a single analysis request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		WorkerCount:            runtime.NumCPU() * 2,
		QueueSize:              1_000,
		SessionCacheSize:       128,
		SessionCacheTTLSeconds: 3600,
		DatabasePath:           "laptrace.db",
		MinisectorCount:        12,
		MatchTargetSamples:     800,
		MatchDistanceThreshold: 500,
		GapSmoothingWindow:     15,
		BrakeDecelThreshold:    1.5,
		LabelSlowBelow:         100,
		LabelMediumBelow:       160,
		LabelFastBelow:         220,
		CORSOrigins:            "*",
		RequestTimeoutMS:       30_000,
	}
}

// Origins splits CORSOrigins into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// SessionCacheTTL returns the session cache expiration.
func (c *Config) SessionCacheTTL() time.Duration {
	return time.Duration(c.SessionCacheTTLSeconds) * time.Second
}

// RequestTimeout returns the per-request analysis timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Validate checks ranges and orderings.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("worker_count %d: %w", c.WorkerCount, ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("queue_size %d: %w", c.QueueSize, ErrInvalidConfig)
	case c.SessionCacheSize < 1:
		return fmt.Errorf("session_cache_size %d: %w", c.SessionCacheSize, ErrInvalidConfig)
	case c.SessionCacheTTLSeconds < 0:
		return fmt.Errorf("session_cache_ttl_seconds %d: %w", c.SessionCacheTTLSeconds, ErrInvalidConfig)
	case c.MinisectorCount < 1:
		return fmt.Errorf("minisector_count %d: %w", c.MinisectorCount, ErrInvalidConfig)
	case c.MatchTargetSamples < 2:
		return fmt.Errorf("match_target_samples %d: %w", c.MatchTargetSamples, ErrInvalidConfig)
	case c.MatchDistanceThreshold <= 0:
		return fmt.Errorf("match_distance_threshold %v: %w", c.MatchDistanceThreshold, ErrInvalidConfig)
	case c.GapSmoothingWindow < 1:
		return fmt.Errorf("gap_smoothing_window %d: %w", c.GapSmoothingWindow, ErrInvalidConfig)
	case c.BrakeDecelThreshold <= 0:
		return fmt.Errorf("brake_decel_threshold %v: %w", c.BrakeDecelThreshold, ErrInvalidConfig)
	case !(c.LabelSlowBelow < c.LabelMediumBelow && c.LabelMediumBelow < c.LabelFastBelow):
		return fmt.Errorf("label thresholds %v/%v/%v must increase: %w",
			c.LabelSlowBelow, c.LabelMediumBelow, c.LabelFastBelow, ErrInvalidConfig)
	case c.RequestTimeoutMS < 0:
		return fmt.Errorf("request_timeout_ms %d: %w", c.RequestTimeoutMS, ErrInvalidConfig)
	}
	return nil
}
