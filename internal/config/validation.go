// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrUnknownConfigField marks strict YAML failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Validate checks the effective configuration. All failures are reported together.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("backend.baseUrl %q must be an absolute URL", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout <= 0 {
		add("backend.timeout must be positive")
	}
	if cfg.Backend.MetricRatePerSecond <= 0 {
		add("backend.metricRatePerSecond must be positive")
	}

	positive := map[string]time.Duration{
		"player.seekDebounce":      cfg.Player.SeekDebounce,
		"player.seekSettle":        cfg.Player.SeekSettle,
		"player.progressiveSettle": cfg.Player.ProgressiveSettle,
		"player.heartbeatInterval": cfg.Player.HeartbeatInterval,
		"player.progressInterval":  cfg.Player.ProgressInterval,
		"player.upNextCountdown":   cfg.Player.UpNextCountdown,
		"player.seekStep":          cfg.Player.SeekStep,
	}
	for name, d := range positive {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if cfg.Player.UpNextLead < 0 {
		add("player.upNextLead must not be negative")
	}
	if cfg.Player.MaxRecoveryAttempts < 0 || cfg.Player.MaxRecoveryAttempts > 10 {
		add("player.maxRecoveryAttempts must be within [0, 10], got %d", cfg.Player.MaxRecoveryAttempts)
	}

	if cfg.Telemetry.Capacity < 1 {
		add("telemetry.capacity must be at least 1")
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.samplingRate must be within [0, 1]")
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter != "grpc" && cfg.Telemetry.Exporter != "http" {
		add("telemetry.exporter %q unsupported (grpc, http)", cfg.Telemetry.Exporter)
	}

	switch cfg.Preferences.Backend {
	case "memory":
	case "sqlite":
		if cfg.Preferences.SQLitePath == "" {
			add("preferences.sqlitePath required for sqlite backend")
		}
	case "redis":
		if cfg.Preferences.RedisAddr == "" {
			add("preferences.redisAddr required for redis backend")
		}
	default:
		add("preferences.backend %q unsupported (memory, sqlite, redis)", cfg.Preferences.Backend)
	}

	switch cfg.ClientProfile {
	case "", "browser", "chrome", "firefox", "safari", "native":
	default:
		add("clientProfile %q unknown", cfg.ClientProfile)
	}

	return errors.Join(errs...)
}
