// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment key read by the loader.
const EnvPrefix = "VODPLAYER_"

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Backend: BackendConfig{
			BaseURL:             "http://localhost:8080",
			Timeout:             15 * time.Second,
			MetricRatePerSecond: 5,
		},
		Player: PlayerConfig{
			SeekDebounce:        400 * time.Millisecond,
			SeekSettle:          200 * time.Millisecond,
			ProgressiveSettle:   500 * time.Millisecond,
			HeartbeatInterval:   15 * time.Second,
			ProgressInterval:    10 * time.Second,
			MaxRecoveryAttempts: 3,
			UpNextCountdown:     10 * time.Second,
			UpNextLead:          30 * time.Second,
			SeekStep:            10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Capacity:     200,
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		Preferences: PreferencesConfig{
			Backend:    "memory",
			SQLitePath: "vodplayer.db",
			RedisAddr:  "localhost:6379",
		},
		Log:         LogConfig{Level: "info"},
		MetricsAddr: ":9464",
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	var errs []error
	dur := func(dst *time.Duration, field, raw string) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}
	str := func(dst *string, raw string) {
		if raw != "" {
			*dst = raw
		}
	}

	if b := f.Backend; b != nil {
		str(&cfg.Backend.BaseURL, b.BaseURL)
		str(&cfg.Backend.Token, b.Token)
		dur(&cfg.Backend.Timeout, "backend.timeout", b.Timeout)
		if b.MetricRate > 0 {
			cfg.Backend.MetricRatePerSecond = b.MetricRate
		}
	}
	if p := f.Player; p != nil {
		dur(&cfg.Player.SeekDebounce, "player.seekDebounce", p.SeekDebounce)
		dur(&cfg.Player.SeekSettle, "player.seekSettle", p.SeekSettle)
		dur(&cfg.Player.ProgressiveSettle, "player.progressiveSettle", p.ProgressiveSettle)
		dur(&cfg.Player.HeartbeatInterval, "player.heartbeatInterval", p.HeartbeatInterval)
		dur(&cfg.Player.ProgressInterval, "player.progressInterval", p.ProgressInterval)
		dur(&cfg.Player.UpNextCountdown, "player.upNextCountdown", p.UpNextCountdown)
		dur(&cfg.Player.UpNextLead, "player.upNextLead", p.UpNextLead)
		dur(&cfg.Player.SeekStep, "player.seekStep", p.SeekStep)
		if p.MaxRecoveryAttempts != nil {
			cfg.Player.MaxRecoveryAttempts = *p.MaxRecoveryAttempts
		}
	}
	if t := f.Telemetry; t != nil {
		if t.Capacity != nil {
			cfg.Telemetry.Capacity = *t.Capacity
		}
		if t.Enabled != nil {
			cfg.Telemetry.Enabled = *t.Enabled
		}
		if t.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *t.SamplingRate
		}
		str(&cfg.Telemetry.SnapshotPath, t.SnapshotPath)
		str(&cfg.Telemetry.Exporter, t.Exporter)
		str(&cfg.Telemetry.Endpoint, t.Endpoint)
		str(&cfg.Telemetry.Environment, t.Environment)
	}
	if p := f.Preferences; p != nil {
		str(&cfg.Preferences.Backend, p.Backend)
		str(&cfg.Preferences.SQLitePath, p.SQLitePath)
		str(&cfg.Preferences.RedisAddr, p.RedisAddr)
		if p.RedisDB != nil {
			cfg.Preferences.RedisDB = *p.RedisDB
		}
	}
	if lg := f.Log; lg != nil {
		str(&cfg.Log.Level, lg.Level)
		str(&cfg.Log.File, lg.File)
	}
	str(&cfg.ClientProfile, f.ClientProfile)
	str(&cfg.MetricsAddr, f.MetricsAddr)

	return errors.Join(errs...)
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Backend.BaseURL = l.envString("BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Token = l.envString("BACKEND_TOKEN", cfg.Backend.Token)
	cfg.Backend.Timeout = l.envDuration("BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.MetricRatePerSecond = l.envFloat("METRIC_RATE", cfg.Backend.MetricRatePerSecond)

	cfg.Player.SeekDebounce = l.envDuration("SEEK_DEBOUNCE", cfg.Player.SeekDebounce)
	cfg.Player.SeekSettle = l.envDuration("SEEK_SETTLE", cfg.Player.SeekSettle)
	cfg.Player.ProgressiveSettle = l.envDuration("PROGRESSIVE_SETTLE", cfg.Player.ProgressiveSettle)
	cfg.Player.HeartbeatInterval = l.envDuration("HEARTBEAT_INTERVAL", cfg.Player.HeartbeatInterval)
	cfg.Player.ProgressInterval = l.envDuration("PROGRESS_INTERVAL", cfg.Player.ProgressInterval)
	cfg.Player.MaxRecoveryAttempts = l.envInt("MAX_RECOVERY_ATTEMPTS", cfg.Player.MaxRecoveryAttempts)
	cfg.Player.UpNextCountdown = l.envDuration("UPNEXT_COUNTDOWN", cfg.Player.UpNextCountdown)
	cfg.Player.UpNextLead = l.envDuration("UPNEXT_LEAD", cfg.Player.UpNextLead)
	cfg.Player.SeekStep = l.envDuration("SEEK_STEP", cfg.Player.SeekStep)

	cfg.Telemetry.Capacity = l.envInt("TELEMETRY_CAPACITY", cfg.Telemetry.Capacity)
	cfg.Telemetry.SnapshotPath = l.envString("TELEMETRY_SNAPSHOT", cfg.Telemetry.SnapshotPath)
	cfg.Telemetry.Enabled = l.envBool("TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.Preferences.Backend = l.envString("PREFS_BACKEND", cfg.Preferences.Backend)
	cfg.Preferences.SQLitePath = l.envString("PREFS_SQLITE_PATH", cfg.Preferences.SQLitePath)
	cfg.Preferences.RedisAddr = l.envString("PREFS_REDIS_ADDR", cfg.Preferences.RedisAddr)
	cfg.Preferences.RedisDB = l.envInt("PREFS_REDIS_DB", cfg.Preferences.RedisDB)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = l.envString("LOG_FILE", cfg.Log.File)

	cfg.ClientProfile = l.envString("CLIENT_PROFILE", cfg.ClientProfile)
	cfg.MetricsAddr = l.envString("METRICS_ADDR", cfg.MetricsAddr)
}
