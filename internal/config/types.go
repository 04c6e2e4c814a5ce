// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the effective runtime configuration after defaults, file and env merge.
type AppConfig struct {
	Version string

	Backend     BackendConfig
	Player      PlayerConfig
	Telemetry   TelemetryConfig
	Preferences PreferencesConfig
	Log         LogConfig

	// ClientProfile overrides the delivery profile inferred from the user agent.
	ClientProfile string
	MetricsAddr   string
}

type BackendConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// MetricRatePerSecond bounds forwarded client metrics.
	MetricRatePerSecond float64
}

// PlayerConfig holds every timing knob of the playback controller.
type PlayerConfig struct {
	SeekDebounce        time.Duration
	SeekSettle          time.Duration
	ProgressiveSettle   time.Duration
	HeartbeatInterval   time.Duration
	ProgressInterval    time.Duration
	MaxRecoveryAttempts int
	UpNextCountdown     time.Duration
	UpNextLead          time.Duration
	SeekStep            time.Duration
}

type TelemetryConfig struct {
	Capacity     int
	SnapshotPath string
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

type PreferencesConfig struct {
	Backend    string // memory, sqlite, redis
	SQLitePath string
	RedisAddr  string
	RedisDB    int
}

type LogConfig struct {
	Level string
	File  string
}

// FileConfig mirrors the YAML file layout. Pointer fields distinguish unset from zero.
type FileConfig struct {
	Backend *struct {
		BaseURL    string  `yaml:"baseUrl"`
		Token      string  `yaml:"token"`
		Timeout    string  `yaml:"timeout"`
		MetricRate float64 `yaml:"metricRatePerSecond"`
	} `yaml:"backend"`

	Player *struct {
		SeekDebounce        string `yaml:"seekDebounce"`
		SeekSettle          string `yaml:"seekSettle"`
		ProgressiveSettle   string `yaml:"progressiveSettle"`
		HeartbeatInterval   string `yaml:"heartbeatInterval"`
		ProgressInterval    string `yaml:"progressInterval"`
		MaxRecoveryAttempts *int   `yaml:"maxRecoveryAttempts"`
		UpNextCountdown     string `yaml:"upNextCountdown"`
		UpNextLead          string `yaml:"upNextLead"`
		SeekStep            string `yaml:"seekStep"`
	} `yaml:"player"`

	Telemetry *struct {
		Capacity     *int     `yaml:"capacity"`
		SnapshotPath string   `yaml:"snapshotPath"`
		Enabled      *bool    `yaml:"enabled"`
		Exporter     string   `yaml:"exporter"`
		Endpoint     string   `yaml:"endpoint"`
		SamplingRate *float64 `yaml:"samplingRate"`
		Environment  string   `yaml:"environment"`
	} `yaml:"telemetry"`

	Preferences *struct {
		Backend    string `yaml:"backend"`
		SQLitePath string `yaml:"sqlitePath"`
		RedisAddr  string `yaml:"redisAddr"`
		RedisDB    *int   `yaml:"redisDb"`
	} `yaml:"preferences"`

	Log *struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	ClientProfile string `yaml:"clientProfile"`
	MetricsAddr   string `yaml:"metricsAddr"`
}
