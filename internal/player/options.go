// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/clock"
	"github.com/ManuGH/vodplayer/internal/config"
	"github.com/ManuGH/vodplayer/internal/delivery"
	"github.com/ManuGH/vodplayer/internal/prefs"
	"github.com/ManuGH/vodplayer/internal/subtitle"
	"github.com/ManuGH/vodplayer/internal/telemetry"
)

const (
	DefaultSeekDebounce        = 400 * time.Millisecond
	DefaultSeekSettle          = 200 * time.Millisecond
	DefaultProgressiveSettle   = 500 * time.Millisecond
	DefaultMaxRecoveryAttempts = 3
	DefaultSeekStep            = 10.0
)

// Deps are the collaborators of a Controller. API and Element are required.
type Deps struct {
	API       backend.API
	Element   Element
	Streamers StreamerFactory
	Prefs     prefs.Store
	Clock     clock.Clock
	Reporter  *telemetry.Reporter
	Subtitles *subtitle.Store
}

// Options tune the controller. Zero values take the defaults.
type Options struct {
	Profile delivery.Profile

	SeekDebounce        time.Duration
	SeekSettle          time.Duration
	ProgressiveSettle   time.Duration
	HeartbeatInterval   time.Duration
	ProgressInterval    time.Duration
	MaxRecoveryAttempts int
	UpNextCountdown     time.Duration
	UpNextLead          time.Duration
	// SeekStep is the relative seek of the arrow keys, in seconds.
	SeekStep float64
	// TelemetrySnapshotPath, when set, receives the telemetry of each playback on close.
	TelemetrySnapshotPath string

	// OnUpNext is called on the controller goroutine when the next item should start.
	OnUpNext func(next backend.Episode)
	// OnExit is called on the controller goroutine when the user asks to leave.
	OnExit func()
	// OnNotice is called on the controller goroutine for every visible notice.
	OnNotice func(Notice)
}

// OptionsFromConfig maps player configuration onto Options.
func OptionsFromConfig(cfg config.PlayerConfig, profile delivery.Profile) Options {
	return Options{
		Profile:             profile,
		SeekDebounce:        cfg.SeekDebounce,
		SeekSettle:          cfg.SeekSettle,
		ProgressiveSettle:   cfg.ProgressiveSettle,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		ProgressInterval:    cfg.ProgressInterval,
		MaxRecoveryAttempts: cfg.MaxRecoveryAttempts,
		UpNextCountdown:     cfg.UpNextCountdown,
		UpNextLead:          cfg.UpNextLead,
		SeekStep:            cfg.SeekStep.Seconds(),
	}
}

func (o *Options) withDefaults() {
	if o.Profile.Name == "" {
		o.Profile = delivery.LookupProfile(delivery.ProfileBrowser)
	}
	if o.SeekDebounce <= 0 {
		o.SeekDebounce = DefaultSeekDebounce
	}
	if o.SeekSettle <= 0 {
		o.SeekSettle = DefaultSeekSettle
	}
	if o.ProgressiveSettle <= 0 {
		o.ProgressiveSettle = DefaultProgressiveSettle
	}
	if o.MaxRecoveryAttempts <= 0 {
		o.MaxRecoveryAttempts = DefaultMaxRecoveryAttempts
	}
	if o.SeekStep <= 0 {
		o.SeekStep = DefaultSeekStep
	}
}
