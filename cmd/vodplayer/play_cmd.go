// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/vodplayer/internal/clock"
	"github.com/ManuGH/vodplayer/internal/config"
	"github.com/ManuGH/vodplayer/internal/delivery"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/player"
	"github.com/ManuGH/vodplayer/internal/prefs"
	"github.com/ManuGH/vodplayer/internal/telemetry"
)

// runPlay drives a headless controller against the backend: it opens an item,
// lets playback run for --for, optionally seeks, then closes and prints the
// telemetry summary. Segments are not fetched; the element only keeps time.
func runPlay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vodplayer play", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)
	id := fs.String("id", "", "media item id")
	resume := fs.Float64("resume", -1, "explicit resume position in seconds; negative uses stored progress")
	runFor := fs.Duration("for", 30*time.Second, "how long to play")
	seekTo := fs.Float64("seek", -1, "absolute seek issued halfway through; negative disables")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *id == "" {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 2
	}

	_, cfg, err := common.loadConfig(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	api, err := newBackend(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	store, err := prefs.NewStore(prefs.Options{
		Backend:    cfg.Preferences.Backend,
		SQLitePath: cfg.Preferences.SQLitePath,
		RedisAddr:  cfg.Preferences.RedisAddr,
		RedisDB:    cfg.Preferences.RedisDB,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, tracingConfig(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "Telemetry error: %v\n", err)
		return 1
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	item, err := api.FetchMedia(ctx, *id)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	el := newHeadlessElement()
	reporter := telemetry.NewReporter(clock.Real{},
		telemetry.WithCapacity(cfg.Telemetry.Capacity),
		telemetry.WithTracer(telemetry.Tracer(telemetry.InstrumentationName)),
	)
	opts := player.OptionsFromConfig(cfg.Player, delivery.LookupProfile(delivery.ProfileName(cfg.ClientProfile)))
	opts.TelemetrySnapshotPath = cfg.Telemetry.SnapshotPath
	opts.OnNotice = func(n player.Notice) {
		fmt.Fprintf(stderr, "notice: %s\n", n.Message)
	}
	ctrl := player.New(player.Deps{
		API:      api,
		Element:  el,
		Prefs:    store,
		Reporter: reporter,
	}, opts)
	el.setEmit(ctrl.HandleMediaEvent)

	var resumeAt *float64
	if *resume >= 0 {
		resumeAt = resume
	}
	logger := xglog.WithComponent("cli")
	if err := ctrl.Open(ctx, item, resumeAt); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(*runFor)
	halfway := time.After(*runFor / 2)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-halfway:
			if *seekTo >= 0 {
				logger.Info().Float64(xglog.FieldTargetSeconds, *seekTo).Msg("seeking")
				_ = ctrl.SeekTo(*seekTo)
			}
		case <-ticker.C:
			el.tick()
		}
	}

	snap := ctrl.Snapshot()
	_ = ctrl.Close()
	ctrl.Drain()

	logger.Info().
		Str(xglog.FieldDeliveryMode, string(snap.Mode)).
		Float64("position_s", snap.Position).
		Int64(xglog.FieldPositionMs, snap.LastConfirmedMs).
		Int("recovery_attempts", snap.RecoveryAttempts).
		Msg("playback finished")
	if err := printJSON(stdout, reporter.Summary()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func tracingConfig(cfg config.AppConfig) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "vodplayer",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	}
}

var errNoSource = errors.New("no source loaded")

// headlessElement keeps media time against the wall clock while playing.
type headlessElement struct {
	mu         sync.Mutex
	emit       func(player.MediaEvent)
	src        string
	base       float64
	since      time.Time
	playing    bool
	rate       float64
	volume     float64
	fullscreen bool
}

func newHeadlessElement() *headlessElement {
	return &headlessElement{rate: 1, volume: 1}
}

func (e *headlessElement) setEmit(fn func(player.MediaEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit = fn
}

func (e *headlessElement) send(kind player.MediaEventKind) {
	e.mu.Lock()
	emit := e.emit
	e.mu.Unlock()
	if emit != nil {
		emit(player.MediaEvent{Kind: kind})
	}
}

func (e *headlessElement) tick() {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if playing {
		e.send(player.MediaTimeUpdate)
	}
}

func (e *headlessElement) nowLocked() float64 {
	if !e.playing {
		return e.base
	}
	return e.base + time.Since(e.since).Seconds()*e.rate
}

func (e *headlessElement) Play() error {
	e.mu.Lock()
	if e.src == "" {
		e.mu.Unlock()
		return errNoSource
	}
	if !e.playing {
		e.since = time.Now()
		e.playing = true
	}
	e.mu.Unlock()
	e.send(player.MediaPlaying)
	return nil
}

func (e *headlessElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = e.nowLocked()
	e.playing = false
}

func (e *headlessElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

func (e *headlessElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nowLocked()
}

func (e *headlessElement) SetCurrentTime(seconds float64) {
	e.mu.Lock()
	e.base = seconds
	e.since = time.Now()
	e.mu.Unlock()
	e.send(player.MediaSeeked)
}

func (e *headlessElement) Buffered() []player.TimeRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowLocked()
	return []player.TimeRange{{Start: now, End: now + 30}}
}

func (e *headlessElement) SetSource(url string) {
	e.mu.Lock()
	e.src = url
	e.base = 0
	e.playing = false
	e.mu.Unlock()
	e.send(player.MediaLoadedMetadata)
	e.send(player.MediaCanPlay)
}

func (e *headlessElement) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = ""
	e.base = 0
	e.playing = false
}

func (e *headlessElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *headlessElement) SetPlaybackRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = e.nowLocked()
	e.since = time.Now()
	e.rate = rate
}

func (e *headlessElement) Fullscreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullscreen
}

func (e *headlessElement) SetFullscreen(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreen = on
}

func (e *headlessElement) CanPlaySegmented() bool { return true }
