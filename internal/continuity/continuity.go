// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package continuity reports watch progress and drives the up-next countdown.
package continuity

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/clock"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/rs/zerolog"
)

const (
	DefaultProgressInterval = 10 * time.Second
	DefaultCountdown        = 10 * time.Second
	DefaultLead             = 30 * time.Second

	countdownTick = time.Second
	reportTimeout = 5 * time.Second
)

// API is the subset of backend.API used for progress.
type API interface {
	ReportProgress(ctx context.Context, contentID string, positionMs int64) error
	MarkCompleted(ctx context.Context, contentID string) error
}

// Config configures a Tracker.
type Config struct {
	ProgressInterval time.Duration
	Countdown        time.Duration
	// Lead is how long before the end the countdown starts.
	Lead  time.Duration
	Clock clock.Clock
	// Post runs timer callbacks; the owner passes its event loop so the tracker
	// is only touched from one goroutine. Defaults to calling fn inline.
	Post func(fn func())
	// OnUpNext is invoked when the countdown reaches zero or PlayNow is called.
	OnUpNext func(next backend.Episode)
}

// UpNext is the countdown state.
type UpNext struct {
	Next      *backend.Episode
	Active    bool
	Cancelled bool
	Remaining time.Duration
}

// Tracker is owned by a single goroutine (the controller loop); only Wait may be
// called from elsewhere.
type Tracker struct {
	api    API
	cfg    Config
	logger zerolog.Logger

	contentID  string
	duration   float64
	lastReport time.Time

	next      *backend.Episode
	active    bool
	cancelled bool
	fired     bool
	remaining time.Duration
	tick      clock.Timer
	tickGen   uint64

	inflight sync.WaitGroup
}

func NewTracker(api API, cfg Config) *Tracker {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	return &Tracker{api: api, cfg: cfg, logger: xglog.WithComponent("continuity")}
}

// Begin resets the tracker for a newly opened item.
func (t *Tracker) Begin(contentID string, durationSeconds float64) {
	t.stopCountdown()
	t.contentID = contentID
	t.duration = durationSeconds
	t.lastReport = t.cfg.Clock.Now()
	t.next = nil
	t.active, t.cancelled, t.fired = false, false, false
	t.remaining = 0
}

// SetNext records the item that follows the current one, nil when there is none.
func (t *Tracker) SetNext(next *backend.Episode) {
	t.next = next
}

// SetDuration updates the known duration.
func (t *Tracker) SetDuration(durationSeconds float64) {
	if durationSeconds > 0 {
		t.duration = durationSeconds
	}
}

// TimeUpdate is called for every position update. When the report interval has
// elapsed and no seek is in progress, the position is reported and returned so
// the caller can confirm it.
func (t *Tracker) TimeUpdate(positionSeconds float64, seeking bool) (int64, bool) {
	if seeking {
		return 0, false
	}
	t.maybeStartCountdown(positionSeconds)

	now := t.cfg.Clock.Now()
	if now.Sub(t.lastReport) <= t.cfg.ProgressInterval {
		return 0, false
	}
	t.lastReport = now
	posMs := int64(positionSeconds * 1000)
	if posMs <= 0 {
		return 0, false
	}
	t.Report(posMs)
	return posMs, true
}

// Report sends a progress update without waiting for it.
func (t *Tracker) Report(positionMs int64) {
	if t.contentID == "" || positionMs <= 0 {
		return
	}
	contentID := t.contentID
	t.detached("progress", contentID, func(ctx context.Context) error {
		return t.api.ReportProgress(ctx, contentID, positionMs)
	})
}

// Ended marks the item completed and starts the up-next countdown.
func (t *Tracker) Ended() {
	if t.contentID != "" {
		contentID := t.contentID
		t.detached("complete", contentID, func(ctx context.Context) error {
			return t.api.MarkCompleted(ctx, contentID)
		})
	}
	t.startCountdown()
}

func (t *Tracker) detached(op, contentID string, fn func(context.Context) error) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			t.logger.Debug().Err(err).Str(xglog.FieldOperation, op).Str(xglog.FieldContentID, contentID).Msg("continuity call failed")
		}
	}()
}

func (t *Tracker) maybeStartCountdown(positionSeconds float64) {
	if t.duration <= 0 {
		return
	}
	if positionSeconds >= t.duration-t.cfg.Lead.Seconds() {
		t.startCountdown()
	}
}

func (t *Tracker) startCountdown() {
	if t.next == nil || t.active || t.cancelled || t.fired {
		return
	}
	t.active = true
	t.remaining = t.cfg.Countdown
	t.scheduleTick()
}

func (t *Tracker) scheduleTick() {
	gen := t.tickGen
	t.tick = t.cfg.Clock.AfterFunc(countdownTick, func() {
		t.cfg.Post(func() { t.onTick(gen) })
	})
}

func (t *Tracker) onTick(gen uint64) {
	if !t.active || gen != t.tickGen {
		return
	}
	t.remaining -= countdownTick
	if t.remaining > 0 {
		t.scheduleTick()
		return
	}
	t.fire()
}

// Cancel stops the countdown for the rest of this item.
func (t *Tracker) Cancel() {
	t.stopCountdown()
	t.cancelled = true
}

// PlayNow skips the remaining countdown.
func (t *Tracker) PlayNow() {
	if t.next == nil || t.fired {
		return
	}
	t.stopCountdown()
	t.fire()
}

func (t *Tracker) fire() {
	t.active = false
	t.remaining = 0
	t.fired = true
	if t.cfg.OnUpNext != nil && t.next != nil {
		t.cfg.OnUpNext(*t.next)
	}
}

func (t *Tracker) stopCountdown() {
	t.active = false
	t.tickGen++
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
}

// State returns the countdown state.
func (t *Tracker) State() UpNext {
	return UpNext{Next: t.next, Active: t.active, Cancelled: t.cancelled, Remaining: t.remaining}
}

// Stop cancels pending timers. Outstanding reports continue.
func (t *Tracker) Stop() {
	t.stopCountdown()
}

// Wait blocks until every fire-and-forget call has returned.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}
