// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player implements the playback session controller: delivery strategy,
// seeking, track switching, session recovery and playback telemetry for one screen.
//
// All session state is owned by a single controller goroutine. Public methods post
// work to it; network calls run on short-lived goroutines and post their results
// back, where stale results are dropped by comparing generations.
package player

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/cache"
	"github.com/ManuGH/vodplayer/internal/clock"
	"github.com/ManuGH/vodplayer/internal/continuity"
	"github.com/ManuGH/vodplayer/internal/delivery"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/metrics"
	"github.com/ManuGH/vodplayer/internal/prefs"
	"github.com/ManuGH/vodplayer/internal/session"
	"github.com/ManuGH/vodplayer/internal/subtitle"
	"github.com/ManuGH/vodplayer/internal/telemetry"
	"github.com/ManuGH/vodplayer/internal/tracks"
	"github.com/rs/zerolog"
)

const (
	prefsScopePlayer = "player"
	prefsKeyVolume   = "volume"

	defaultVolume = 100
	detachTimeout = 5 * time.Second
)

type loadKind int

const (
	loadStartup loadKind = iota
	loadSeek
	loadRecovery
)

// manifestLoad is a manifest whose parse completes a startup, seek or recovery.
type manifestLoad struct {
	gen    uint64
	kind   loadKind
	target float64
}

// Controller drives one playback screen.
type Controller struct {
	api       backend.API
	el        Element
	streamers StreamerFactory
	prefs     prefs.Store
	clk       clock.Clock
	perf      *telemetry.Reporter
	subs      *subtitle.Store
	opts      Options
	logger    zerolog.Logger

	box       *mailbox
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	io        sync.WaitGroup
	bg        sync.WaitGroup
	closeOnce sync.Once
	final     Snapshot

	// Everything below is owned by the controller goroutine.
	closed   bool
	opened   bool
	openSeq  uint64
	item     backend.MediaItem
	decision delivery.Decision
	tracks   *tracks.Manager
	session  *session.Manager
	cont     *continuity.Tracker
	sessions []*session.Manager

	hls       bool
	native    bool
	streamer  Streamer
	levels    []tracks.Level
	pending   *manifestLoad
	startOff  float64
	seekOff   float64
	metaStart float64

	// progressive is set while the element plays the keyframe-snapped transcode.
	progressive bool

	generation    uint64
	seeking       bool
	buffering     bool
	displayed     float64
	confirmedMs   int64
	pendingTarget *float64
	debounce      clock.Timer
	debounceSeq   uint64
	settle        clock.Timer
	seekStarted   time.Time
	streamLoad    string
	directSeek    bool

	recovery recoveryState
	notices  []Notice

	firstFrame  bool
	rebuffering bool

	volume     int
	lastVolume int
	rate       float64
	menus      Menus
	overlay    bool

	subtitleID     *int64
	audioTracks    []backend.MediaStream
	subtitleTracks []backend.SubtitleTrack
	chapters       []backend.Chapter
	unavailable    map[string]bool
}

// New starts a controller goroutine. Close must be called to release it.
func New(deps Deps, opts Options) *Controller {
	if deps.API == nil {
		panic("invariant violation: API is nil in player.New")
	}
	if deps.Element == nil {
		panic("invariant violation: Element is nil in player.New")
	}
	opts.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Prefs == nil {
		deps.Prefs = prefs.NewMemoryStore()
	}
	if deps.Reporter == nil {
		deps.Reporter = telemetry.NewReporter(deps.Clock,
			telemetry.WithTracer(telemetry.Tracer(telemetry.InstrumentationName)),
		)
	}
	if deps.Subtitles == nil {
		deps.Subtitles = subtitle.NewStore(deps.API, cache.NewMemory[subtitle.CueSet](16, deps.Clock))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:        deps.API,
		el:         deps.Element,
		streamers:  deps.Streamers,
		prefs:      deps.Prefs,
		clk:        deps.Clock,
		perf:       deps.Reporter,
		subs:       deps.Subtitles,
		opts:       opts,
		logger:     xglog.WithComponent("player"),
		box:        newMailbox(),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		volume:     defaultVolume,
		lastVolume: defaultVolume,
		rate:       1,
		recovery:   recoveryState{max: opts.MaxRecoveryAttempts},
		tracks:     tracks.NewManager(deps.Prefs),
	}
	c.cont = c.newTracker()
	c.session = c.newSession()
	go c.run()
	_ = c.do(c.restoreVolume)
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		<-c.box.signal
		for _, fn := range c.box.drain() {
			fn()
			if c.closed {
				return
			}
		}
	}
}

// do posts fn to the controller goroutine.
func (c *Controller) do(fn func()) error {
	if !c.box.post(fn) {
		return ErrClosed
	}
	return nil
}

// call posts fn and waits for it to run.
func (c *Controller) call(fn func()) error {
	ran := make(chan struct{})
	if !c.box.post(func() { fn(); close(ran) }) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// async runs work off the controller goroutine and posts the continuation it
// returns. Continuations are dropped once the controller has closed.
func (c *Controller) async(work func(ctx context.Context) func()) {
	c.io.Add(1)
	go func() {
		defer c.io.Done()
		if then := work(c.ctx); then != nil {
			c.box.post(then)
		}
	}()
}

// detach runs a fire-and-forget call that outlives Close.
func (c *Controller) detach(op string, fn func(ctx context.Context) error) {
	ctx := context.WithoutCancel(c.ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(ctx, detachTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Debug().Err(err).Str(xglog.FieldOperation, op).Str("class", string(ClassLifecycle)).Msg("detached call failed")
		}
	}()
}

// after schedules fn on the controller goroutine.
func (c *Controller) after(d time.Duration, fn func()) clock.Timer {
	return c.clk.AfterFunc(d, func() { c.box.post(fn) })
}

func (c *Controller) newTracker() *continuity.Tracker {
	return continuity.NewTracker(c.api, continuity.Config{
		ProgressInterval: c.opts.ProgressInterval,
		Countdown:        c.opts.UpNextCountdown,
		Lead:             c.opts.UpNextLead,
		Clock:            c.clk,
		Post:             func(fn func()) { c.box.post(fn) },
		OnUpNext: func(next backend.Episode) {
			c.perf.Event("upnext/transition", telemetry.CategoryFrontend, telemetry.Meta{"next": next.MediaItemID})
			if c.opts.OnUpNext != nil {
				c.opts.OnUpNext(next)
			}
		},
	})
}

func (c *Controller) newSession() *session.Manager {
	m := session.NewManager(c.api, session.Config{
		HeartbeatInterval: c.opts.HeartbeatInterval,
		Clock:             c.clk,
	})
	c.sessions = append(c.sessions, m)
	return m
}

// Open starts playback of item. resume, when set, overrides the stored position.
func (c *Controller) Open(ctx context.Context, item backend.MediaItem, resume *float64) error {
	logger := xglog.WithContext(ctx, c.logger)
	return c.do(func() { c.open(logger, item, resume) })
}

// Close tears the session down and stops the controller goroutine. Progress
// reporting and server-side session release continue in the background; Drain
// waits for them.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		if err := c.do(c.shutdown); err != nil {
			return
		}
		<-c.done
		c.cancel()
		c.io.Wait()
		// A session start that finished after shutdown has ids nobody released.
		for _, s := range c.sessions {
			s.Stop(context.Background())
		}
	})
	return nil
}

// Drain waits for detached lifecycle calls started before Close.
func (c *Controller) Drain() {
	<-c.done
	c.io.Wait()
	c.bg.Wait()
	for _, s := range c.sessions {
		s.Wait()
	}
	c.cont.Wait()
}

// HandleMediaEvent feeds a rendering element event to the controller.
func (c *Controller) HandleMediaEvent(ev MediaEvent) {
	c.box.post(func() { c.onMediaEvent(ev) })
}

func (c *Controller) shutdown() {
	c.teardownPlayback()
	c.final = c.snapshot()
	c.closed = true
	c.box.close()
	c.cancel()
}

func (c *Controller) open(logger zerolog.Logger, item backend.MediaItem, resume *float64) {
	if c.opened {
		c.teardownPlayback()
	}
	c.openSeq++
	c.generation++
	c.opened = true
	c.item = item
	c.tracks = tracks.NewManager(c.prefs)
	c.tracks.SetScope(tracks.Scope(item.LibraryID))
	c.session = c.newSession()
	c.cont = c.newTracker()
	c.notices = nil
	c.recovery = recoveryState{max: c.opts.MaxRecoveryAttempts}
	c.subtitleID = nil
	c.audioTracks, c.subtitleTracks, c.chapters = nil, nil, nil
	c.unavailable = make(map[string]bool)
	c.firstFrame = false
	c.seeking, c.buffering = false, true
	c.startOff, c.seekOff, c.metaStart = 0, 0, 0

	c.decision = delivery.Classify(delivery.MediaInfo{
		Container:  deref(item.Container),
		VideoCodec: deref(item.VideoCodec),
		AudioCodec: deref(item.AudioCodec),
	}, c.opts.Profile)
	mode := string(c.decision.Mode)

	c.perf.Reset(telemetry.PlaybackAttributes(item.ID, "", mode)...)
	c.perf.StartSpan("init/total", telemetry.CategoryFrontend, telemetry.Meta{"stream": mode})

	startAt, how := startPosition(item, resume)
	c.perf.Event("init/mode", telemetry.CategoryFrontend, telemetry.Meta{"mode": how, "position": startAt})
	c.displayed = startAt
	c.confirmedMs = int64(math.Floor(startAt * 1000))
	c.cont.Begin(item.ID, item.DurationSeconds())

	logger.Info().
		Str(xglog.FieldContentID, item.ID).
		Str(xglog.FieldDeliveryMode, mode).
		Str("reason", string(c.decision.Reason)).
		Float64(xglog.FieldStartSeconds, startAt).
		Msg("opening playback")
	metrics.IncPlaybackStart(mode)

	c.el.SetVolume(float64(c.volume) / 100)
	c.el.SetPlaybackRate(c.rate)
	c.perf.StartSpan("init/first-frame", telemetry.CategoryFrontend, nil)
	c.startPlayback(startAt)
	c.fetchAuxiliary()
}

// startPosition picks an explicit resume, then unfinished stored progress, then 0.
func startPosition(item backend.MediaItem, resume *float64) (float64, string) {
	switch {
	case resume != nil:
		return math.Max(0, *resume), "resume"
	case item.PositionMs != nil && *item.PositionMs > 0 && !item.Completed:
		return float64(*item.PositionMs) / 1000, "continue"
	default:
		return 0, "start"
	}
}

// teardownPlayback releases everything tied to the open item.
func (c *Controller) teardownPlayback() {
	if !c.opened {
		return
	}
	if c.seeking {
		c.cont.Report(c.confirmedMs)
	} else if pos := int64(math.Floor(c.livePosition() * 1000)); pos > 0 {
		c.confirmPosition(pos)
		c.cont.Report(pos)
	}

	c.generation++
	c.cancelDebounce()
	c.stopSettle()
	c.cont.Stop()
	c.endRebuffer()
	c.destroyStreamer()
	c.pending = nil
	c.el.Pause()
	c.el.Reset()
	c.session.Stop(c.ctx)
	c.subs.Clear()
	c.opened = false
	c.seeking, c.buffering = false, false
	c.hls, c.native, c.progressive = false, false, false

	if c.opts.TelemetrySnapshotPath != "" {
		if err := c.perf.WriteSnapshot(c.opts.TelemetrySnapshotPath); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldPath, c.opts.TelemetrySnapshotPath).Msg("telemetry snapshot not written")
		}
	}
}

func (c *Controller) onMediaEvent(ev MediaEvent) {
	if !c.opened {
		return
	}
	switch ev.Kind {
	case MediaTimeUpdate:
		c.onTimeUpdate()
	case MediaWaiting:
		c.onWaiting()
	case MediaCanPlay:
		c.buffering = false
		c.endRebuffer()
		c.onStreamLoaded()
	case MediaPlaying:
		c.buffering = false
		c.endRebuffer()
		c.onFirstFrame()
	case MediaEnded:
		c.cont.Ended()
	case MediaSeeked:
		c.onDirectSeeked()
	case MediaLoadedMetadata:
		if c.metaStart > 0 {
			c.el.SetCurrentTime(c.metaStart)
			c.metaStart = 0
		}
	case MediaProgress:
	}
}

func (c *Controller) onTimeUpdate() {
	if c.seeking || c.pendingTarget != nil {
		return
	}
	c.displayed = c.livePosition()
	if ms, ok := c.cont.TimeUpdate(c.displayed, false); ok {
		c.confirmPosition(ms)
	}
}

func (c *Controller) onFirstFrame() {
	if c.firstFrame {
		return
	}
	c.firstFrame = true
	total := c.perf.EndSpan("init/total", nil)
	c.perf.EndSpan("init/first-frame", nil)
	mode := string(c.decision.Mode)
	metrics.ObserveTTFF(mode, metrics.OutcomeOK, total/1000)
	c.trackMetric("ttff_ms", &total, map[string]string{"mode": mode})
}

func (c *Controller) onWaiting() {
	if c.seeking || !c.firstFrame || c.rebuffering {
		return
	}
	c.rebuffering = true
	c.buffering = true
	c.perf.StartSpan("playback/rebuffer", telemetry.CategoryFrontend, telemetry.Meta{"position": math.Round(c.displayed)})
}

func (c *Controller) endRebuffer() {
	if !c.rebuffering {
		return
	}
	c.rebuffering = false
	ms := c.perf.EndSpan("playback/rebuffer", nil)
	mode := string(c.decision.Mode)
	metrics.ObserveRebuffer(mode, ms/1000)
	c.trackMetric("rebuffer", nil, map[string]string{"mode": mode})
}

// livePosition is the absolute media time of the element.
func (c *Controller) livePosition() float64 {
	if c.hls {
		return c.startOff + c.el.CurrentTime()
	}
	return c.seekOff + c.el.CurrentTime()
}

// confirmPosition only moves the confirmed position forward.
func (c *Controller) confirmPosition(ms int64) {
	if ms > c.confirmedMs {
		c.confirmedMs = ms
	}
}

// commitPosition records the landing point of a completed seek.
func (c *Controller) commitPosition(seconds float64) {
	c.confirmedMs = int64(math.Round(seconds * 1000))
}

func (c *Controller) play() {
	if err := c.el.Play(); err != nil {
		c.logger.Debug().Err(err).Msg("element refused to play")
	}
}

func (c *Controller) trackMetric(name string, value *float64, labels map[string]string) {
	m := backend.Metric{Name: name, Labels: labels}
	if value != nil {
		v := math.Round(*value)
		m.Value = &v
	} else {
		m.Increment = true
	}
	c.detach("metric", func(ctx context.Context) error {
		return c.api.TrackMetric(ctx, m)
	})
}

func (c *Controller) notify(n Notice) {
	n.At = c.clk.Now()
	c.notices = append(c.notices, n)
	c.logger.Warn().Str("kind", string(n.Kind)).Str("class", string(n.Class)).Str(xglog.FieldContentID, c.item.ID).Msg(n.Message)
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(n)
	}
}

func (c *Controller) restoreVolume() {
	store := c.prefs
	c.async(func(ctx context.Context) func() {
		raw, ok, err := store.Get(ctx, prefsScopePlayer, prefsKeyVolume)
		if err != nil || !ok {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil
		}
		return func() {
			if v = c.applyVolume(v); v > 0 {
				c.lastVolume = v
			}
		}
	})
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
