// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/clock"
	"github.com/ManuGH/vodplayer/internal/prefs"
	"github.com/ManuGH/vodplayer/internal/tracks"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeElement records every call the controller makes on the rendering element.
type fakeElement struct {
	mu         sync.Mutex
	paused     bool
	current    float64
	sources    []string
	setTimes   []float64
	resets     int
	volume     float64
	rate       float64
	fullscreen bool
	native     bool
}

func newFakeElement() *fakeElement {
	return &fakeElement{paused: true, volume: 1, rate: 1}
}

func (e *fakeElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	return nil
}

func (e *fakeElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

func (e *fakeElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *fakeElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *fakeElement) SetCurrentTime(s float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = s
	e.setTimes = append(e.setTimes, s)
}

func (e *fakeElement) Buffered() []TimeRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return []TimeRange{{Start: 0, End: e.current + 5}}
}

func (e *fakeElement) SetSource(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources = append(e.sources, url)
	e.current = 0
}

func (e *fakeElement) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	e.current = 0
}

func (e *fakeElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *fakeElement) SetPlaybackRate(r float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = r
}

func (e *fakeElement) Fullscreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullscreen
}

func (e *fakeElement) SetFullscreen(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreen = on
}

func (e *fakeElement) CanPlaySegmented() bool { return e.native }

func (e *fakeElement) setCurrent(s float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = s
}

func (e *fakeElement) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sources...)
}

func (e *fakeElement) SetTimes() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.setTimes...)
}

// fakeStreamer stands in for one streaming library instance.
type fakeStreamer struct {
	emit func(StreamEvent)

	mu         sync.Mutex
	urls       []string
	attached   bool
	startLoads []float64
	stopLoads  int
	destroyed  bool
	levels     []tracks.Level
	level      int
}

func (s *fakeStreamer) LoadSource(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
}

func (s *fakeStreamer) AttachMedia(Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
}

func (s *fakeStreamer) StartLoad(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLoads = append(s.startLoads, pos)
}

func (s *fakeStreamer) StopLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLoads++
}

func (s *fakeStreamer) DetachMedia() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
}

func (s *fakeStreamer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

func (s *fakeStreamer) Levels() []tracks.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracks.Level(nil), s.levels...)
}

func (s *fakeStreamer) SetCurrentLevel(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = i
}

func (s *fakeStreamer) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *fakeStreamer) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

func (s *fakeStreamer) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *fakeStreamer) parsed() {
	s.emit(StreamEvent{Kind: StreamManifestParsed})
}

func (s *fakeStreamer) notFound(details string) {
	s.emit(StreamEvent{Kind: StreamError, Type: ErrorTypeNetwork, Details: details, Status: 404})
}

type fakeFactory struct {
	mu        sync.Mutex
	levels    []tracks.Level
	streamers []*fakeStreamer
}

func (f *fakeFactory) Supported() bool { return true }

func (f *fakeFactory) New(emit func(StreamEvent)) Streamer {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStreamer{emit: emit, levels: f.levels, level: -99}
	f.streamers = append(f.streamers, s)
	return s
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streamers)
}

func (f *fakeFactory) Last() *fakeStreamer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamers[len(f.streamers)-1]
}

// fakeAPI answers backend calls from test-provided functions.
type fakeAPI struct {
	backend.URLs

	mu        sync.Mutex
	startHook func()
	seekFn    func(ctx context.Context, req backend.SeekRequest) (backend.SeekResult, error)
	keyframe  float64
	subtitle  func(ctx context.Context, id int64) ([]byte, error)
	seeks     []backend.SeekRequest
	keyframes []float64
	progress  []int64
	completed int
	metrics   []backend.Metric
	stops     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{URLs: backend.URLs{Base: "http://media.test"}}
}

func (f *fakeAPI) StartSegmentedSession(_ context.Context, contentID string, start float64, pbs string) (backend.SessionStart, error) {
	f.mu.Lock()
	hook := f.startHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return backend.SessionStart{PlaybackSessionID: pbs, ManifestURL: f.ManifestURL(contentID, start, pbs)}, nil
}

func (f *fakeAPI) HeartbeatSession(context.Context, string, string) error { return nil }

func (f *fakeAPI) StopSession(_ context.Context, _, pbs string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, pbs)
	return nil
}

func (f *fakeAPI) CleanupMedia(context.Context, string, string) error       { return nil }
func (f *fakeAPI) StopSegmentSession(context.Context, string, string) error { return nil }

func (f *fakeAPI) Seek(ctx context.Context, req backend.SeekRequest) (backend.SeekResult, error) {
	f.mu.Lock()
	f.seeks = append(f.seeks, req)
	fn := f.seekFn
	f.mu.Unlock()
	if fn == nil {
		return backend.SeekResult{Reused: true, SessionID: "sid"}, nil
	}
	return fn(ctx, req)
}

func (f *fakeAPI) KeyframeLookup(_ context.Context, _ string, t float64) (backend.KeyframeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyframes = append(f.keyframes, t)
	return backend.KeyframeResult{Requested: t, Keyframe: f.keyframe}, nil
}

func (f *fakeAPI) ReportProgress(_ context.Context, _ string, ms int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, ms)
	return nil
}

func (f *fakeAPI) MarkCompleted(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	return nil
}

func (f *fakeAPI) FetchMedia(context.Context, string) (backend.MediaItem, error) {
	return backend.MediaItem{}, nil
}

func (f *fakeAPI) FetchStreams(context.Context, string) ([]backend.MediaStream, error) {
	return nil, nil
}

func (f *fakeAPI) FetchSubtitles(context.Context, string) ([]backend.SubtitleTrack, error) {
	return nil, nil
}

func (f *fakeAPI) FetchChapters(context.Context, string) ([]backend.Chapter, error) {
	return nil, &backend.StatusError{Op: "chapters", Status: 500}
}

func (f *fakeAPI) FetchNextEpisode(context.Context, string) (*backend.Episode, error) {
	return nil, nil
}

func (f *fakeAPI) FetchLanguageDefaults(context.Context) (backend.LanguageDefaults, error) {
	return backend.LanguageDefaults{}, nil
}

func (f *fakeAPI) FetchSubtitle(ctx context.Context, id int64) ([]byte, error) {
	f.mu.Lock()
	fn := f.subtitle
	f.mu.Unlock()
	if fn == nil {
		return []byte("WEBVTT\n\n00:00:00.000 --> 01:00:00.000\nline\n"), nil
	}
	return fn(ctx, id)
}

func (f *fakeAPI) TrackMetric(_ context.Context, m backend.Metric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, m)
	return nil
}

func (f *fakeAPI) setSeek(fn func(ctx context.Context, req backend.SeekRequest) (backend.SeekResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekFn = fn
}

func (f *fakeAPI) Seeks() []backend.SeekRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.SeekRequest(nil), f.seeks...)
}

func (f *fakeAPI) Keyframes() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.keyframes...)
}

func (f *fakeAPI) Stops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stops...)
}

func (f *fakeAPI) Progress() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.progress...)
}

type harness struct {
	t         *testing.T
	c         *Controller
	el        *fakeElement
	api       *fakeAPI
	streamers *fakeFactory
	clk       *clock.Mock
	prefs     *prefs.MemoryStore
}

func newHarness(t *testing.T, streaming bool, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		el:    newFakeElement(),
		api:   newFakeAPI(),
		clk:   clock.NewMock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		prefs: prefs.NewMemoryStore(),
	}
	deps := Deps{API: h.api, Element: h.el, Prefs: h.prefs, Clock: h.clk}
	if streaming {
		h.streamers = &fakeFactory{}
		deps.Streamers = h.streamers
	}
	var opts Options
	for _, m := range mutate {
		m(&opts)
	}
	h.c = New(deps, opts)
	t.Cleanup(func() {
		_ = h.c.Close()
		h.c.Drain()
	})
	return h
}

// sync waits until everything posted so far has run on the controller goroutine.
func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.c.call(func() {}))
}

func (h *harness) open(item backend.MediaItem, resume *float64) {
	h.t.Helper()
	require.NoError(h.t, h.c.Open(context.Background(), item, resume))
	h.sync()
}

// waitAuxiliary waits for the open-time auxiliary fetches; chapters always fail.
func (h *harness) waitAuxiliary() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return slices.Contains(h.c.Snapshot().Unavailable, FeatureChapters)
	}, waitFor, tick)
}

// advance moves the mock clock and lets the posted timer callbacks run.
func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
	h.sync()
}

// openSegmented opens a remux item and completes the startup manifest load.
func (h *harness) openSegmented(item backend.MediaItem) *fakeStreamer {
	h.t.Helper()
	h.open(item, nil)
	require.Eventually(h.t, func() bool { return h.streamers.Count() == 1 }, waitFor, tick)
	s := h.streamers.Last()
	s.parsed()
	h.sync()
	return s
}

func ptr[T any](v T) *T { return &v }

func directItem() backend.MediaItem {
	return backend.MediaItem{
		ID:         "m1",
		DurationMs: ptr(int64(3_600_000)),
		Container:  ptr("mp4"),
		VideoCodec: ptr("h264"),
		AudioCodec: ptr("aac"),
	}
}

func remuxItem() backend.MediaItem {
	return backend.MediaItem{
		ID:         "m2",
		DurationMs: ptr(int64(3_600_000)),
		Container:  ptr("mkv"),
		VideoCodec: ptr("h264"),
		AudioCodec: ptr("aac"),
	}
}
