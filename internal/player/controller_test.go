// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/delivery"
	"github.com/ManuGH/vodplayer/internal/tracks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDirectResumeStartsAtExactOffset(t *testing.T) {
	h := newHarness(t, true)
	h.open(directItem(), ptr(125.4))

	assert.Equal(t, []string{h.api.StreamURL("m1", 0, nil)}, h.el.Sources())
	assert.Empty(t, h.api.Keyframes(), "direct play never snaps to a keyframe")
	assert.Equal(t, 0, h.streamers.Count())

	h.c.HandleMediaEvent(MediaEvent{Kind: MediaLoadedMetadata})
	h.sync()
	assert.Equal(t, []float64{125.4}, h.el.SetTimes())

	snap := h.c.Snapshot()
	assert.Equal(t, delivery.ModeDirect, snap.Mode)
	assert.Equal(t, int64(125400), snap.LastConfirmedMs)
	assert.InDelta(t, 125.4, snap.Position, 1e-9)
}

func TestProgressiveStartAndSeekSnapToKeyframe(t *testing.T) {
	h := newHarness(t, false)
	h.api.keyframe = 98.5
	h.open(remuxItem(), ptr(100.0))

	require.Eventually(t, func() bool { return len(h.el.Sources()) == 1 }, waitFor, tick)
	h.sync()
	assert.Equal(t, h.api.StreamURL("m2", 98.5, nil), h.el.Sources()[0])
	assert.Equal(t, []float64{100}, h.api.Keyframes())
	assert.Equal(t, int64(98500), h.c.Snapshot().LastConfirmedMs)

	h.api.mu.Lock()
	h.api.keyframe = 298
	h.api.mu.Unlock()
	require.NoError(t, h.c.SeekTo(300))
	require.Eventually(t, func() bool { return len(h.el.Sources()) == 2 }, waitFor, tick)
	h.sync()
	assert.Equal(t, h.api.StreamURL("m2", 298, nil), h.el.Sources()[1])

	snap := h.c.Snapshot()
	assert.True(t, snap.Seeking)
	assert.Equal(t, int64(298000), snap.LastConfirmedMs)
	assert.Empty(t, h.api.Seeks(), "progressive seeks never call the segmented seek")

	h.c.HandleMediaEvent(MediaEvent{Kind: MediaCanPlay})
	h.advance(DefaultProgressiveSettle)
	assert.False(t, h.c.Snapshot().Seeking)
}

func TestSegmentedRecreateSeekLoadsManifestOnce(t *testing.T) {
	h := newHarness(t, true)
	first := h.openSegmented(remuxItem())
	require.Len(t, first.URLs(), 1)

	h.api.setSeek(func(context.Context, backend.SeekRequest) (backend.SeekResult, error) {
		return backend.SeekResult{
			SessionID:    "s2",
			ManifestURL:  "/api/stream/m2/hls/master.m3u8?start=598.2",
			StartSeconds: 598.2,
		}, nil
	})
	require.NoError(t, h.c.SeekTo(600))
	require.Eventually(t, func() bool { return h.streamers.Count() == 2 }, waitFor, tick)
	h.sync()

	second := h.streamers.Last()
	assert.True(t, first.Destroyed())
	assert.Len(t, second.URLs(), 1, "exactly one manifest load per recreate")
	assert.Contains(t, second.URLs()[0], "start=598.2")

	snap := h.c.Snapshot()
	assert.True(t, snap.Seeking)
	assert.InDelta(t, 598.2, snap.StartOffset, 1e-9)
	assert.Equal(t, "s2", snap.SessionID)
	assert.Equal(t, 600.0, snap.Position)

	second.parsed()
	h.sync()
	assert.True(t, h.c.Snapshot().Seeking, "settle delay still pending")

	h.advance(DefaultSeekSettle)
	snap = h.c.Snapshot()
	assert.False(t, snap.Seeking)
	assert.Equal(t, int64(600000), snap.LastConfirmedMs, "confirmed position is the requested target")
}

func TestSeekRelativeDebouncesSegmentedSeeks(t *testing.T) {
	h := newHarness(t, true)
	h.openSegmented(remuxItem())
	h.el.setCurrent(30)

	require.NoError(t, h.c.SeekRelative(10))
	require.NoError(t, h.c.SeekRelative(10))
	h.sync()
	assert.Equal(t, 50.0, h.c.Snapshot().Position, "display moves immediately")
	assert.Empty(t, h.api.Seeks())

	h.advance(DefaultSeekDebounce - time.Millisecond)
	assert.Empty(t, h.api.Seeks())

	h.advance(time.Millisecond)
	require.Eventually(t, func() bool { return slices.Contains(h.el.SetTimes(), 50.0) }, waitFor, tick)
	h.sync()
	seeks := h.api.Seeks()
	require.Len(t, seeks, 1)
	assert.Equal(t, 50.0, seeks[0].TargetSeconds)

	h.advance(DefaultSeekSettle)
	snap := h.c.Snapshot()
	assert.False(t, snap.Seeking)
	assert.Equal(t, int64(50000), snap.LastConfirmedMs)
}

func TestStaleSeekResponseIsIgnored(t *testing.T) {
	h := newHarness(t, true)
	h.openSegmented(remuxItem())

	var mu sync.Mutex
	gates := map[float64]chan struct{}{100: make(chan struct{}), 200: make(chan struct{})}
	h.api.setSeek(func(ctx context.Context, req backend.SeekRequest) (backend.SeekResult, error) {
		mu.Lock()
		gate := gates[req.TargetSeconds]
		mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.SeekResult{}, ctx.Err()
		}
		return backend.SeekResult{Reused: true, SessionID: "s"}, nil
	})

	require.NoError(t, h.c.SeekTo(100))
	require.NoError(t, h.c.SeekTo(200))
	require.Eventually(t, func() bool { return len(h.api.Seeks()) == 2 }, waitFor, tick)
	gen := h.c.Snapshot().Generation

	close(gates[200])
	require.Eventually(t, func() bool { return slices.Contains(h.el.SetTimes(), 200.0) }, waitFor, tick)
	close(gates[100])
	h.c.io.Wait()
	h.sync()

	assert.Equal(t, []float64{200}, h.el.SetTimes(), "the superseded response never touches the element")
	snap := h.c.Snapshot()
	assert.Equal(t, 200.0, snap.Position)
	assert.Equal(t, gen, snap.Generation)
}

func TestRecoveryIsBoundedThenFallsBack(t *testing.T) {
	var notices []Notice
	h := newHarness(t, true, func(o *Options) {
		o.OnNotice = func(n Notice) { notices = append(notices, n) }
	})
	h.openSegmented(remuxItem())
	h.api.setSeek(func(context.Context, backend.SeekRequest) (backend.SeekResult, error) {
		return backend.SeekResult{SessionID: "r", ManifestURL: "/api/stream/m2/hls/r.m3u8", StartSeconds: 40}, nil
	})
	h.el.setCurrent(42)

	details := []string{DetailFragLoad, DetailLevelLoad, DetailManifestLoad}
	for i, d := range details {
		h.streamers.Last().notFound(d)
		require.Eventually(t, func() bool { return h.streamers.Count() == i+2 }, waitFor, tick)
		h.sync()
		assert.Equal(t, i+1, h.c.Snapshot().RecoveryAttempts)
	}

	h.streamers.Last().notFound(DetailFragLoad)
	h.sync()

	snap := h.c.Snapshot()
	require.Len(t, snap.Notices, 1)
	assert.Equal(t, NoticeDeliveryFallback, snap.Notices[0].Kind)
	assert.Equal(t, ClassSessionExpired, snap.Notices[0].Class)
	assert.False(t, snap.Segmented)
	assert.Equal(t, int64(0), snap.LastConfirmedMs)
	assert.Equal(t, h.api.StreamURL("m2", 42, nil), h.el.Sources()[len(h.el.Sources())-1])
	assert.True(t, h.streamers.Last().Destroyed())
	assert.Equal(t, 4, h.streamers.Count(), "no fourth recreate")

	seeks := h.api.Seeks()
	require.Len(t, seeks, 3)
	for _, s := range seeks {
		assert.Equal(t, 42.0, s.TargetSeconds)
	}
	h.sync()
	assert.Len(t, notices, 1)
}

func TestManifestParseResetsRecoveryAttempts(t *testing.T) {
	h := newHarness(t, true)
	h.openSegmented(remuxItem())
	h.api.setSeek(func(context.Context, backend.SeekRequest) (backend.SeekResult, error) {
		return backend.SeekResult{SessionID: "r", ManifestURL: "/r.m3u8"}, nil
	})

	h.streamers.Last().notFound(DetailFragLoad)
	require.Eventually(t, func() bool { return h.streamers.Count() == 2 }, waitFor, tick)
	h.sync()
	require.Equal(t, 1, h.c.Snapshot().RecoveryAttempts)

	h.streamers.Last().parsed()
	h.sync()
	assert.Equal(t, 0, h.c.Snapshot().RecoveryAttempts)
}

func TestSessionExpiryDuringUserSeekIsIgnored(t *testing.T) {
	h := newHarness(t, true)
	first := h.openSegmented(remuxItem())
	release := make(chan struct{})
	h.api.setSeek(func(ctx context.Context, _ backend.SeekRequest) (backend.SeekResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return backend.SeekResult{Reused: true}, nil
	})

	require.NoError(t, h.c.SeekTo(90))
	require.Eventually(t, func() bool { return len(h.api.Seeks()) == 1 }, waitFor, tick)
	first.notFound(DetailFragLoad)
	h.sync()
	assert.Equal(t, 0, h.c.Snapshot().RecoveryAttempts)
	close(release)
}

func TestFatalStreamErrorFallsBackToProgressive(t *testing.T) {
	h := newHarness(t, true)
	s := h.openSegmented(remuxItem())
	h.el.setCurrent(12)

	s.emit(StreamEvent{Kind: StreamError, Fatal: true, Type: ErrorTypeMedia, Details: "bufferAppendError"})
	h.sync()

	snap := h.c.Snapshot()
	require.Len(t, snap.Notices, 1)
	assert.Equal(t, ClassFatalDelivery, snap.Notices[0].Class)
	assert.Equal(t, h.api.StreamURL("m2", 12, nil), h.el.Sources()[len(h.el.Sources())-1])
	assert.Empty(t, h.api.Seeks())
}

func TestCloseMidSeekReportsLastConfirmedPosition(t *testing.T) {
	h := newHarness(t, true)
	item := remuxItem()
	item.PositionMs = ptr(int64(50_000))
	h.openSegmented(item)

	h.api.setSeek(func(ctx context.Context, _ backend.SeekRequest) (backend.SeekResult, error) {
		<-ctx.Done()
		return backend.SeekResult{}, ctx.Err()
	})
	require.NoError(t, h.c.SeekTo(300))
	require.Eventually(t, func() bool { return len(h.api.Seeks()) == 1 }, waitFor, tick)

	require.NoError(t, h.c.Close())
	h.c.Drain()

	assert.Equal(t, []int64{50000}, h.api.Progress(), "mid-seek close reports the confirmed position, not the target")
	snap := h.c.Snapshot()
	assert.False(t, snap.Open)
	assert.Equal(t, "m2", snap.ContentID)
}

func TestCloseDuringSessionStartReleasesSession(t *testing.T) {
	h := newHarness(t, true)
	entered, release := make(chan struct{}), make(chan struct{})
	h.api.mu.Lock()
	h.api.startHook = func() {
		close(entered)
		<-release
	}
	h.api.mu.Unlock()

	h.open(remuxItem(), nil)
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- h.c.Close() }()
	<-h.c.done
	close(release)
	require.NoError(t, <-closed)
	h.c.Drain()

	assert.Len(t, h.api.Stops(), 1, "a session that finished starting after close is still stopped")
	assert.Equal(t, 0, h.streamers.Count())
}

func TestAudioSwitchInDirectPlayMakesLaterSeeksProgressive(t *testing.T) {
	h := newHarness(t, false)
	h.api.keyframe = 50
	h.open(directItem(), ptr(60.0))
	h.waitAuxiliary()
	h.c.HandleMediaEvent(MediaEvent{Kind: MediaLoadedMetadata})
	h.sync()
	require.Equal(t, []float64{60}, h.el.SetTimes())

	require.NoError(t, h.c.SetAudioTrack(1))
	require.Eventually(t, func() bool { return len(h.el.Sources()) == 2 }, waitFor, tick)
	h.sync()
	assert.Equal(t, h.api.StreamURL("m1", 50, ptr(1)), h.el.Sources()[1])

	h.api.mu.Lock()
	h.api.keyframe = 5
	h.api.mu.Unlock()
	require.NoError(t, h.c.SeekTo(10))
	require.Eventually(t, func() bool { return len(h.el.Sources()) == 3 }, waitFor, tick)
	h.sync()

	assert.Equal(t, []float64{60, 10}, h.api.Keyframes())
	assert.Equal(t, h.api.StreamURL("m1", 5, ptr(1)), h.el.Sources()[2])
	assert.Equal(t, []float64{60}, h.el.SetTimes(), "the transcode is restarted, never repositioned in place")
	assert.Empty(t, h.api.Seeks())
}

func TestPositionOnlyMovesForwardExceptExplicitSeeks(t *testing.T) {
	h := newHarness(t, true)
	h.open(directItem(), nil)

	h.el.setCurrent(20)
	h.clk.Advance(11 * time.Second)
	h.c.HandleMediaEvent(MediaEvent{Kind: MediaTimeUpdate})
	h.sync()
	assert.Equal(t, int64(20000), h.c.Snapshot().LastConfirmedMs)

	h.el.setCurrent(15)
	h.clk.Advance(11 * time.Second)
	h.c.HandleMediaEvent(MediaEvent{Kind: MediaTimeUpdate})
	h.sync()
	assert.Equal(t, int64(20000), h.c.Snapshot().LastConfirmedMs)

	require.NoError(t, h.c.SeekTo(5))
	h.c.HandleMediaEvent(MediaEvent{Kind: MediaSeeked})
	h.sync()
	snap := h.c.Snapshot()
	assert.False(t, snap.Seeking)
	assert.Equal(t, int64(5000), snap.LastConfirmedMs)

	h.el.setCurrent(8)
	require.NoError(t, h.c.PlayFromStart())
	h.sync()
	assert.Equal(t, int64(0), h.c.Snapshot().LastConfirmedMs)
}

func TestSubtitleNewestSelectionWins(t *testing.T) {
	h := newHarness(t, true)
	h.open(directItem(), nil)
	h.waitAuxiliary()

	var mu sync.Mutex
	started := map[int64]bool{}
	release := make(chan struct{})
	h.api.mu.Lock()
	h.api.subtitle = func(ctx context.Context, id int64) ([]byte, error) {
		mu.Lock()
		started[id] = true
		mu.Unlock()
		if id == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		<-release
		return []byte("WEBVTT\n\n00:00:00.000 --> 01:00:00.000\ntwo\n"), nil
	}
	h.api.mu.Unlock()

	require.NoError(t, h.c.SetSubtitleTrack(ptr(int64(1))))
	require.NoError(t, h.c.SetSubtitleTrack(ptr(int64(2))))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return started[1] && started[2]
	}, waitFor, tick)
	close(release)
	require.Eventually(t, func() bool {
		id := h.c.subs.Applied()
		return id != nil && *id == 2
	}, waitFor, tick)
	h.c.io.Wait()

	snap := h.c.Snapshot()
	require.NotNil(t, snap.Selection.SubtitleID)
	assert.Equal(t, int64(2), *snap.Selection.SubtitleID)
	require.NotNil(t, snap.Cue)
	assert.Equal(t, "two", snap.Cue.Text)
	assert.NotContains(t, snap.Unavailable, FeatureSubtitles)

	require.NoError(t, h.c.SetSubtitleTrack(nil))
	h.sync()
	assert.Nil(t, h.c.Snapshot().Cue)
}

func TestStoredQualityIsAppliedToNewManifest(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.prefs.Set(context.Background(), tracks.Scope(""), tracks.KeyQualityHeight, "720"))
	h.streamers.levels = []tracks.Level{{Height: 480}, {Height: 720}, {Height: 1080}}

	s := h.openSegmented(remuxItem())
	require.Eventually(t, func() bool { return s.Level() == 1 }, waitFor, tick)

	require.NoError(t, h.c.SetQuality(1080))
	require.Eventually(t, func() bool { return s.Level() == 2 }, waitFor, tick)

	require.NoError(t, h.c.SetQuality(tracks.Auto))
	require.Eventually(t, func() bool { return s.Level() == tracks.Auto }, waitFor, tick)
}

func TestAuxiliaryFailureOnlyDisablesFeature(t *testing.T) {
	h := newHarness(t, true)
	h.open(directItem(), nil)
	require.Eventually(t, func() bool {
		return slices.Contains(h.c.Snapshot().Unavailable, FeatureChapters)
	}, waitFor, tick)

	snap := h.c.Snapshot()
	assert.Equal(t, []string{FeatureChapters}, snap.Unavailable)
	assert.Empty(t, snap.Notices, "auxiliary failures stay off screen")
	assert.True(t, snap.Open)
}

func TestKeyboardCommands(t *testing.T) {
	var exited atomic.Bool
	h := newHarness(t, true, func(o *Options) { o.OnExit = func() { exited.Store(true) } })
	h.open(directItem(), nil)

	require.NoError(t, h.c.HandleKey(KeyArrowDown))
	h.sync()
	assert.Equal(t, 95, h.c.Snapshot().Volume)
	require.Eventually(t, func() bool {
		v, ok, _ := h.prefs.Get(context.Background(), prefsScopePlayer, prefsKeyVolume)
		return ok && v == "95"
	}, waitFor, tick)

	require.NoError(t, h.c.HandleKey("m"))
	h.sync()
	assert.True(t, h.c.Snapshot().Muted)
	require.NoError(t, h.c.HandleKey("m"))
	h.sync()
	assert.Equal(t, 95, h.c.Snapshot().Volume)

	for range 12 {
		require.NoError(t, h.c.HandleKey(">"))
	}
	h.sync()
	assert.Equal(t, 3.0, h.c.Snapshot().Rate)
	require.NoError(t, h.c.HandleKey("<"))
	h.sync()
	assert.Equal(t, 2.75, h.c.Snapshot().Rate)

	require.NoError(t, h.c.HandleKey("s"))
	require.NoError(t, h.c.HandleKey("f"))
	h.sync()
	snap := h.c.Snapshot()
	assert.True(t, snap.Menus.Subtitles)
	assert.True(t, snap.Fullscreen)

	require.NoError(t, h.c.HandleKey(KeyEscape))
	h.sync()
	assert.False(t, h.c.Snapshot().Menus.Subtitles)
	assert.True(t, h.c.Snapshot().Fullscreen)

	require.NoError(t, h.c.HandleKey(KeyEscape))
	h.sync()
	assert.False(t, h.c.Snapshot().Fullscreen)
	assert.False(t, exited.Load())

	require.NoError(t, h.c.HandleKey(KeyEscape))
	h.sync()
	assert.True(t, exited.Load())

	require.NoError(t, h.c.HandleKey(KeySpace))
	h.sync()
	assert.True(t, h.el.Paused())
}

func TestVolumeRestoredFromPreferences(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.prefs.Set(context.Background(), prefsScopePlayer, prefsKeyVolume, "30"))

	require.NoError(t, h.c.call(h.c.restoreVolume))
	require.Eventually(t, func() bool { return h.c.Snapshot().Volume == 30 }, waitFor, tick)
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	h := newHarness(t, true)
	h.open(directItem(), nil)
	require.NoError(t, h.c.Close())

	assert.ErrorIs(t, h.c.SeekTo(10), ErrClosed)
	assert.ErrorIs(t, h.c.SetAudioTrack(1), ErrClosed)
	assert.ErrorIs(t, h.c.Open(context.Background(), directItem(), nil), ErrClosed)
	assert.NoError(t, h.c.Close())
}
