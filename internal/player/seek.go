// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/metrics"
	"github.com/ManuGH/vodplayer/internal/telemetry"
)

const (
	seekPathReuse    = metrics.SeekPathReuse
	seekPathRecreate = metrics.SeekPathRecreate
	seekPathKeyframe = metrics.SeekPathKeyframe
	seekPathDirect   = metrics.SeekPathDirect
)

var errNoManifest = errors.New("player: seek response without manifest")

// SeekTo seeks to an absolute media time in seconds.
func (c *Controller) SeekTo(target float64) error {
	return c.do(func() { c.seekTo(target) })
}

// SeekRelative seeks by delta seconds. Segmented playback coalesces bursts of
// relative seeks into one backend seek once input pauses.
func (c *Controller) SeekRelative(delta float64) error {
	return c.do(func() { c.seekRelative(delta) })
}

// PlayFromStart restarts at 0 and resets the confirmed position.
func (c *Controller) PlayFromStart() error {
	return c.do(func() {
		if !c.opened {
			return
		}
		c.seekTo(0)
		c.confirmedMs = 0
	})
}

func (c *Controller) seekRelative(delta float64) {
	if !c.opened {
		return
	}
	var base float64
	switch {
	case c.pendingTarget != nil:
		base = *c.pendingTarget
	case !c.seeking:
		base = c.livePosition()
	default:
		base = c.displayed
	}
	target := c.clamp(base + delta)

	if !c.hls {
		c.seekTo(target)
		return
	}

	c.displayed = target
	c.pendingTarget = &target
	c.debounceSeq++
	seq := c.debounceSeq
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = c.after(c.opts.SeekDebounce, func() {
		if seq != c.debounceSeq || c.pendingTarget == nil {
			return
		}
		t := *c.pendingTarget
		c.seekTo(t)
	})
}

func (c *Controller) cancelDebounce() {
	c.debounceSeq++
	c.pendingTarget = nil
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

func (c *Controller) stopSettle() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
}

func (c *Controller) clamp(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if d := c.item.DurationSeconds(); d > 0 && t > d {
		return d
	}
	return t
}

// beginSeek supersedes every in-flight seek and shows target immediately.
func (c *Controller) beginSeek(target float64) uint64 {
	c.cancelDebounce()
	c.stopSettle()
	c.endRebuffer()
	c.generation++
	c.seeking = true
	c.buffering = true
	c.displayed = target
	c.streamLoad = ""
	c.directSeek = false
	c.recovery.active = false
	c.recovery.requesting = false
	c.seekStarted = c.clk.Now()
	return c.generation
}

func (c *Controller) seekTo(target float64) {
	if !c.opened {
		return
	}
	target = c.clamp(target)
	gen := c.beginSeek(target)
	switch {
	case c.hls:
		c.seekSegmented(gen, target, false)
	case c.progressive || c.decision.Segmented:
		c.seekProgressive(gen, target)
	default:
		c.seekDirect(target)
	}
}

// seekSegmented asks the backend to reposition the session. A reused session is
// jumped in place; otherwise the consumer is rebuilt on the new manifest. A
// recovery always rebuilds.
func (c *Controller) seekSegmented(gen uint64, target float64, recovery bool) {
	c.perf.StartSpan("seek/hls-total", telemetry.CategoryFrontend, telemetry.Meta{"target": math.Round(target)})
	c.el.Pause()
	if c.streamer != nil {
		c.streamer.StopLoad()
	}

	req := backend.SeekRequest{
		ContentID:         c.item.ID,
		TargetSeconds:     target,
		AudioIndex:        c.tracks.Current().AudioSelector(),
		PlaybackSessionID: c.session.PlaybackSessionID(),
	}
	c.perf.StartSpan("seek/hls-api", telemetry.CategoryNetwork, nil)
	c.async(func(ctx context.Context) func() {
		res, err := c.api.Seek(ctx, req)
		if err == nil && !res.Reused && res.ManifestURL == "" {
			err = errNoManifest
		}
		return func() { c.onSeekResponse(gen, target, recovery, res, err) }
	})
}

func (c *Controller) onSeekResponse(gen uint64, target float64, recovery bool, res backend.SeekResult, err error) {
	if gen != c.generation {
		metrics.ObserveSeek(seekPathOf(res, recovery), metrics.OutcomeSuperseded, c.clk.Now().Sub(c.seekStarted).Seconds())
		return
	}
	if recovery {
		c.recovery.requesting = false
	}

	if err != nil {
		c.perf.Event("seek/hls-failed", telemetry.CategoryFrontend, telemetry.Meta{"error": err.Error()})
		c.perf.EndSpan("seek/hls-api", nil)
		c.perf.EndSpan("seek/hls-total", nil)
		metrics.ObserveSeek(seekPathRecreate, metrics.OutcomeFailed, c.clk.Now().Sub(c.seekStarted).Seconds())
		c.logger.Warn().Err(err).
			Str(xglog.FieldContentID, c.item.ID).
			Float64(xglog.FieldTargetSeconds, target).
			Uint64(xglog.FieldGeneration, gen).
			Msg("seek failed")
		if recovery {
			c.fallbackToProgressive(NoticeRecoveryFailed, ClassSessionExpired, "Streaming session could not be recreated, switched to compatible playback")
			return
		}
		c.seeking = false
		c.buffering = false
		if c.streamer != nil {
			c.streamer.StartLoad(c.el.CurrentTime())
		}
		c.displayed = c.livePosition()
		c.play()
		return
	}

	c.perf.EndSpan("seek/hls-api", nil)
	c.perf.IngestBackendTiming("seek/hls", res.Timing)
	c.session.SetSessionID(res.SessionID)

	if res.Reused && !recovery && (c.streamer != nil || c.native) {
		rel := target - c.startOff
		c.el.SetCurrentTime(rel)
		if c.streamer != nil {
			c.streamer.StartLoad(rel)
		}
		c.play()
		c.settleSeek(gen, target, seekPathReuse)
		return
	}

	// Segments carrying original timestamps make element time absolute.
	c.startOff = res.StartSeconds
	if res.VideoCopied {
		c.startOff = 0
	}
	manifest := c.api.Resolve(res.ManifestURL)
	c.destroyStreamer()
	c.el.Reset()
	c.perf.StartSpan("seek/hls-manifest", telemetry.CategoryNetwork, telemetry.Meta{"reused": res.Reused, "start": res.StartSeconds})

	if c.native {
		c.el.SetSource(manifest)
		c.perf.EndSpan("seek/hls-manifest", nil)
		c.play()
		c.settleSeek(gen, target, seekPathRecreate)
		return
	}
	kind := loadSeek
	if recovery {
		kind = loadRecovery
	}
	c.pending = &manifestLoad{gen: gen, kind: kind, target: target}
	c.attachStreamer(manifest)
}

// settleSeek completes a segmented seek after playback had a moment to resume.
// The confirmed position becomes the requested target, not the snapped start.
func (c *Controller) settleSeek(gen uint64, target float64, path string) {
	c.stopSettle()
	c.settle = c.after(c.opts.SeekSettle, func() {
		if gen != c.generation {
			return
		}
		c.settle = nil
		c.seeking = false
		c.buffering = false
		c.commitPosition(target)
		c.finishSeek("seek/hls-total", path)
	})
}

func (c *Controller) finishSeek(span, path string) {
	c.perf.EndSpan(span, telemetry.Meta{"path": path})
	elapsed := c.clk.Now().Sub(c.seekStarted)
	metrics.ObserveSeek(path, metrics.OutcomeOK, elapsed.Seconds())
	ms := float64(elapsed) / float64(time.Millisecond)
	c.trackMetric("seek_ms", &ms, map[string]string{"path": path})
}

// seekProgressive restarts the byte-range transcode from the keyframe at or
// before target.
func (c *Controller) seekProgressive(gen uint64, target float64) {
	c.perf.StartSpan("seek/transcode-total", telemetry.CategoryFrontend, telemetry.Meta{"target": math.Round(target)})
	c.el.Pause()
	c.perf.StartSpan("seek/keyframe-lookup", telemetry.CategoryNetwork, nil)

	id := c.item.ID
	c.async(func(ctx context.Context) func() {
		kf, err := c.api.KeyframeLookup(ctx, id, target)
		return func() {
			if gen != c.generation {
				return
			}
			c.perf.EndSpan("seek/keyframe-lookup", nil)
			actual := target
			if err != nil {
				c.logger.Debug().Err(err).Str(xglog.FieldContentID, id).Msg("keyframe lookup failed, seeking to requested time")
			} else {
				c.perf.IngestBackendTiming("seek/keyframe", kf.Timing)
				if kf.Keyframe >= 0 {
					actual = kf.Keyframe
				}
			}
			c.seekOff = actual
			c.displayed = actual
			c.commitPosition(actual)
			c.loadStream("seek/stream-load", actual)

			c.stopSettle()
			c.settle = c.after(c.opts.ProgressiveSettle, func() {
				if gen != c.generation {
					return
				}
				c.settle = nil
				c.seeking = false
			})
		}
	})
}

func (c *Controller) seekDirect(target float64) {
	c.perf.StartSpan("seek/direct", telemetry.CategoryFrontend, telemetry.Meta{"target": math.Round(target)})
	c.directSeek = true
	c.el.SetCurrentTime(target - c.seekOff)
}

func (c *Controller) onDirectSeeked() {
	if !c.directSeek {
		return
	}
	c.directSeek = false
	c.seeking = false
	c.buffering = false
	c.commitPosition(c.displayed)
	c.finishSeek("seek/direct", seekPathDirect)
}

func seekPathOf(res backend.SeekResult, recovery bool) string {
	if res.Reused && !recovery {
		return seekPathReuse
	}
	return seekPathRecreate
}
