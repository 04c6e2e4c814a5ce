// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/metrics"
	"github.com/ManuGH/vodplayer/internal/telemetry"
)

// recoveryState bounds session recreation after the server dropped a session.
type recoveryState struct {
	attempts int
	max      int
	// requesting is set while a recovery seek waits for the backend.
	requesting bool
	// active is set from a recovery seek until its manifest parses.
	active bool
}

func (r *recoveryState) succeeded() {
	r.attempts = 0
	r.active = false
}

func (r *recoveryState) exhausted() bool {
	return r.attempts >= r.max
}

// onStreamError handles errors of the current streamer. Missing segments or
// playlists mean the server-side session is gone and a new one is requested at
// the last displayed position; anything else fatal drops to progressive delivery.
func (c *Controller) onStreamError(ev StreamEvent) {
	class, handled := classifyStreamError(ev)
	if !handled || c.recovery.requesting {
		return
	}

	switch class {
	case ClassSessionExpired:
		if c.seeking && !c.recovery.active {
			// The user seek in flight replaces this streamer anyway.
			return
		}
		if c.recovery.exhausted() {
			metrics.IncRecovery(metrics.RecoveryExhausted)
			c.fallbackToProgressive(NoticeDeliveryFallback, ClassSessionExpired, "Streaming session could not be restored, switched to compatible playback")
			return
		}
		c.tryRecover(ev)
	case ClassFatalDelivery:
		label := "init/hls-error"
		if c.firstFrame {
			label = "seek/hls-error"
		}
		c.perf.Event(label, telemetry.CategoryFrontend, telemetry.Meta{"type": ev.Type, "details": ev.Details, "fatal": ev.Fatal})
		c.fallbackToProgressive(NoticeDeliveryFallback, ClassFatalDelivery, "Streaming failed, switched to compatible playback")
	}
}

func (c *Controller) tryRecover(ev StreamEvent) {
	c.recovery.attempts++
	c.recovery.requesting = true
	c.recovery.active = true
	metrics.IncRecovery(metrics.RecoveryAttempted)

	target := c.displayed
	if !c.seeking {
		target = c.livePosition()
	}
	c.perf.Event("recovery/attempt", telemetry.CategoryFrontend, telemetry.Meta{
		"attempt":  c.recovery.attempts,
		"details":  ev.Details,
		"position": target,
	})
	c.logger.Info().
		Str(xglog.FieldContentID, c.item.ID).
		Int(xglog.FieldAttempt, c.recovery.attempts).
		Float64(xglog.FieldTargetSeconds, target).
		Msg("segmented session expired, recreating")

	c.cancelDebounce()
	c.stopSettle()
	c.endRebuffer()
	c.generation++
	c.seeking = true
	c.buffering = true
	c.displayed = target
	c.seekStarted = c.clk.Now()
	c.seekSegmented(c.generation, target, true)
}

// fallbackToProgressive abandons segmented delivery and continues from the
// displayed position on the byte-range transcode. The confirmed position is kept.
func (c *Controller) fallbackToProgressive(kind NoticeKind, class ErrorClass, message string) {
	pos := c.displayed
	if !c.seeking {
		pos = c.livePosition()
	}
	c.generation++
	c.cancelDebounce()
	c.stopSettle()
	c.destroyStreamer()
	c.pending = nil
	c.el.Reset()
	c.session.Stop(c.ctx)
	c.hls, c.native = false, false
	c.progressive = true
	c.recovery.requesting = false
	c.recovery.active = false
	c.seeking = false
	c.buffering = true
	c.startOff = 0

	from := 0.0
	if pos > 0.5 {
		from = pos
	}
	c.displayed = from
	c.seekOff = from
	c.loadStream("playback/fallback-load", from)

	metrics.IncRecovery(metrics.RecoveryFallback)
	c.perf.Event("playback/fallback", telemetry.CategoryFrontend, telemetry.Meta{"class": string(class), "position": from})
	c.notify(Notice{Kind: kind, Class: class, Message: message})
}
