// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"math"
	"strconv"

	xglog "github.com/ManuGH/vodplayer/internal/log"
)

const (
	volumeStep  = 5
	muteRestore = 50

	rateStep = 0.25
	rateMin  = 0.25
	rateMax  = 3
)

// Menus tracks which selection menus are open. At most one is open at a time.
type Menus struct {
	Subtitles bool
	Audio     bool
	Quality   bool
}

func (m Menus) any() bool {
	return m.Subtitles || m.Audio || m.Quality
}

// Key names understood by HandleKey besides single characters.
const (
	KeySpace      = " "
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyEscape     = "Escape"
)

// TogglePlay pauses a playing element and resumes a paused one.
func (c *Controller) TogglePlay() error {
	return c.do(c.togglePlay)
}

func (c *Controller) togglePlay() {
	if !c.opened {
		return
	}
	if c.el.Paused() {
		c.play()
		return
	}
	c.el.Pause()
}

// SetVolume sets volume in percent, clamped to 0..100, and persists it.
func (c *Controller) SetVolume(v int) error {
	return c.do(func() { c.setVolume(v) })
}

// ToggleMute mutes, or restores the volume before muting.
func (c *Controller) ToggleMute() error {
	return c.do(c.toggleMute)
}

func (c *Controller) setVolume(v int) {
	v = c.applyVolume(v)
	if v > 0 {
		c.lastVolume = v
	}
	store, value := c.prefs, strconv.Itoa(v)
	c.detach("volume", func(ctx context.Context) error {
		return store.Set(ctx, prefsScopePlayer, prefsKeyVolume, value)
	})
}

// applyVolume updates the element without persisting.
func (c *Controller) applyVolume(v int) int {
	v = max(0, min(100, v))
	c.volume = v
	c.el.SetVolume(float64(v) / 100)
	return v
}

func (c *Controller) toggleMute() {
	if c.volume > 0 {
		c.lastVolume = c.volume
		c.setVolume(0)
		return
	}
	restore := c.lastVolume
	if restore <= 0 {
		restore = muteRestore
	}
	c.setVolume(restore)
}

// ChangeRate adjusts the playback rate by delta within 0.25..3.
func (c *Controller) ChangeRate(delta float64) error {
	return c.do(func() { c.changeRate(delta) })
}

func (c *Controller) changeRate(delta float64) {
	r := math.Round((c.rate+delta)*100) / 100
	c.rate = math.Max(rateMin, math.Min(rateMax, r))
	c.el.SetPlaybackRate(c.rate)
}

// ToggleFullscreen flips the element's fullscreen state.
func (c *Controller) ToggleFullscreen() error {
	return c.do(func() { c.el.SetFullscreen(!c.el.Fullscreen()) })
}

// CancelUpNext stops the up-next countdown.
func (c *Controller) CancelUpNext() error {
	return c.do(func() { c.cont.Cancel() })
}

// PlayNextNow skips the rest of the up-next countdown.
func (c *Controller) PlayNextNow() error {
	return c.do(func() { c.cont.PlayNow() })
}

// HandleKey runs the command bound to key. Unbound keys are ignored.
func (c *Controller) HandleKey(key string) error {
	return c.do(func() { c.handleKey(key) })
}

func (c *Controller) handleKey(key string) {
	c.logger.Trace().Str("key", key).Msg("key")
	switch key {
	case KeySpace, "k":
		c.togglePlay()
	case KeyArrowLeft, "j":
		c.seekRelative(-c.opts.SeekStep)
	case KeyArrowRight, "l":
		c.seekRelative(c.opts.SeekStep)
	case KeyArrowUp:
		c.setVolume(c.volume + volumeStep)
	case KeyArrowDown:
		c.setVolume(c.volume - volumeStep)
	case "m":
		c.toggleMute()
	case "f":
		c.el.SetFullscreen(!c.el.Fullscreen())
	case "<":
		c.changeRate(-rateStep)
	case ">":
		c.changeRate(rateStep)
	case "s":
		c.menus = Menus{Subtitles: !c.menus.Subtitles}
	case "a":
		c.menus = Menus{Audio: !c.menus.Audio}
	case "q":
		c.menus = Menus{Quality: !c.menus.Quality}
	case "p":
		c.overlay = !c.overlay
	case KeyEscape:
		c.escape()
	}
}

// escape closes menus first, then leaves fullscreen, then exits the screen.
func (c *Controller) escape() {
	switch {
	case c.menus.any():
		c.menus = Menus{}
	case c.el.Fullscreen():
		c.el.SetFullscreen(false)
	default:
		c.logger.Debug().Str(xglog.FieldContentID, c.item.ID).Msg("exit requested")
		if c.opts.OnExit != nil {
			c.opts.OnExit()
		}
	}
}
