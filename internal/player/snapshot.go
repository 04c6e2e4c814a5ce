// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"maps"
	"slices"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/continuity"
	"github.com/ManuGH/vodplayer/internal/delivery"
	"github.com/ManuGH/vodplayer/internal/subtitle"
	"github.com/ManuGH/vodplayer/internal/tracks"
)

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	ContentID string
	Mode      delivery.Mode
	Segmented bool
	Open      bool

	// Position is the displayed position in absolute media seconds.
	Position        float64
	LastConfirmedMs int64
	Duration        float64
	BufferedEnd     float64
	Seeking         bool
	Buffering       bool
	Playing         bool
	Generation      uint64

	SessionID         string
	PlaybackSessionID string
	StartOffset       float64

	Selection      tracks.Selection
	AudioTracks    []backend.MediaStream
	SubtitleTracks []backend.SubtitleTrack
	Chapters       []backend.Chapter
	Levels         []tracks.Level

	RecoveryAttempts int
	Notices          []Notice
	UpNext           continuity.UpNext
	Cue              *subtitle.Cue

	Volume     int
	Muted      bool
	Rate       float64
	Fullscreen bool
	Menus      Menus
	Overlay    bool

	// Unavailable lists auxiliary features that failed to load.
	Unavailable []string
}

// Snapshot returns the current state. After Close it returns the state at close.
func (c *Controller) Snapshot() Snapshot {
	var s Snapshot
	if err := c.call(func() { s = c.snapshot() }); err != nil {
		<-c.done
		return c.final
	}
	return s
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		ContentID:         c.item.ID,
		Mode:              c.decision.Mode,
		Segmented:         c.hls,
		Open:              c.opened,
		Position:          c.displayed,
		LastConfirmedMs:   c.confirmedMs,
		Duration:          c.item.DurationSeconds(),
		Seeking:           c.seeking,
		Buffering:         c.buffering,
		Generation:        c.generation,
		SessionID:         c.session.SessionID(),
		PlaybackSessionID: c.session.PlaybackSessionID(),
		StartOffset:       c.startOff,
		Selection:         c.tracks.Current(),
		AudioTracks:       slices.Clone(c.audioTracks),
		SubtitleTracks:    slices.Clone(c.subtitleTracks),
		Chapters:          slices.Clone(c.chapters),
		Levels:            slices.Clone(c.levels),
		RecoveryAttempts:  c.recovery.attempts,
		Notices:           slices.Clone(c.notices),
		UpNext:            c.cont.State(),
		Volume:            c.volume,
		Muted:             c.volume == 0,
		Rate:              c.rate,
		Menus:             c.menus,
		Overlay:           c.overlay,
		Unavailable:       slices.Sorted(maps.Keys(c.unavailable)),
	}
	s.Selection.SubtitleID = c.subtitleID

	if !c.opened {
		return s
	}
	s.Playing = !c.el.Paused()
	s.Fullscreen = c.el.Fullscreen()
	base := c.seekOff
	if c.hls {
		base = c.startOff
	}
	for _, r := range c.el.Buffered() {
		s.BufferedEnd = max(s.BufferedEnd, base+r.End)
	}
	if cue, ok := c.subs.ActiveCueAt(c.displayed); ok {
		s.Cue = &cue
	}
	return s
}
