// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"
	"fmt"

	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/subtitle"
	"github.com/ManuGH/vodplayer/internal/telemetry"
	"github.com/ManuGH/vodplayer/internal/tracks"
)

// SetAudioTrack switches to the audio stream at index among the item's audio
// streams. The running delivery is restarted at the current position because
// audio is muxed server-side.
func (c *Controller) SetAudioTrack(index int) error {
	var err error
	if cerr := c.call(func() {
		if !c.opened {
			err = ErrNotOpen
			return
		}
		if index < 0 || (len(c.audioTracks) > 0 && index >= len(c.audioTracks)) {
			err = fmt.Errorf("player: audio track %d out of range", index)
			return
		}
		if index == c.tracks.Current().AudioIndex {
			return
		}
		c.persist(func(ctx context.Context, m *tracks.Manager) error {
			_, err := m.SetAudioTrack(ctx, index)
			return err
		}, c.switchAudio)
	}); cerr != nil {
		return cerr
	}
	return err
}

// switchAudio restarts delivery at the current position with the selected audio.
func (c *Controller) switchAudio() {
	pos := c.displayed
	if !c.seeking {
		pos = c.livePosition()
	}
	c.perf.Event("tracks/audio-switch", telemetry.CategoryFrontend, telemetry.Meta{
		"index":    c.tracks.Current().AudioIndex,
		"position": pos,
	})
	if c.hls || c.progressive || c.decision.Segmented {
		c.seekTo(pos)
		return
	}
	// Direct play has a single muxed file; another audio stream needs the
	// keyframe-aligned transcode, which later seeks must restart too.
	c.progressive = true
	gen := c.beginSeek(pos)
	c.seekProgressive(gen, pos)
}

// SetSubtitleTrack shows the subtitle track id, or turns subtitles off for nil.
func (c *Controller) SetSubtitleTrack(id *int64) error {
	var picked *int64
	if id != nil {
		v := *id
		picked = &v
	}
	return c.do(func() {
		if !c.opened {
			return
		}
		c.subtitleID = picked
		if picked == nil {
			c.subs.Clear()
		} else {
			c.loadSubtitle(*picked)
		}
		c.persist(func(ctx context.Context, m *tracks.Manager) error {
			_, err := m.SetSubtitleTrack(ctx, picked)
			return err
		}, nil)
	})
}

// loadSubtitle fetches cues for id. A newer selection supersedes this one even if
// its fetch finishes first.
func (c *Controller) loadSubtitle(id int64) {
	seq := c.openSeq
	load := c.subs.Start(c.ctx, id)
	c.async(func(context.Context) func() {
		err := load()
		if err == nil || errors.Is(err, subtitle.ErrSuperseded) || errors.Is(err, context.Canceled) {
			return nil
		}
		return func() {
			if seq != c.openSeq {
				return
			}
			c.logger.Debug().Err(err).
				Str(xglog.FieldContentID, c.item.ID).
				Int64(xglog.FieldSubtitleID, id).
				Str("class", string(ClassAuxiliary)).
				Msg("subtitle unavailable")
			c.unavailable[FeatureSubtitles] = true
		}
	})
}

// reapplySubtitle reloads the selected cues when they are not the ones displayed.
func (c *Controller) reapplySubtitle() {
	want := c.subtitleID
	have := c.subs.Applied()
	switch {
	case want == nil && have != nil:
		c.subs.Clear()
	case want != nil && (have == nil || *have != *want):
		c.loadSubtitle(*want)
	}
}

// SetQuality pins a rendition height, or tracks.Auto for adaptive selection.
func (c *Controller) SetQuality(height int) error {
	if height != tracks.Auto && height <= 0 {
		return fmt.Errorf("player: invalid quality height %d", height)
	}
	return c.do(func() {
		if !c.opened {
			return
		}
		c.persist(func(ctx context.Context, m *tracks.Manager) error {
			_, err := m.SetQuality(ctx, height)
			return err
		}, c.applyQuality)
	})
}

// applyQuality maps the selected height onto the current manifest's levels.
func (c *Controller) applyQuality() {
	if c.streamer == nil || len(c.levels) == 0 {
		return
	}
	h := c.tracks.Current().QualityHeight
	idx := tracks.ResolveLevel(c.levels, h)
	c.streamer.SetCurrentLevel(idx)
	c.logger.Debug().Int(xglog.FieldHeight, h).Int("level", idx).Msg("quality applied")
}

// persist writes a selection change off the controller goroutine, then runs then.
// A failed write still changes the selection for this session.
func (c *Controller) persist(write func(ctx context.Context, m *tracks.Manager) error, then func()) {
	seq, mgr := c.openSeq, c.tracks
	c.async(func(ctx context.Context) func() {
		err := write(ctx, mgr)
		return func() {
			if err != nil {
				c.logger.Debug().Err(err).Str("class", string(ClassAuxiliary)).Msg("track preference not persisted")
			}
			if seq != c.openSeq || then == nil {
				return
			}
			then()
		}
	})
}
