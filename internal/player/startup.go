// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"

	"github.com/ManuGH/vodplayer/internal/backend"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/session"
	"github.com/ManuGH/vodplayer/internal/telemetry"
	"github.com/ManuGH/vodplayer/internal/tracks"
	"golang.org/x/sync/errgroup"
)

// Auxiliary features that degrade independently.
const (
	FeatureStreams   = "streams"
	FeatureSubtitles = "subtitles"
	FeatureChapters  = "chapters"
	FeatureUpNext    = "up-next"
	FeatureLanguages = "language-defaults"
)

// startPlayback picks the initial delivery path.
//
//	direct                       byte stream, start offset applied on the element
//	segmented + streaming lib    session start, manifest through a Streamer
//	segmented + native support   session start, manifest on the element
//	segmented otherwise          keyframe-snapped progressive transcode
func (c *Controller) startPlayback(startAt float64) {
	switch {
	case c.decision.Segmented && c.streamers != nil && c.streamers.Supported():
		c.startSegmented(startAt, false)
	case c.decision.Segmented && c.el.CanPlaySegmented():
		c.startSegmented(startAt, true)
	case c.decision.Segmented:
		c.startProgressive(startAt)
	default:
		c.startDirect(startAt)
	}
}

func (c *Controller) startDirect(startAt float64) {
	c.hls = false
	c.progressive = false
	c.seekOff = 0
	if startAt > 1 {
		c.metaStart = startAt
	}
	c.loadStream("init/stream-load", 0)
}

// startProgressive snaps a non-zero start to the nearest keyframe first so the
// transcode begins on a decodable frame.
func (c *Controller) startProgressive(startAt float64) {
	c.hls = false
	c.progressive = true
	c.seekOff = 0
	if startAt <= 1 {
		c.loadStream("init/stream-load", 0)
		return
	}

	gen, id := c.generation, c.item.ID
	c.seekOff = startAt
	c.perf.StartSpan("init/keyframe-lookup", telemetry.CategoryNetwork, nil)
	c.async(func(ctx context.Context) func() {
		kf, err := c.api.KeyframeLookup(ctx, id, startAt)
		return func() {
			if gen != c.generation {
				return
			}
			c.perf.EndSpan("init/keyframe-lookup", nil)
			if err != nil {
				c.logger.Debug().Err(err).Str(xglog.FieldContentID, id).Msg("keyframe lookup failed, starting at requested offset")
			} else {
				c.perf.IngestBackendTiming("init/keyframe", kf.Timing)
				if kf.Keyframe > 0 {
					c.seekOff = kf.Keyframe
					c.displayed = kf.Keyframe
					c.commitPosition(kf.Keyframe)
				}
			}
			c.loadStream("init/stream-load", c.seekOff)
		}
	})
}

// loadStream points the element at the progressive byte stream from offset.
// span is closed by the next canplay.
func (c *Controller) loadStream(span string, offset float64) {
	c.perf.StartSpan(span, telemetry.CategoryNetwork, nil)
	c.streamLoad = span
	c.el.SetSource(c.api.StreamURL(c.item.ID, offset, c.tracks.Current().AudioSelector()))
	c.play()
}

func (c *Controller) onStreamLoaded() {
	if c.streamLoad == "" {
		return
	}
	span := c.streamLoad
	c.streamLoad = ""
	c.perf.EndSpan(span, nil)
	if span == "seek/stream-load" {
		c.finishSeek("seek/transcode-total", seekPathKeyframe)
	}
}

func (c *Controller) startSegmented(startAt float64, native bool) {
	c.hls = true
	c.native = native
	c.progressive = false
	c.startOff = startAt

	gen, seq, id := c.generation, c.openSeq, c.item.ID
	mgr := c.session
	c.perf.StartSpan("init/hls-setup", telemetry.CategoryFrontend, nil)
	c.async(func(ctx context.Context) func() {
		info := mgr.Start(ctx, id, startAt)
		return func() {
			if seq != c.openSeq {
				mgr.Stop(c.ctx)
				return
			}
			c.onSessionStarted(gen, startAt, info)
		}
	})
}

func (c *Controller) onSessionStarted(gen uint64, startAt float64, info session.Info) {
	c.session.StartHeartbeat()
	c.logger.Debug().
		Str(xglog.FieldContentID, c.item.ID).
		Str(xglog.FieldPlaybackSessionID, info.PlaybackSessionID).
		Bool("fallback", info.Fallback).
		Msg("segmented session started")
	if gen != c.generation {
		// A seek issued during startup owns the element now.
		c.perf.EndSpan("init/hls-setup", nil)
		return
	}
	if c.native {
		c.el.SetSource(info.ManifestURL)
		c.perf.EndSpan("init/hls-setup", nil)
		c.play()
		return
	}
	c.pending = &manifestLoad{gen: gen, kind: loadStartup, target: startAt}
	c.attachStreamer(info.ManifestURL)
}

// attachStreamer replaces the stream consumer with a new one loading url.
func (c *Controller) attachStreamer(url string) {
	c.destroyStreamer()
	var s Streamer
	s = c.streamers.New(func(ev StreamEvent) {
		c.box.post(func() { c.onStreamEvent(s, ev) })
	})
	c.streamer = s
	s.LoadSource(url)
	s.AttachMedia(c.el)
}

func (c *Controller) destroyStreamer() {
	if c.streamer == nil {
		return
	}
	c.streamer.StopLoad()
	c.streamer.DetachMedia()
	c.streamer.Destroy()
	c.streamer = nil
	c.levels = nil
}

func (c *Controller) onStreamEvent(s Streamer, ev StreamEvent) {
	if s != c.streamer {
		// Replaced consumers were destroyed when they were replaced.
		return
	}
	switch ev.Kind {
	case StreamManifestParsed:
		c.onManifestParsed()
	case StreamLevelSwitched:
		if ev.Level >= 0 && ev.Level < len(c.levels) {
			c.perf.Event("playback/level-switched", telemetry.CategoryFrontend, telemetry.Meta{"height": c.levels[ev.Level].Height})
		}
	case StreamError:
		c.onStreamError(ev)
	case StreamManifestLoaded:
	}
}

// onManifestParsed completes the load that created the current streamer, unless a
// newer seek has taken over in the meantime.
func (c *Controller) onManifestParsed() {
	c.levels = c.streamer.Levels()
	c.recovery.succeeded()

	p := c.pending
	c.pending = nil
	if p == nil || p.gen != c.generation {
		return
	}
	c.applyQuality()
	c.reapplySubtitle()
	c.play()

	if p.kind == loadStartup {
		c.perf.EndSpan("init/hls-setup", nil)
		return
	}
	c.perf.EndSpan("seek/hls-manifest", nil)
	c.settleSeek(p.gen, p.target, seekPathRecreate)
}

type auxiliary struct {
	streams   []backend.MediaStream
	subtitles []backend.SubtitleTrack
	chapters  []backend.Chapter
	next      *backend.Episode
	defaults  backend.LanguageDefaults
	selection tracks.Selection
	failed    map[string]error
}

// fetchAuxiliary loads track lists, chapters and the next item concurrently. A
// failure only disables the affected feature.
func (c *Controller) fetchAuxiliary() {
	seq, item, mgr := c.openSeq, c.item, c.tracks
	c.async(func(ctx context.Context) func() {
		var (
			aux                                                auxiliary
			errStreams, errSubs, errChapters, errNext, errLang error
			g                                                  errgroup.Group
		)
		g.Go(func() error { aux.streams, errStreams = c.api.FetchStreams(ctx, item.ID); return nil })
		g.Go(func() error { aux.subtitles, errSubs = c.api.FetchSubtitles(ctx, item.ID); return nil })
		g.Go(func() error { aux.chapters, errChapters = c.api.FetchChapters(ctx, item.ID); return nil })
		g.Go(func() error { aux.next, errNext = c.api.FetchNextEpisode(ctx, item.ID); return nil })
		g.Go(func() error { aux.defaults, errLang = c.api.FetchLanguageDefaults(ctx); return nil })
		_ = g.Wait()

		aux.failed = make(map[string]error)
		for name, err := range map[string]error{
			FeatureStreams:   errStreams,
			FeatureSubtitles: errSubs,
			FeatureChapters:  errChapters,
			FeatureUpNext:    errNext,
			FeatureLanguages: errLang,
		} {
			if err != nil {
				aux.failed[name] = err
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		aux.selection = mgr.Restore(ctx, tracks.Scope(item.LibraryID), aux.defaults, tracks.Tracks{
			Audio:     tracks.AudioStreams(aux.streams),
			Subtitles: aux.subtitles,
		})
		return func() {
			if seq != c.openSeq {
				return
			}
			c.applyAuxiliary(aux)
		}
	})
}

func (c *Controller) applyAuxiliary(aux auxiliary) {
	for name, err := range aux.failed {
		c.unavailable[name] = true
		c.logger.Debug().Err(err).
			Str(xglog.FieldContentID, c.item.ID).
			Str("feature", name).
			Str("class", string(ClassAuxiliary)).
			Msg("auxiliary data unavailable")
	}
	c.audioTracks = tracks.AudioStreams(aux.streams)
	c.subtitleTracks = aux.subtitles
	c.chapters = aux.chapters
	c.cont.SetNext(aux.next)

	sel := aux.selection
	c.subtitleID = sel.SubtitleID
	if sel.SubtitleID != nil {
		c.loadSubtitle(*sel.SubtitleID)
	}
	c.applyQuality()
	// The session was started on the default audio track. A choice the user made
	// meanwhile restarts delivery through its own command.
	if sel.AudioIndex != 0 && !c.tracks.Touched(tracks.KeyAudioTrack) {
		c.switchAudio()
	}
}
