// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tracks owns the audio, subtitle and quality selection of a playback
// session and persists the user's choices per library.
package tracks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ManuGH/vodplayer/internal/backend"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/prefs"
	"github.com/rs/zerolog"
)

// Auto selects adaptive quality.
const Auto = -1

// Preference keys.
const (
	KeyAudioTrack    = "audio_track"
	KeySubtitleTrack = "subtitle_track"
	KeyQualityHeight = "quality_height"

	subtitleOff = "off"
)

// Selection is the active track choice.
type Selection struct {
	// AudioIndex is the position among the item's audio streams.
	AudioIndex int
	// SubtitleID is nil when subtitles are off.
	SubtitleID *int64
	// QualityHeight is a level height in pixels, or Auto.
	QualityHeight int
}

// DefaultSelection is first audio track, subtitles off, adaptive quality.
func DefaultSelection() Selection {
	return Selection{QualityHeight: Auto}
}

// AudioSelector returns the audio_stream value for backend calls; the first track
// is the backend default and is omitted.
func (s Selection) AudioSelector() *int {
	if s.AudioIndex <= 0 {
		return nil
	}
	idx := s.AudioIndex
	return &idx
}

// Tracks is the set of selectable tracks of one media item.
type Tracks struct {
	Audio     []backend.MediaStream
	Subtitles []backend.SubtitleTrack
}

// AudioStreams filters streams down to audio, keeping probe order.
func AudioStreams(streams []backend.MediaStream) []backend.MediaStream {
	out := make([]backend.MediaStream, 0, len(streams))
	for _, s := range streams {
		if s.StreamType == backend.StreamAudio {
			out = append(out, s)
		}
	}
	return out
}

// Scope is the preference scope for a library. Items without a library share
// the global scope.
func Scope(libraryID string) string {
	if libraryID == "" {
		return "global"
	}
	return "library:" + libraryID
}

// Manager holds the current selection and writes changes through to the
// preference store before they take effect.
type Manager struct {
	mu     sync.Mutex
	store  prefs.Store
	scope  string
	sel    Selection
	tracks Tracks
	logger zerolog.Logger

	// touched holds the keys set since NewManager; Restore leaves them alone.
	touched map[string]bool
}

func NewManager(store prefs.Store) *Manager {
	if store == nil {
		store = prefs.NewMemoryStore()
	}
	return &Manager{
		store:   store,
		scope:   Scope(""),
		sel:     DefaultSelection(),
		logger:  xglog.WithComponent("tracks"),
		touched: make(map[string]bool),
	}
}

// SetScope sets the preference scope that changes are written to before the
// first Restore.
func (m *Manager) SetScope(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scope = scope
}

// Touched reports whether key was changed through a setter.
func (m *Manager) Touched(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched[key]
}

// Current returns the active selection.
func (m *Manager) Current() Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel
}

// Tracks returns the tracks passed to the last Restore.
func (m *Manager) Tracks() Tracks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracks
}

// Restore computes the initial selection for an item. Stored choices win; without
// one the server-declared language defaults apply, then the stream flagged default.
// Store read failures degrade to defaults and are logged. Fields changed through
// a setter while Restore was reading keep the newer value.
func (m *Manager) Restore(ctx context.Context, scope string, defaults backend.LanguageDefaults, t Tracks) Selection {
	sel := DefaultSelection()

	stored := func(key string) (string, bool) {
		v, ok, err := m.store.Get(ctx, scope, key)
		if err != nil {
			m.logger.Warn().Err(err).Str("scope", scope).Str("key", key).Msg("preference read failed")
			return "", false
		}
		return v, ok
	}

	if v, ok := stored(KeyAudioTrack); ok {
		if idx, err := strconv.Atoi(v); err == nil && idx >= 0 && idx < len(t.Audio) {
			sel.AudioIndex = idx
		} else {
			sel.AudioIndex = defaultAudio(t.Audio, defaults.AudioLanguage)
		}
	} else {
		sel.AudioIndex = defaultAudio(t.Audio, defaults.AudioLanguage)
	}

	if v, ok := stored(KeySubtitleTrack); ok {
		if v != subtitleOff {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil && hasSubtitle(t.Subtitles, id) {
				sel.SubtitleID = &id
			}
		}
	} else if defaults.SubtitlesEnabled {
		sel.SubtitleID = defaultSubtitle(t.Subtitles, defaults.SubtitleLanguage)
	}

	if v, ok := stored(KeyQualityHeight); ok {
		if h, err := strconv.Atoi(v); err == nil && (h == Auto || h > 0) {
			sel.QualityHeight = h
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touched[KeyAudioTrack] {
		sel.AudioIndex = m.sel.AudioIndex
	}
	if m.touched[KeySubtitleTrack] {
		sel.SubtitleID = m.sel.SubtitleID
	}
	if m.touched[KeyQualityHeight] {
		sel.QualityHeight = m.sel.QualityHeight
	}
	m.scope = scope
	m.sel = sel
	m.tracks = t
	return sel
}

// SetAudioTrack persists and applies a new audio track.
func (m *Manager) SetAudioTrack(ctx context.Context, index int) (Selection, error) {
	m.mu.Lock()
	if index < 0 || (len(m.tracks.Audio) > 0 && index >= len(m.tracks.Audio)) {
		m.mu.Unlock()
		return m.Current(), fmt.Errorf("tracks: audio index %d out of range", index)
	}
	m.mu.Unlock()
	return m.update(ctx, KeyAudioTrack, strconv.Itoa(index), func(s *Selection) { s.AudioIndex = index })
}

// SetSubtitleTrack persists and applies a subtitle track; nil turns subtitles off.
func (m *Manager) SetSubtitleTrack(ctx context.Context, id *int64) (Selection, error) {
	value := subtitleOff
	var picked *int64
	if id != nil {
		v := *id
		picked = &v
		value = strconv.FormatInt(v, 10)
	}
	return m.update(ctx, KeySubtitleTrack, value, func(s *Selection) { s.SubtitleID = picked })
}

// SetQuality persists and applies a quality height, or Auto.
func (m *Manager) SetQuality(ctx context.Context, height int) (Selection, error) {
	if height != Auto && height <= 0 {
		return m.Current(), fmt.Errorf("tracks: invalid quality height %d", height)
	}
	return m.update(ctx, KeyQualityHeight, strconv.Itoa(height), func(s *Selection) { s.QualityHeight = height })
}

// update writes first; the in-memory selection changes even when the write
// fails so the user's choice still takes effect for this session.
func (m *Manager) update(ctx context.Context, key, value string, apply func(*Selection)) (Selection, error) {
	m.mu.Lock()
	scope := m.scope
	m.touched[key] = true
	m.mu.Unlock()

	err := m.store.Set(ctx, scope, key, value)
	if err != nil {
		m.logger.Warn().Err(err).Str("scope", scope).Str("key", key).Msg("preference write failed")
		err = fmt.Errorf("tracks: persist %s: %w", key, err)
	}

	m.mu.Lock()
	apply(&m.sel)
	sel := m.sel
	m.mu.Unlock()
	return sel, err
}

func hasSubtitle(subs []backend.SubtitleTrack, id int64) bool {
	for _, s := range subs {
		if s.ID == id {
			return true
		}
	}
	return false
}
