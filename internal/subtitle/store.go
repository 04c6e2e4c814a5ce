// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package subtitle fetches, parses and looks up timed subtitle cues.
package subtitle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/vodplayer/internal/cache"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/rs/zerolog"
)

// ErrSuperseded is returned by Load when a newer Load or Clear replaced it.
var ErrSuperseded = errors.New("subtitle: load superseded")

// Fetcher returns the raw payload of a subtitle track.
type Fetcher interface {
	FetchSubtitle(ctx context.Context, subtitleID int64) ([]byte, error)
}

const parsedTTL = 30 * time.Minute

// Store holds the cue set currently displayed for one playback session.
type Store struct {
	fetcher Fetcher
	parsed  *cache.Memory[CueSet]
	logger  zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	current CueSet
	applied *int64
}

// NewStore creates a cue store. parsed may be shared between sessions; nil disables caching.
func NewStore(fetcher Fetcher, parsed *cache.Memory[CueSet]) *Store {
	return &Store{
		fetcher: fetcher,
		parsed:  parsed,
		logger:  xglog.WithComponent("subtitle"),
	}
}

// Load cancels any in-flight load, then fetches and parses subtitleID. Cues are
// applied only while this load is still the newest one; a cancelled or failed
// load leaves previously applied cues untouched.
func (s *Store) Load(ctx context.Context, subtitleID int64) error {
	return s.Start(ctx, subtitleID)()
}

// Start registers a load of subtitleID as the newest one and returns the blocking
// fetch. Registration order decides which load wins, not the order in which the
// returned functions run. The returned function must be called.
func (s *Store) Start(ctx context.Context, subtitleID int64) func() error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	token := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	return func() error {
		defer cancel()
		cues, err := s.fetchParsed(ctx, subtitleID)

		s.mu.Lock()
		defer s.mu.Unlock()
		if token != s.seq {
			return ErrSuperseded
		}
		s.cancel = nil
		if err != nil {
			s.logger.Debug().Err(err).Int64(xglog.FieldSubtitleID, subtitleID).Msg("subtitle load failed")
			return err
		}
		s.current = cues
		id := subtitleID
		s.applied = &id
		return nil
	}
}

func (s *Store) fetchParsed(ctx context.Context, subtitleID int64) (CueSet, error) {
	key := strconv.FormatInt(subtitleID, 10)
	if s.parsed != nil {
		if cues, ok := s.parsed.Get(key); ok {
			return cues, nil
		}
	}
	raw, err := s.fetcher.FetchSubtitle(ctx, subtitleID)
	if err != nil {
		return nil, fmt.Errorf("fetch subtitle %d: %w", subtitleID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cues, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse subtitle %d: %w", subtitleID, err)
	}
	if s.parsed != nil {
		s.parsed.Set(key, cues, parsedTTL)
	}
	return cues, nil
}

// Clear drops displayed cues immediately and invalidates any in-flight load.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
	s.current = nil
	s.applied = nil
}

// ActiveCueAt looks up the cue displayed at absolute time t.
func (s *Store) ActiveCueAt(t float64) (Cue, bool) {
	s.mu.Lock()
	cues := s.current
	s.mu.Unlock()
	return cues.ActiveAt(t)
}

// Applied returns the id of the track whose cues are displayed, or nil.
func (s *Store) Applied() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == nil {
		return nil
	}
	id := *s.applied
	return &id
}

// Len returns the number of displayed cues.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.current)
}
