// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session manages the server-side segmented session of one playback:
// start, heartbeat and teardown.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/clock"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultHeartbeatInterval keeps the server from reaping an idle session.
const DefaultHeartbeatInterval = 15 * time.Second

const heartbeatTimeout = 5 * time.Second

// API is the subset of backend.API used for session lifecycle.
type API interface {
	StartSegmentedSession(ctx context.Context, contentID string, startSeconds float64, playbackSessionID string) (backend.SessionStart, error)
	HeartbeatSession(ctx context.Context, contentID, playbackSessionID string) error
	StopSession(ctx context.Context, contentID, playbackSessionID string) error
	CleanupMedia(ctx context.Context, contentID, playbackSessionID string) error
	StopSegmentSession(ctx context.Context, contentID, sessionID string) error
	ManifestURL(contentID string, start float64, playbackSessionID string) string
	Resolve(ref string) string
}

// Info is the result of Start.
type Info struct {
	ManifestURL       string
	PlaybackSessionID string
	// Fallback is set when the backend could not start a session and the
	// manifest URL was built locally.
	Fallback bool
}

// Config configures a Manager.
type Config struct {
	HeartbeatInterval time.Duration
	Clock             clock.Clock
	// NewID generates playback-session ids; defaults to random UUIDs.
	NewID func() string
}

// Manager tracks the ids of one segmented session. It is safe for concurrent use.
type Manager struct {
	api      API
	clk      clock.Clock
	interval time.Duration
	newID    func() string
	logger   zerolog.Logger

	mu                sync.Mutex
	contentID         string
	sessionID         string
	playbackSessionID string
	heartbeat         clock.Timer
	beating           bool

	inflight sync.WaitGroup
}

func NewManager(api API, cfg Config) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Manager{
		api:      api,
		clk:      cfg.Clock,
		interval: cfg.HeartbeatInterval,
		newID:    cfg.NewID,
		logger:   xglog.WithComponent("session"),
	}
}

// Start asks the backend for a segmented session at startSeconds. When the backend
// does not support session start the manifest URL is built directly with a locally
// generated playback-session id; Start never fails.
func (m *Manager) Start(ctx context.Context, contentID string, startSeconds float64) Info {
	m.mu.Lock()
	pbs := m.playbackSessionID
	if m.contentID != contentID || pbs == "" {
		pbs = m.newID()
	}
	m.mu.Unlock()

	info := Info{PlaybackSessionID: pbs}
	res, err := m.api.StartSegmentedSession(ctx, contentID, startSeconds, pbs)
	switch {
	case err == nil && res.ManifestURL != "":
		if res.PlaybackSessionID != "" {
			info.PlaybackSessionID = res.PlaybackSessionID
		}
		info.ManifestURL = m.api.Resolve(res.ManifestURL)
	default:
		if err != nil {
			m.logger.Debug().Err(err).Str(xglog.FieldContentID, contentID).Msg("session start unavailable, building manifest url")
		}
		info.Fallback = true
		info.ManifestURL = m.api.ManifestURL(contentID, startSeconds, pbs)
	}

	m.mu.Lock()
	m.contentID = contentID
	m.playbackSessionID = info.PlaybackSessionID
	m.mu.Unlock()
	return info
}

// SetSessionID records the manifest session id reported by a seek response.
func (m *Manager) SetSessionID(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Manager) PlaybackSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playbackSessionID
}

// StartHeartbeat sends one heartbeat now and then one per interval until Stop.
// Without a playback-session id it does nothing.
func (m *Manager) StartHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playbackSessionID == "" || m.beating {
		return
	}
	m.beating = true
	m.beatLocked()
}

func (m *Manager) beatLocked() {
	contentID, pbs := m.contentID, m.playbackSessionID
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
		defer cancel()
		if err := m.api.HeartbeatSession(ctx, contentID, pbs); err != nil {
			m.logger.Debug().Err(err).Str(xglog.FieldPlaybackSessionID, pbs).Msg("heartbeat failed")
		}
	}()
	m.heartbeat = m.clk.AfterFunc(m.interval, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.beating {
			return
		}
		m.beatLocked()
	})
}

// Stop cancels the heartbeat and releases the server-side session. It is
// idempotent and does not wait for the release calls, which run detached from ctx.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.beating = false
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	contentID, sid, pbs := m.contentID, m.sessionID, m.playbackSessionID
	m.sessionID, m.playbackSessionID = "", ""
	m.mu.Unlock()

	if contentID == "" {
		return
	}
	logger := m.logger.With().Str(xglog.FieldContentID, contentID).Logger()

	switch {
	case pbs != "":
		m.detached(ctx, logger, "session stop", func(ctx context.Context) error {
			return m.api.StopSession(ctx, contentID, pbs)
		})
		m.detached(ctx, logger, "media cleanup", func(ctx context.Context) error {
			return m.api.CleanupMedia(ctx, contentID, pbs)
		})
	case sid != "":
		m.detached(ctx, logger, "segment stop", func(ctx context.Context) error {
			return m.api.StopSegmentSession(ctx, contentID, sid)
		})
	}
}

func (m *Manager) detached(ctx context.Context, logger zerolog.Logger, what string, fn func(context.Context) error) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if err := backend.Keepalive(ctx, fn); err != nil {
			logger.Debug().Err(err).Str(xglog.FieldOperation, what).Msg("session release failed")
		}
	}()
}

// Wait blocks until every detached call has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}
