// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend is the HTTP client for the media server API consumed by the player.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/metrics"
	"github.com/ManuGH/vodplayer/internal/platform/httpx"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// API is every backend operation the player consumes.
type API interface {
	StartSegmentedSession(ctx context.Context, contentID string, startSeconds float64, playbackSessionID string) (SessionStart, error)
	HeartbeatSession(ctx context.Context, contentID, playbackSessionID string) error
	StopSession(ctx context.Context, contentID, playbackSessionID string) error
	CleanupMedia(ctx context.Context, contentID, playbackSessionID string) error
	StopSegmentSession(ctx context.Context, contentID, sessionID string) error
	Seek(ctx context.Context, req SeekRequest) (SeekResult, error)
	KeyframeLookup(ctx context.Context, contentID string, timeSeconds float64) (KeyframeResult, error)
	ReportProgress(ctx context.Context, contentID string, positionMs int64) error
	MarkCompleted(ctx context.Context, contentID string) error
	FetchMedia(ctx context.Context, contentID string) (MediaItem, error)
	FetchStreams(ctx context.Context, contentID string) ([]MediaStream, error)
	FetchSubtitles(ctx context.Context, contentID string) ([]SubtitleTrack, error)
	FetchChapters(ctx context.Context, contentID string) ([]Chapter, error)
	FetchNextEpisode(ctx context.Context, contentID string) (*Episode, error)
	FetchLanguageDefaults(ctx context.Context) (LanguageDefaults, error)
	FetchSubtitle(ctx context.Context, subtitleID int64) ([]byte, error)
	TrackMetric(ctx context.Context, m Metric) error

	ManifestURL(contentID string, start float64, playbackSessionID string) string
	StreamURL(contentID string, start float64, audioIndex *int) string
	Resolve(ref string) string
}

// Options configures a Client.
type Options struct {
	BaseURL             string
	Token               string
	Timeout             time.Duration
	MetricRatePerSecond float64
	HTTPClient          *http.Client
}

// Client implements API over HTTP with bearer-token auth.
type Client struct {
	URLs

	base    *url.URL
	http    *http.Client
	logger  zerolog.Logger
	group   singleflight.Group
	limiter *rate.Limiter
}

var _ API = (*Client)(nil)

// NewClient creates a backend client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base URL %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpx.NewInstrumentedClient(opts.Timeout)
	}
	perSecond := opts.MetricRatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Client{
		URLs:    URLs{Base: base.String(), Token: opts.Token},
		base:    base,
		http:    hc,
		logger:  xglog.WithComponent("backend"),
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do performs one call and decodes a JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) (http.Header, error) {
	hdr, err := c.doRaw(ctx, op, method, path, q, body, func(r io.Reader) error {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(r).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("backend %s: decode response: %w", op, err)
		}
		return nil
	})
	return hdr, err
}

func (c *Client) doRaw(ctx context.Context, op, method, path string, q url.Values, body any, read func(io.Reader) error) (hdr http.Header, err error) {
	defer func() { metrics.IncBackendRequest(op, err) }()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), reader)
	if err != nil {
		return nil, fmt.Errorf("backend %s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if pid := xglog.PlaybackSessionIDFromContext(ctx); pid != "" {
		req.Header.Set("X-Playback-Session-Id", pid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, statusError(op, resp)
	}
	if resp.StatusCode == http.StatusNoContent || read == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	return resp.Header, read(resp.Body)
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Op: op, Status: resp.StatusCode, Message: msg}
}

func mediaPath(contentID string) string {
	return "/api/stream/" + url.PathEscape(contentID)
}

func sessionQuery(playbackSessionID string) url.Values {
	q := url.Values{}
	if playbackSessionID != "" {
		q.Set("playback_session_id", playbackSessionID)
	}
	return q
}

// StartSegmentedSession asks the backend for a new segmented session.
func (c *Client) StartSegmentedSession(ctx context.Context, contentID string, startSeconds float64, playbackSessionID string) (SessionStart, error) {
	q := sessionQuery(playbackSessionID)
	q.Set("start", formatSeconds(startSeconds))
	var out SessionStart
	_, err := c.do(ctx, "session_start", http.MethodPost, mediaPath(contentID)+"/hls/session/start", q, nil, &out)
	return out, err
}

func (c *Client) HeartbeatSession(ctx context.Context, contentID, playbackSessionID string) error {
	_, err := c.do(ctx, "session_heartbeat", http.MethodPost, mediaPath(contentID)+"/hls/session/heartbeat", sessionQuery(playbackSessionID), nil, nil)
	return err
}

func (c *Client) StopSession(ctx context.Context, contentID, playbackSessionID string) error {
	_, err := c.do(ctx, "session_stop", http.MethodDelete, mediaPath(contentID)+"/hls/session/stop", sessionQuery(playbackSessionID), nil, nil)
	return err
}

// CleanupMedia releases every server-side resource tied to contentID for this viewer.
func (c *Client) CleanupMedia(ctx context.Context, contentID, playbackSessionID string) error {
	_, err := c.do(ctx, "media_cleanup", http.MethodDelete, mediaPath(contentID)+"/hls", sessionQuery(playbackSessionID), nil, nil)
	return err
}

// StopSegmentSession stops one manifest session by its id.
func (c *Client) StopSegmentSession(ctx context.Context, contentID, sessionID string) error {
	_, err := c.do(ctx, "segment_stop", http.MethodDelete, mediaPath(contentID)+"/hls/"+url.PathEscape(sessionID), nil, nil, nil)
	return err
}

// Seek repositions (or recreates) the segmented session at TargetSeconds.
func (c *Client) Seek(ctx context.Context, req SeekRequest) (SeekResult, error) {
	q := sessionQuery(req.PlaybackSessionID)
	q.Set("start", formatSeconds(req.TargetSeconds))
	if req.AudioIndex != nil {
		q.Set("audio_stream", strconv.Itoa(*req.AudioIndex))
	}
	if req.SubtitleID != nil {
		q.Set("subtitle_id", strconv.FormatInt(*req.SubtitleID, 10))
	}
	var out SeekResult
	hdr, err := c.do(ctx, "seek", http.MethodPost, mediaPath(req.ContentID)+"/hls/seek", q, nil, &out)
	if err == nil && len(out.Timing) == 0 {
		out.Timing = ParseServerTiming(hdr.Get("Server-Timing"))
	}
	return out, err
}

// KeyframeLookup finds the keyframe at or before timeSeconds. Concurrent lookups for
// the same content and time share one request.
func (c *Client) KeyframeLookup(ctx context.Context, contentID string, timeSeconds float64) (KeyframeResult, error) {
	key := contentID + "@" + formatSeconds(timeSeconds)
	v, err, _ := c.group.Do(key, func() (any, error) {
		q := url.Values{}
		q.Set("time", formatSeconds(timeSeconds))
		var out KeyframeResult
		hdr, err := c.do(ctx, "keyframe", http.MethodGet, mediaPath(contentID)+"/keyframe", q, nil, &out)
		if err != nil {
			return KeyframeResult{}, err
		}
		if len(out.Timing) == 0 {
			out.Timing = ParseServerTiming(hdr.Get("Server-Timing"))
		}
		return out, nil
	})
	if err != nil {
		return KeyframeResult{}, err
	}
	return v.(KeyframeResult), nil
}

func (c *Client) ReportProgress(ctx context.Context, contentID string, positionMs int64) error {
	body := struct {
		PositionMs int64 `json:"position_ms"`
	}{positionMs}
	_, err := c.do(ctx, "progress", http.MethodPut, "/api/progress/"+url.PathEscape(contentID), nil, body, nil)
	return err
}

func (c *Client) MarkCompleted(ctx context.Context, contentID string) error {
	_, err := c.do(ctx, "complete", http.MethodPost, "/api/progress/"+url.PathEscape(contentID)+"/complete", nil, nil, nil)
	return err
}

func (c *Client) FetchMedia(ctx context.Context, contentID string) (MediaItem, error) {
	var out MediaItem
	_, err := c.do(ctx, "media", http.MethodGet, "/api/media/"+url.PathEscape(contentID), nil, nil, &out)
	return out, err
}

func (c *Client) FetchStreams(ctx context.Context, contentID string) ([]MediaStream, error) {
	var out []MediaStream
	_, err := c.do(ctx, "streams", http.MethodGet, "/api/media/"+url.PathEscape(contentID)+"/streams", nil, nil, &out)
	return out, err
}

func (c *Client) FetchSubtitles(ctx context.Context, contentID string) ([]SubtitleTrack, error) {
	var out []SubtitleTrack
	_, err := c.do(ctx, "subtitles", http.MethodGet, "/api/media/"+url.PathEscape(contentID)+"/subtitles", nil, nil, &out)
	return out, err
}

func (c *Client) FetchChapters(ctx context.Context, contentID string) ([]Chapter, error) {
	var out []Chapter
	_, err := c.do(ctx, "chapters", http.MethodGet, "/api/media/"+url.PathEscape(contentID)+"/chapters", nil, nil, &out)
	return out, err
}

// FetchNextEpisode returns nil when contentID is the last item of its sequence.
func (c *Client) FetchNextEpisode(ctx context.Context, contentID string) (*Episode, error) {
	var out struct {
		Next *Episode `json:"next"`
	}
	_, err := c.do(ctx, "next_episode", http.MethodGet, "/api/episodes/"+url.PathEscape(contentID)+"/next", nil, nil, &out)
	return out.Next, err
}

func (c *Client) FetchLanguageDefaults(ctx context.Context) (LanguageDefaults, error) {
	var out LanguageDefaults
	_, err := c.do(ctx, "language_defaults", http.MethodGet, "/api/users/me/preferences", nil, nil, &out)
	return out, err
}

// FetchSubtitle returns the raw subtitle payload.
func (c *Client) FetchSubtitle(ctx context.Context, subtitleID int64) ([]byte, error) {
	var payload []byte
	_, err := c.doRaw(ctx, "subtitle_serve", http.MethodGet, "/api/subtitles/"+strconv.FormatInt(subtitleID, 10)+"/serve", nil, nil, func(r io.Reader) error {
		var err error
		payload, err = io.ReadAll(r)
		return err
	})
	return payload, err
}

// TrackMetric forwards a client metric. Calls beyond the configured rate are dropped.
func (c *Client) TrackMetric(ctx context.Context, m Metric) error {
	if !c.limiter.Allow() {
		c.logger.Debug().Str("metric", m.Name).Msg("metric dropped by rate limit")
		return nil
	}
	_, err := c.do(ctx, "metric", http.MethodPost, "/api/metrics/playback", nil, m, nil)
	return err
}
