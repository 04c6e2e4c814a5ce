// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"net/url"
	"strconv"
	"strings"
)

// URLs builds media URLs consumed directly by the rendering element or streaming
// library. Media elements cannot send headers, so the token travels as a query param.
type URLs struct {
	Base  string
	Token string
}

// ManifestURL is the master playlist for a segmented session starting at start.
func (u URLs) ManifestURL(contentID string, start float64, playbackSessionID string) string {
	q := url.Values{}
	q.Set("start", formatSeconds(start))
	if playbackSessionID != "" {
		q.Set("playback_session_id", playbackSessionID)
	}
	return u.build("/api/stream/"+url.PathEscape(contentID)+"/hls/master.m3u8", q)
}

// StreamURL is the progressive byte stream, optionally starting at start with an audio selector.
func (u URLs) StreamURL(contentID string, start float64, audioIndex *int) string {
	q := url.Values{}
	if start > 0 {
		q.Set("start", formatSeconds(start))
	}
	if audioIndex != nil {
		q.Set("audio_stream", strconv.Itoa(*audioIndex))
	}
	return u.build("/api/stream/"+url.PathEscape(contentID), q)
}

// Resolve makes a server-relative URL (as returned in master_url) absolute and authenticated.
func (u URLs) Resolve(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if !parsed.IsAbs() {
		base, err := url.Parse(strings.TrimRight(u.Base, "/") + "/")
		if err == nil {
			parsed = base.ResolveReference(parsed)
		}
	}
	return u.withToken(parsed)
}

func (u URLs) build(path string, q url.Values) string {
	parsed, err := url.Parse(strings.TrimRight(u.Base, "/") + path)
	if err != nil {
		return path
	}
	parsed.RawQuery = q.Encode()
	return u.withToken(parsed)
}

func (u URLs) withToken(parsed *url.URL) string {
	if u.Token != "" {
		q := parsed.Query()
		if q.Get("token") == "" {
			q.Set("token", u.Token)
			parsed.RawQuery = q.Encode()
		}
	}
	return parsed.String()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
