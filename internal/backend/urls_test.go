// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestURL(t *testing.T) {
	u := URLs{Base: "http://media:8080/", Token: "tok"}
	raw := u.ManifestURL("m1", 12.3456, "pbs")

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/stream/m1/hls/master.m3u8", parsed.Path)
	assert.Equal(t, "12.346", parsed.Query().Get("start"))
	assert.Equal(t, "pbs", parsed.Query().Get("playback_session_id"))
	assert.Equal(t, "tok", parsed.Query().Get("token"))
}

func TestStreamURL(t *testing.T) {
	u := URLs{Base: "http://media:8080"}
	assert.Equal(t, "http://media:8080/api/stream/m1", u.StreamURL("m1", 0, nil))

	audio := 1
	parsed, err := url.Parse(u.StreamURL("m1", 88.4, &audio))
	require.NoError(t, err)
	assert.Equal(t, "88.400", parsed.Query().Get("start"))
	assert.Equal(t, "1", parsed.Query().Get("audio_stream"))
	assert.Empty(t, parsed.Query().Get("token"))
}

func TestResolve(t *testing.T) {
	u := URLs{Base: "http://media:8080", Token: "tok"}
	assert.Equal(t, "http://media:8080/api/stream/m1/hls/s/master.m3u8?token=tok", u.Resolve("/api/stream/m1/hls/s/master.m3u8"))
	assert.Equal(t, "https://cdn/x.m3u8?token=given", u.Resolve("https://cdn/x.m3u8?token=given"))
	assert.Empty(t, u.Resolve(""))
}

func TestParseServerTiming(t *testing.T) {
	assert.Nil(t, ParseServerTiming(""))
	assert.Nil(t, ParseServerTiming("cache;desc=hit"))
	assert.Equal(t, map[string]float64{"db": 1.5, "seek": 40}, ParseServerTiming(`db;dur=1.5;desc="x", seek;dur="40"`))
}
