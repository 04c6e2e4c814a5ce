// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

// MediaItem is the subset of the media record the player needs.
type MediaItem struct {
	ID         string  `json:"id"`
	LibraryID  string  `json:"library_id"`
	Title      string  `json:"title"`
	DurationMs *int64  `json:"duration_ms"`
	Container  *string `json:"container_format"`
	VideoCodec *string `json:"video_codec"`
	AudioCodec *string `json:"audio_codec"`
	Height     *int    `json:"height"`
	PositionMs *int64  `json:"position_ms"`
	Completed  bool    `json:"completed"`
}

// DurationSeconds returns the known duration, or 0.
func (m MediaItem) DurationSeconds() float64 {
	if m.DurationMs == nil {
		return 0
	}
	return float64(*m.DurationMs) / 1000
}

// Stream types reported by the backend.
const (
	StreamVideo    = "video"
	StreamAudio    = "audio"
	StreamSubtitle = "subtitle"
)

// MediaStream describes one probed stream.
type MediaStream struct {
	ID          int64   `json:"id"`
	StreamIndex int     `json:"stream_index"`
	StreamType  string  `json:"stream_type"`
	CodecName   *string `json:"codec_name"`
	Language    *string `json:"language"`
	Title       *string `json:"title"`
	IsDefault   int     `json:"is_default"`
	IsForced    int     `json:"is_forced"`
	Height      *int    `json:"height"`
	Channels    *int    `json:"channels"`
}

// SubtitleTrack is an external subtitle file attached to a media item.
type SubtitleTrack struct {
	ID       int64   `json:"id"`
	Format   string  `json:"format"`
	Language *string `json:"language"`
	Title    *string `json:"title"`
	IsForced int     `json:"is_forced"`
	IsSDH    int     `json:"is_sdh"`
}

// Chapter marks a named range of the media timeline.
type Chapter struct {
	Index       int     `json:"chapter_index"`
	Title       *string `json:"title"`
	StartTimeMs int64   `json:"start_time_ms"`
	EndTimeMs   int64   `json:"end_time_ms"`
}

// Episode is the next item for up-next transitions.
type Episode struct {
	MediaItemID   string  `json:"media_item_id"`
	Title         *string `json:"episode_title"`
	SeasonNumber  *int    `json:"season_number"`
	EpisodeNumber *int    `json:"episode_number"`
}

// LanguageDefaults are the per-user track language preferences declared by the server.
type LanguageDefaults struct {
	AudioLanguage    string `json:"preferred_audio_language"`
	SubtitleLanguage string `json:"preferred_subtitle_language"`
	SubtitlesEnabled bool   `json:"subtitles_enabled"`
}

// SessionStart is the answer to a segmented session start.
type SessionStart struct {
	PlaybackSessionID string `json:"playback_session_id"`
	ManifestURL       string `json:"master_url"`
}

// SeekRequest asks the backend to reposition a segmented session.
type SeekRequest struct {
	ContentID         string
	TargetSeconds     float64
	AudioIndex        *int
	SubtitleID        *int64
	PlaybackSessionID string
}

// SeekResult is the backend's seek response.
type SeekResult struct {
	SessionID      string             `json:"session_id"`
	ManifestURL    string             `json:"master_url"`
	StartSeconds   float64            `json:"start_secs"`
	RequestedStart float64            `json:"requested_start"`
	Reused         bool               `json:"reused"`
	VideoCopied    bool               `json:"video_copied"`
	VariantCount   int                `json:"variant_count"`
	SeekSource     string             `json:"seek_source"`
	Timing         map[string]float64 `json:"timing_ms,omitempty"`
}

// KeyframeResult is the nearest decodable frame at or before the requested time.
type KeyframeResult struct {
	Requested float64            `json:"requested"`
	Keyframe  float64            `json:"keyframe"`
	SeekMode  string             `json:"seek_mode"`
	Source    string             `json:"source"`
	Timing    map[string]float64 `json:"timing_ms,omitempty"`
}

// Metric is a client-side measurement forwarded to the backend.
// Exactly one of Value or Increment is meaningful.
type Metric struct {
	Name      string            `json:"name"`
	Value     *float64          `json:"value,omitempty"`
	Increment bool              `json:"increment,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}
