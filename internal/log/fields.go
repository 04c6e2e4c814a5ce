// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID         = "session_id"
	FieldPlaybackSessionID = "playback_session_id"
	FieldContentID         = "content_id"
	FieldRequestID         = "request_id"
	FieldSubtitleID        = "subtitle_id"

	// Process fields
	FieldEvent      = "event"
	FieldComponent  = "component"
	FieldGeneration = "generation"
	FieldOperation  = "op"

	// Media / delivery fields
	FieldDeliveryMode = "delivery_mode"
	FieldContainer    = "container"
	FieldVideoCodec   = "video_codec"
	FieldAudioCodec   = "audio_codec"
	FieldAudioIndex   = "audio_index"
	FieldHeight       = "height"

	// Timing fields
	FieldTargetSeconds = "target_s"
	FieldStartSeconds  = "start_s"
	FieldPositionMs    = "position_ms"
	FieldDurationMs    = "duration_ms"
	FieldAttempt       = "attempt"

	// Transport fields
	FieldPath   = "path"
	FieldStatus = "status"
)
