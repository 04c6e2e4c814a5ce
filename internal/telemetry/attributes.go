// SPDX-License-Identifier: MIT

// Package telemetry records playback timing spans and exports them to OpenTelemetry.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the player.
const (
	// Entry attributes
	CategoryKey = "perf.category"
	LabelKey    = "perf.label"

	// Playback attributes
	ContentIDKey         = "playback.content_id"
	PlaybackSessionIDKey = "playback.session_id"
	DeliveryModeKey      = "playback.delivery_mode"
	GenerationKey        = "playback.generation"

	// Seek attributes
	SeekTargetKey = "seek.target_s"
	SeekReusedKey = "seek.reused"
	SeekPathKey   = "seek.path"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// PlaybackAttributes creates session-level span attributes.
func PlaybackAttributes(contentID, playbackSessionID, mode string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if contentID != "" {
		attrs = append(attrs, attribute.String(ContentIDKey, contentID))
	}
	if playbackSessionID != "" {
		attrs = append(attrs, attribute.String(PlaybackSessionIDKey, playbackSessionID))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(DeliveryModeKey, mode))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// metaAttributes converts entry metadata into span attributes under "perf.meta.".
func metaAttributes(meta Meta) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(meta))
	for k, v := range meta {
		key := "perf.meta." + k
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, val))
		case int:
			attrs = append(attrs, attribute.Int(key, val))
		case int64:
			attrs = append(attrs, attribute.Int64(key, val))
		case float64:
			attrs = append(attrs, attribute.Float64(key, val))
		case bool:
			attrs = append(attrs, attribute.Bool(key, val))
		}
	}
	return attrs
}
