// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus collectors for playback quality.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeDirect         = "direct"
	modeRemux          = "remux"
	modeAudioTranscode = "audio-transcode"
	modeFullTranscode  = "full-transcode"

	SeekPathReuse    = "reuse"
	SeekPathRecreate = "recreate"
	SeekPathKeyframe = "keyframe"
	SeekPathDirect   = "direct"

	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"

	RecoveryAttempted = "attempted"
	RecoveryExhausted = "exhausted"
	RecoveryFallback  = "fallback"

	labelUnknown = "unknown"
)

var (
	playbackStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodplayer_playback_start_total",
		Help: "Playback sessions opened by delivery mode",
	}, []string{"mode"})

	playbackTTFFSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodplayer_playback_ttff_seconds",
		Help:    "Time from open to first playing event",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 5, 8, 13, 20, 30},
	}, []string{"mode", "outcome"})

	seekLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodplayer_seek_latency_seconds",
		Help:    "Seek latency from request to settled playback by path/outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	}, []string{"path", "outcome"})

	rebufferTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodplayer_rebuffer_total",
		Help: "Rebuffer (waiting) events outside of seeks",
	}, []string{"mode"})

	rebufferSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodplayer_rebuffer_duration_seconds",
		Help:    "Rebuffer stall duration",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})

	recoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodplayer_recovery_attempts_total",
		Help: "Session-expiry recovery decisions by outcome",
	}, []string{"outcome"})

	backendRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodplayer_backend_requests_total",
		Help: "Backend API calls by operation/outcome",
	}, []string{"op", "outcome"})
)

// IncPlaybackStart counts an opened playback session.
func IncPlaybackStart(mode string) {
	playbackStartTotal.WithLabelValues(normalizeMode(mode)).Inc()
}

// ObserveTTFF records time to first frame in seconds.
func ObserveTTFF(mode, outcome string, seconds float64) {
	playbackTTFFSeconds.WithLabelValues(normalizeMode(mode), normalizeOutcome(outcome)).Observe(seconds)
}

// ObserveSeek records one seek's latency.
func ObserveSeek(path, outcome string, seconds float64) {
	seekLatencySeconds.WithLabelValues(normalizeSeekPath(path), normalizeOutcome(outcome)).Observe(seconds)
}

// ObserveRebuffer counts a stall and its duration.
func ObserveRebuffer(mode string, seconds float64) {
	m := normalizeMode(mode)
	rebufferTotal.WithLabelValues(m).Inc()
	rebufferSeconds.WithLabelValues(m).Observe(seconds)
}

// IncRecovery counts a recovery decision.
func IncRecovery(outcome string) {
	switch outcome {
	case RecoveryAttempted, RecoveryExhausted, RecoveryFallback:
	default:
		outcome = labelUnknown
	}
	recoveryTotal.WithLabelValues(outcome).Inc()
}

// IncBackendRequest counts a backend call. op must be a fixed operation name.
func IncBackendRequest(op string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	backendRequestTotal.WithLabelValues(op, outcome).Inc()
}

func normalizeMode(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case modeDirect, modeRemux, modeAudioTranscode, modeFullTranscode:
		return m
	default:
		return labelUnknown
	}
}

func normalizeSeekPath(path string) string {
	switch path {
	case SeekPathReuse, SeekPathRecreate, SeekPathKeyframe, SeekPathDirect:
		return path
	default:
		return labelUnknown
	}
}

func normalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomeOK, OutcomeFailed, OutcomeSuperseded:
		return outcome
	default:
		return labelUnknown
	}
}
