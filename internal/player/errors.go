// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("player: controller closed")
	// ErrNotOpen is returned when an operation needs an open item.
	ErrNotOpen = errors.New("player: nothing open")
)

// ErrorClass buckets failures by how the controller handles them.
type ErrorClass string

const (
	// ClassSessionExpired is recovered by recreating the segmented session.
	ClassSessionExpired ErrorClass = "session-expired"
	// ClassFatalDelivery falls back to progressive playback.
	ClassFatalDelivery ErrorClass = "fatal-delivery"
	// ClassSuperseded is a stale continuation and not an error.
	ClassSuperseded ErrorClass = "superseded"
	// ClassAuxiliary disables a feature such as chapters or subtitles.
	ClassAuxiliary ErrorClass = "auxiliary"
	// ClassLifecycle covers fire-and-forget calls.
	ClassLifecycle ErrorClass = "lifecycle"
)

// Visible reports whether failures of this class reach the screen.
func (c ErrorClass) Visible() bool {
	return c == ClassSessionExpired || c == ClassFatalDelivery
}

// classifyStreamError maps a streaming library error onto a class. Only fatal
// errors and missing segments or playlists are handled; everything else is
// left to the library.
func classifyStreamError(ev StreamEvent) (ErrorClass, bool) {
	if ev.Type == ErrorTypeNetwork && ev.Status == http.StatusNotFound {
		switch ev.Details {
		case DetailFragLoad, DetailLevelLoad, DetailManifestLoad:
			return ClassSessionExpired, true
		}
	}
	if ev.Fatal {
		return ClassFatalDelivery, true
	}
	return "", false
}

// NoticeKind identifies an inline, non-fatal message for the screen.
type NoticeKind string

const (
	NoticeDeliveryFallback NoticeKind = "delivery-fallback"
	NoticeRecoveryFailed   NoticeKind = "recovery-failed"
)

// Notice is shown inline while playback continues.
type Notice struct {
	Kind    NoticeKind
	Class   ErrorClass
	Message string
	At      time.Time
}
