// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import "github.com/ManuGH/vodplayer/internal/tracks"

// TimeRange is a buffered range in element time (seconds).
type TimeRange struct {
	Start float64
	End   float64
}

// Element is the media rendering element. The controller is its only writer.
type Element interface {
	Play() error
	Pause()
	Paused() bool
	// CurrentTime is relative to the loaded source.
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	Buffered() []TimeRange
	// SetSource loads a byte stream or, for native segmented playback, a manifest.
	SetSource(url string)
	// Reset drops the source and returns the element to its empty state.
	Reset()
	SetVolume(v float64)
	SetPlaybackRate(rate float64)
	Fullscreen() bool
	SetFullscreen(on bool)
	// CanPlaySegmented reports built-in playback of segmented manifests.
	CanPlaySegmented() bool
}

// MediaEventKind enumerates element events.
type MediaEventKind string

const (
	MediaTimeUpdate     MediaEventKind = "timeupdate"
	MediaProgress       MediaEventKind = "progress"
	MediaWaiting        MediaEventKind = "waiting"
	MediaCanPlay        MediaEventKind = "canplay"
	MediaPlaying        MediaEventKind = "playing"
	MediaEnded          MediaEventKind = "ended"
	MediaSeeked         MediaEventKind = "seeked"
	MediaLoadedMetadata MediaEventKind = "loadedmetadata"
)

// MediaEvent is delivered to Controller.HandleMediaEvent.
type MediaEvent struct {
	Kind MediaEventKind
}

// Streamer is one instance of the adaptive streaming library bound to one manifest.
type Streamer interface {
	LoadSource(url string)
	AttachMedia(el Element)
	// StartLoad resumes segment fetching at an element-relative position.
	StartLoad(position float64)
	StopLoad()
	DetachMedia()
	Destroy()
	Levels() []tracks.Level
	// SetCurrentLevel pins a level index, or tracks.Auto.
	SetCurrentLevel(index int)
}

// StreamerFactory creates streamers. Each streamer reports its events through the
// emit function it was created with.
type StreamerFactory interface {
	Supported() bool
	New(emit func(StreamEvent)) Streamer
}

// StreamEventKind enumerates streaming library events.
type StreamEventKind string

const (
	StreamManifestLoaded StreamEventKind = "manifest-loaded"
	StreamManifestParsed StreamEventKind = "manifest-parsed"
	StreamLevelSwitched  StreamEventKind = "level-switched"
	StreamError          StreamEventKind = "error"
)

// Error types and details reported with StreamError.
const (
	ErrorTypeNetwork = "networkError"
	ErrorTypeMedia   = "mediaError"
	ErrorTypeOther   = "otherError"

	DetailFragLoad     = "fragLoadError"
	DetailLevelLoad    = "levelLoadError"
	DetailManifestLoad = "manifestLoadError"
)

// StreamEvent is emitted by a Streamer.
type StreamEvent struct {
	Kind    StreamEventKind
	Fatal   bool
	Type    string
	Details string
	// Status is the HTTP status of the failed transfer, 0 when unknown.
	Status int
	Level  int
}
