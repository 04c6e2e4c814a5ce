// SPDX-License-Identifier: MIT

package delivery

import "strings"

// ProfileName identifies a client capability table.
type ProfileName string

const (
	ProfileBrowser ProfileName = "browser"
	ProfileChrome  ProfileName = "chrome"
	ProfileFirefox ProfileName = "firefox"
	ProfileSafari  ProfileName = "safari"
	ProfileNative  ProfileName = "native"
)

// Profile is a per-client compatibility table.
type Profile struct {
	Name       ProfileName
	Containers map[string]bool
	Video      map[string]bool
	Audio      map[string]bool
	// NativeSegmented reports built-in playback of segmented manifests
	// without a streaming library.
	NativeSegmented bool
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

var (
	browserVideo      = []string{"h264", "vp8", "vp9", "av1"}
	browserAudio      = []string{"aac", "mp3", "opus", "vorbis", "flac", "pcm_s16le", "pcm_s24le", "pcm_f32le"}
	browserContainers = []string{"mp4", "mov", "webm", "ogg", "flac", "wav"}
)

var profiles = map[ProfileName]Profile{
	ProfileBrowser: {
		Name:       ProfileBrowser,
		Containers: set(browserContainers...),
		Video:      set(browserVideo...),
		Audio:      set(browserAudio...),
	},
	ProfileChrome: {
		Name:       ProfileChrome,
		Containers: set(browserContainers...),
		Video:      set(append(browserVideo, "hevc")...),
		Audio:      set(browserAudio...),
	},
	ProfileFirefox: {
		Name:       ProfileFirefox,
		Containers: set(browserContainers...),
		Video:      set(browserVideo...),
		Audio:      set(browserAudio...),
	},
	ProfileSafari: {
		Name:            ProfileSafari,
		Containers:      set("mp4", "mov", "flac", "wav"),
		Video:           set("h264", "hevc", "vp9", "av1"),
		Audio:           set("aac", "mp3", "ac3", "eac3", "flac", "pcm_s16le", "pcm_s24le", "pcm_f32le"),
		NativeSegmented: true,
	},
	ProfileNative: {
		Name:            ProfileNative,
		Containers:      set("mp4", "mov", "webm", "ogg", "flac", "wav", "matroska", "mkv", "mpegts", "avi"),
		Video:           set("h264", "hevc", "vp8", "vp9", "av1", "mpeg2video", "mpeg4"),
		Audio:           set(append(browserAudio, "ac3", "eac3", "dts", "truehd", "mp2")...),
		NativeSegmented: true,
	},
}

// LookupProfile returns the table for name, falling back to the browser table.
func LookupProfile(name ProfileName) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles[ProfileBrowser]
}

// InferProfile derives a profile from a user agent string.
func InferProfile(userAgent string) Profile {
	switch {
	case isNativeClient(userAgent):
		return profiles[ProfileNative]
	case isSafariBrowser(userAgent):
		return profiles[ProfileSafari]
	case strings.Contains(userAgent, "Firefox/"):
		return profiles[ProfileFirefox]
	case strings.Contains(userAgent, "Chrome/") || strings.Contains(userAgent, "Chromium/"):
		return profiles[ProfileChrome]
	default:
		return profiles[ProfileBrowser]
	}
}

// Safari has "Safari/" and "AppleWebKit/", but not "Chrome/".
func isSafariBrowser(ua string) bool {
	hasSafari := strings.Contains(ua, "Safari/")
	hasChrome := strings.Contains(ua, "Chrome/") || strings.Contains(ua, "Chromium/")
	hasWebKit := strings.Contains(ua, "AppleWebKit/")
	return hasWebKit && hasSafari && !hasChrome
}

func isNativeClient(ua string) bool {
	return strings.Contains(ua, "VLC/") ||
		strings.Contains(ua, "LibVLC") ||
		strings.Contains(ua, "mpv") ||
		strings.Contains(ua, "AppleCoreMedia")
}
