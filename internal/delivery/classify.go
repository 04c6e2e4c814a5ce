// SPDX-License-Identifier: MIT

// Package delivery decides how a media item is delivered to a given client.
package delivery

import "strings"

// Classify checks container and codecs against the profile's tables in order:
// all compatible -> direct; video+audio ok -> remux; video ok -> audio transcode;
// otherwise full transcode. An absent video or audio stream counts as compatible;
// an absent container does not.
func Classify(media MediaInfo, profile Profile) Decision {
	videoOK := codecCompatible(media.VideoCodec, profile.Video)
	audioOK := codecCompatible(media.AudioCodec, profile.Audio)
	containerOK := containerCompatible(media.Container, profile.Containers)

	d := Decision{Profile: profile.Name}
	switch {
	case videoOK && audioOK && containerOK:
		d.Mode, d.Reason = ModeDirect, ReasonAllCompatible
	case videoOK && audioOK:
		d.Mode, d.Reason = ModeRemux, ReasonContainerMismatch
		if norm(media.Container) == "" {
			d.Reason = ReasonUnknownContainer
		}
	case videoOK:
		d.Mode, d.Reason = ModeAudioTranscode, ReasonAudioCodecMismatch
	case audioOK:
		d.Mode, d.Reason = ModeFullTranscode, ReasonVideoCodecMismatch
	default:
		d.Mode, d.Reason = ModeFullTranscode, ReasonVideoAndAudioFailed
	}
	d.Segmented = d.Mode.Segmented()
	return d
}

func codecCompatible(codec string, table map[string]bool) bool {
	c := norm(codec)
	if c == "" {
		return true
	}
	return table[c]
}

// Probe-style container lists ("mov,mp4,m4a,3gp") match if any member matches.
func containerCompatible(container string, table map[string]bool) bool {
	c := norm(container)
	if c == "" {
		return false
	}
	for _, part := range strings.Split(c, ",") {
		if table[strings.TrimSpace(part)] {
			return true
		}
	}
	return false
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
