// SPDX-License-Identifier: MIT

package delivery

// Mode is the delivery strategy selected for a piece of content.
type Mode string

const (
	ModeDirect         Mode = "direct"          // Original bytes, no server work
	ModeRemux          Mode = "remux"           // Container rewrite only
	ModeAudioTranscode Mode = "audio-transcode" // Video copied, audio re-encoded
	ModeFullTranscode  Mode = "full-transcode"  // Everything re-encoded
)

// Segmented reports whether the mode is served as a segmented adaptive stream.
func (m Mode) Segmented() bool {
	return m != ModeDirect
}

// ReasonCode explains a classification.
// Format: {SUBJECT}_{Constraint}_{Result}
type ReasonCode string

const (
	ReasonAllCompatible       ReasonCode = "ALL_COMPATIBLE_DIRECT"
	ReasonContainerMismatch   ReasonCode = "CONTAINER_MISMATCH_REMUX"
	ReasonAudioCodecMismatch  ReasonCode = "AUDIO_CODEC_MISMATCH_TRANSCODE"
	ReasonVideoCodecMismatch  ReasonCode = "VIDEO_CODEC_MISMATCH_TRANSCODE"
	ReasonUnknownContainer    ReasonCode = "UNKNOWN_CONTAINER_REMUX"
	ReasonVideoAndAudioFailed ReasonCode = "CODEC_MISMATCH_FULL_TRANSCODE"
)

// MediaInfo holds container and codec facts. Empty fields mean "absent".
type MediaInfo struct {
	Container  string
	VideoCodec string
	AudioCodec string
}

// Decision is the classifier output.
type Decision struct {
	Mode      Mode
	Segmented bool
	Profile   ProfileName
	Reason    ReasonCode
}
