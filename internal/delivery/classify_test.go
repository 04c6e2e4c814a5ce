// SPDX-License-Identifier: MIT

package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	browser := LookupProfile(ProfileBrowser)

	tests := []struct {
		name    string
		media   MediaInfo
		profile Profile
		want    Mode
		reason  ReasonCode
	}{
		{
			name:    "mp4 h264 aac is direct",
			media:   MediaInfo{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac"},
			profile: browser,
			want:    ModeDirect,
			reason:  ReasonAllCompatible,
		},
		{
			name:    "mkv h264 aac needs remux",
			media:   MediaInfo{Container: "matroska", VideoCodec: "h264", AudioCodec: "aac"},
			profile: browser,
			want:    ModeRemux,
			reason:  ReasonContainerMismatch,
		},
		{
			name:    "mkv h264 ac3 needs audio transcode",
			media:   MediaInfo{Container: "matroska", VideoCodec: "h264", AudioCodec: "ac3"},
			profile: browser,
			want:    ModeAudioTranscode,
			reason:  ReasonAudioCodecMismatch,
		},
		{
			name:    "hevc needs full transcode on plain browser",
			media:   MediaInfo{Container: "mp4", VideoCodec: "hevc", AudioCodec: "aac"},
			profile: browser,
			want:    ModeFullTranscode,
			reason:  ReasonVideoCodecMismatch,
		},
		{
			name:    "hevc ac3 mp4 is direct on safari",
			media:   MediaInfo{Container: "mp4", VideoCodec: "hevc", AudioCodec: "ac3"},
			profile: LookupProfile(ProfileSafari),
			want:    ModeDirect,
			reason:  ReasonAllCompatible,
		},
		{
			name:    "mkv hevc dts is direct on native",
			media:   MediaInfo{Container: "matroska", VideoCodec: "hevc", AudioCodec: "dts"},
			profile: LookupProfile(ProfileNative),
			want:    ModeDirect,
			reason:  ReasonAllCompatible,
		},
		{
			name:    "audio-only flac counts missing video as compatible",
			media:   MediaInfo{Container: "flac", AudioCodec: "flac"},
			profile: browser,
			want:    ModeDirect,
			reason:  ReasonAllCompatible,
		},
		{
			name:    "silent video counts missing audio as compatible",
			media:   MediaInfo{Container: "webm", VideoCodec: "vp9"},
			profile: browser,
			want:    ModeDirect,
			reason:  ReasonAllCompatible,
		},
		{
			name:    "missing container is not compatible",
			media:   MediaInfo{VideoCodec: "h264", AudioCodec: "aac"},
			profile: browser,
			want:    ModeRemux,
			reason:  ReasonUnknownContainer,
		},
		{
			name:    "probe container list matches any member",
			media:   MediaInfo{Container: "mov,mp4,m4a,3gp,3g2,mj2", VideoCodec: "H264", AudioCodec: " AAC "},
			profile: browser,
			want:    ModeDirect,
			reason:  ReasonAllCompatible,
		},
		{
			name:    "both codecs incompatible",
			media:   MediaInfo{Container: "avi", VideoCodec: "mpeg4", AudioCodec: "ac3"},
			profile: browser,
			want:    ModeFullTranscode,
			reason:  ReasonVideoAndAudioFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.media, tt.profile)
			assert.Equal(t, tt.want, got.Mode)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.want != ModeDirect, got.Segmented)
			assert.Equal(t, tt.profile.Name, got.Profile)
		})
	}
}

func TestInferProfile(t *testing.T) {
	tests := []struct {
		ua   string
		want ProfileName
	}{
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", ProfileSafari},
		{"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36", ProfileChrome},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", ProfileFirefox},
		{"VLC/3.0.20 LibVLC/3.0.20", ProfileNative},
		{"AppleCoreMedia/1.0.0.21A329 (iPhone; U; CPU OS 17_0 like Mac OS X)", ProfileNative},
		{"", ProfileBrowser},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferProfile(tt.ua).Name, tt.ua)
	}
}

func TestLookupProfileUnknownFallsBack(t *testing.T) {
	assert.Equal(t, ProfileBrowser, LookupProfile("tv").Name)
	assert.True(t, LookupProfile(ProfileSafari).NativeSegmented)
	assert.False(t, LookupProfile(ProfileChrome).NativeSegmented)
}
