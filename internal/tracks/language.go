// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tracks

import (
	"strings"

	"github.com/ManuGH/vodplayer/internal/backend"
	"golang.org/x/text/language"
)

// matchLanguage returns the index into candidates whose language best matches want,
// or -1. Candidates with unknown or unparsable languages never match.
func matchLanguage(want string, candidates []*string) int {
	want = strings.TrimSpace(want)
	if want == "" {
		return -1
	}
	pref, err := language.Parse(want)
	if err != nil {
		return -1
	}

	var supported []language.Tag
	var index []int
	for i, c := range candidates {
		if c == nil || strings.TrimSpace(*c) == "" {
			continue
		}
		tag, err := language.Parse(strings.TrimSpace(*c))
		if err != nil {
			continue
		}
		supported = append(supported, tag)
		index = append(index, i)
	}
	if len(supported) == 0 {
		return -1
	}

	// Prepend und so a miss resolves to it rather than to the first candidate.
	matcher := language.NewMatcher(append([]language.Tag{language.Und}, supported...))
	_, i, conf := matcher.Match(pref)
	if i == 0 || conf < language.High {
		return -1
	}
	return index[i-1]
}

func defaultAudio(audio []backend.MediaStream, preferred string) int {
	langs := make([]*string, len(audio))
	for i, a := range audio {
		langs[i] = a.Language
	}
	if i := matchLanguage(preferred, langs); i >= 0 {
		return i
	}
	for i, a := range audio {
		if a.IsDefault == 1 {
			return i
		}
	}
	return 0
}

// defaultSubtitle prefers full (non-forced) tracks in the preferred language.
func defaultSubtitle(subs []backend.SubtitleTrack, preferred string) *int64 {
	var full []backend.SubtitleTrack
	for _, s := range subs {
		if s.IsForced == 0 {
			full = append(full, s)
		}
	}
	for _, pool := range [][]backend.SubtitleTrack{full, subs} {
		langs := make([]*string, len(pool))
		for i, s := range pool {
			langs[i] = s.Language
		}
		if i := matchLanguage(preferred, langs); i >= 0 {
			id := pool[i].ID
			return &id
		}
	}
	return nil
}
