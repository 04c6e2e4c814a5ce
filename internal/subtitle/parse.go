// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package subtitle

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Cue is one timed subtitle block. Times are absolute media seconds.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// CueSet is a start-ordered list of cues.
type CueSet []Cue

// ErrNoCues is returned when a payload contains no well-formed cue.
var ErrNoCues = errors.New("subtitle: no cues")

// Parse reads WebVTT or SRT. Blocks are separated by blank lines; the first
// well-formed "start --> end" line of a block anchors the text lines after it.
func Parse(payload []byte) (CueSet, error) {
	text := strings.ReplaceAll(string(payload), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	var cues CueSet
	for _, block := range splitBlocks(text) {
		if c, ok := parseBlock(block); ok {
			cues = append(cues, c)
		}
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	return cues, nil
}

func splitBlocks(text string) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseBlock(lines []string) (Cue, bool) {
	for i, line := range lines {
		start, end, ok := parseTimingLine(line)
		if !ok {
			continue
		}
		if end <= start {
			return Cue{}, false
		}
		body := make([]string, 0, len(lines)-i-1)
		for _, l := range lines[i+1:] {
			body = append(body, strings.TrimRight(l, " \t"))
		}
		return Cue{Start: start, End: end, Text: strings.Join(body, "\n")}, true
	}
	return Cue{}, false
}

func parseTimingLine(line string) (float64, float64, bool) {
	left, right, found := strings.Cut(line, "-->")
	if !found {
		return 0, 0, false
	}
	start, ok := parseTimestamp(strings.TrimSpace(left))
	if !ok {
		return 0, 0, false
	}
	// Cue settings follow the end timestamp ("00:01.000 line:90% align:start").
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, false
	}
	end, ok := parseTimestamp(fields[0])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

// parseTimestamp accepts HH:MM:SS.mmm, MM:SS.mmm and the SRT comma separator.
func parseTimestamp(s string) (float64, bool) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	whole, frac, hasFrac := strings.Cut(parts[len(parts)-1], ".")
	if !digits(whole) || (hasFrac && !digits(frac)) || !digits(parts[len(parts)-2]) {
		return 0, false
	}
	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || secs >= 60 {
		return 0, false
	}
	mins, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || mins >= 60 {
		return 0, false
	}
	hours := 0
	if len(parts) == 3 {
		if !digits(parts[0]) {
			return 0, false
		}
		hours, err = strconv.Atoi(parts[0])
		if err != nil || hours < 0 {
			return 0, false
		}
	}
	return float64(hours)*3600 + float64(mins)*60 + secs, true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ActiveAt returns the cue whose [start, end) interval contains t.
func (s CueSet) ActiveAt(t float64) (Cue, bool) {
	// Last cue starting at or before t.
	i := sort.Search(len(s), func(i int) bool { return s[i].Start > t }) - 1
	if i < 0 {
		return Cue{}, false
	}
	if t < s[i].End {
		return s[i], true
	}
	return Cue{}, false
}
