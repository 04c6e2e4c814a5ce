// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tracks

// Level is one rendition advertised by a segmented manifest.
type Level struct {
	Height  int
	Bitrate int
}

// ResolveLevel maps a persisted height to a level index. Auto, or a height the
// current manifest does not offer, resolves to Auto.
func ResolveLevel(levels []Level, height int) int {
	if height == Auto {
		return Auto
	}
	for i, l := range levels {
		if l.Height == height {
			return i
		}
	}
	return Auto
}
