// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"strconv"
	"strings"
)

// ParseServerTiming reads a Server-Timing header ("db;dur=1.2, seek;dur=40")
// into a name -> milliseconds map. Metrics without a duration are skipped.
func ParseServerTiming(header string) map[string]float64 {
	if header == "" {
		return nil
	}
	out := make(map[string]float64)
	for _, metric := range strings.Split(header, ",") {
		parts := strings.Split(metric, ";")
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		for _, p := range parts[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || !strings.EqualFold(k, "dur") {
				continue
			}
			if d, err := strconv.ParseFloat(strings.Trim(v, `"`), 64); err == nil {
				out[name] = d
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
