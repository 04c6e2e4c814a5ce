// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/vodplayer/internal/subtitle"
)

// runCues fetches and parses a subtitle track, or a local file with --file, and
// prints the cue shown at --at.
func runCues(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vodplayer cues", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)
	id := fs.Int64("subtitle", 0, "subtitle track id")
	file := fs.String("file", "", "parse a local WebVTT/SRT file instead of fetching")
	at := fs.Float64("at", -1, "media time in seconds; negative prints every cue")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	var cues subtitle.CueSet
	switch {
	case *file != "":
		raw, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if cues, err = subtitle.Parse(raw); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case *id > 0:
		_, cfg, err := common.loadConfig(stderr)
		if err != nil {
			fmt.Fprintf(stderr, "Configuration error: %v\n", err)
			return 1
		}
		api, err := newBackend(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		store := subtitle.NewStore(api, nil)
		if err := store.Load(context.Background(), *id); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if *at >= 0 {
			cue, ok := store.ActiveCueAt(*at)
			return printCue(stdout, cue, ok)
		}
		fmt.Fprintf(stdout, "%d cues\n", store.Len())
		return 0
	default:
		fmt.Fprintln(stderr, "Error: --subtitle or --file is required")
		return 2
	}

	if *at >= 0 {
		cue, ok := cues.ActiveAt(*at)
		return printCue(stdout, cue, ok)
	}
	for _, c := range cues {
		fmt.Fprintf(stdout, "%9.3f %9.3f  %s\n", c.Start, c.End, c.Text)
	}
	return 0
}

func printCue(w io.Writer, cue subtitle.Cue, ok bool) int {
	if !ok {
		fmt.Fprintln(w, "(no cue)")
		return 0
	}
	fmt.Fprintf(w, "%9.3f %9.3f  %s\n", cue.Start, cue.End, cue.Text)
	return 0
}
