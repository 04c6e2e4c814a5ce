// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/ManuGH/vodplayer/internal/delivery"
)

func runClassify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vodplayer classify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var media delivery.MediaInfo
	var profile, userAgent string
	fs.StringVar(&media.Container, "container", "", "container format as probed (e.g. mov,mp4,m4a)")
	fs.StringVar(&media.VideoCodec, "video", "", "video codec name")
	fs.StringVar(&media.AudioCodec, "audio", "", "audio codec name")
	fs.StringVar(&profile, "profile", "", "client profile: browser, chrome, firefox, safari, native")
	fs.StringVar(&userAgent, "user-agent", "", "infer the client profile from a User-Agent")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	p := delivery.LookupProfile(delivery.ProfileName(profile))
	if profile == "" && userAgent != "" {
		p = delivery.InferProfile(userAgent)
	}

	out, err := json.MarshalIndent(delivery.Classify(media, p), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
