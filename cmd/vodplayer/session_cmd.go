// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/clock"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/session"
)

// runSession starts a segmented session, keeps it alive for --hold and releases it.
func runSession(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vodplayer session", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)
	id := fs.String("id", "", "media item id")
	start := fs.Float64("start", 0, "start position in seconds")
	hold := fs.Duration("hold", 30*time.Second, "how long to keep the session alive")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *id == "" {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 2
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := session.NewManager(api, session.Config{
		HeartbeatInterval: cfg.Player.HeartbeatInterval,
		Clock:             clock.Real{},
	})
	info := mgr.Start(ctx, *id, *start)
	ctx = xglog.ContextWithPlaybackSessionID(ctx, info.PlaybackSessionID)
	logger := xglog.WithContext(ctx, xglog.WithComponent("cli"))
	logger.Info().
		Str(xglog.FieldContentID, *id).
		Str("manifest", info.ManifestURL).
		Bool("fallback", info.Fallback).
		Msg("session started")

	if err := printJSON(stdout, info); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}

	mgr.StartHeartbeat()
	select {
	case <-ctx.Done():
	case <-time.After(*hold):
	}
	mgr.Stop(ctx)
	mgr.Wait()
	logger.Info().Msg("session released")
	return 0
}

// runSeek issues one backend seek and prints the response with its timing breakdown.
func runSeek(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vodplayer seek", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)
	id := fs.String("id", "", "media item id")
	target := fs.Float64("target", 0, "target position in seconds")
	audio := fs.Int("audio", 0, "audio stream index among audio streams")
	pbs := fs.String("session", "", "playback session id")
	keyframe := fs.Bool("keyframe", false, "look up the keyframe instead of seeking the session")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *id == "" {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 2
	}

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

	ctx := xglog.ContextWithPlaybackSessionID(context.Background(), *pbs)
	began := time.Now()

	var result any
	if *keyframe {
		result, err = api.KeyframeLookup(ctx, *id, *target)
	} else {
		req := backend.SeekRequest{ContentID: *id, TargetSeconds: *target, PlaybackSessionID: *pbs}
		if *audio > 0 {
			req.AudioIndex = audio
		}
		result, err = api.Seek(ctx, req)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Seek failed: %v\n", err)
		return 1
	}
	if err := printJSON(stdout, result); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "round trip: %s\n", time.Since(began).Round(time.Millisecond))
	return 0
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
