// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command vodplayer is the operator tool for the playback controller: it
// classifies media, drives backend sessions and seeks by hand, inspects
// subtitle cues and preferences, and serves playback metrics.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/vodplayer/internal/backend"
	"github.com/ManuGH/vodplayer/internal/config"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	xglog.Configure(xglog.Config{
		Level:   "info",
		Output:  stderr,
		Service: "vodplayer",
		Version: version.Version,
	})

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return 0
	}

	switch args[0] {
	case "version", "--version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "classify":
		return runClassify(args[1:], stdout, stderr)
	case "play":
		return runPlay(args[1:], stdout, stderr)
	case "session":
		return runSession(args[1:], stdout, stderr)
	case "seek":
		return runSeek(args[1:], stdout, stderr)
	case "cues":
		return runCues(args[1:], stdout, stderr)
	case "prefs":
		return runPrefs(args[1:], stdout, stderr)
	case "serve-metrics":
		return runServeMetrics(args[1:], stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vodplayer classify --container mkv --video h264 --audio aac [--profile browser|--user-agent UA]")
	fmt.Fprintln(w, "  vodplayer play     --id ID [--resume SECONDS] [--for 30s] [--seek SECONDS] [--config file]")
	fmt.Fprintln(w, "  vodplayer session  --id ID [--start 0] [--hold 30s] [--config file]")
	fmt.Fprintln(w, "  vodplayer seek     --id ID --target SECONDS [--audio N] [--session PBS] [--config file]")
	fmt.Fprintln(w, "  vodplayer cues     --subtitle ID [--at SECONDS] [--config file]")
	fmt.Fprintln(w, "  vodplayer prefs    get|set|delete --scope S --key K [--value V] [--config file]")
	fmt.Fprintln(w, "  vodplayer serve-metrics [--addr :9464] [--config file]")
	fmt.Fprintln(w, "  vodplayer version")
}

// commonFlags are shared by every command that talks to the backend.
type commonFlags struct {
	configPath string
	envFile    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to YAML configuration file")
	fs.StringVar(&c.envFile, "env-file", ".env", "optional dotenv file loaded before the environment is read")
}

// loadConfig reads .env, then ENV > file > defaults, and reconfigures logging.
func (c *commonFlags) loadConfig(stderr io.Writer) (*config.Loader, config.AppConfig, error) {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return nil, config.AppConfig{}, err
	}
	loader := config.NewLoader(strings.TrimSpace(c.configPath), version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, cfg, err
	}
	xglog.Reconfigure(xglog.Config{
		Level:   cfg.Log.Level,
		Output:  stderr,
		Service: "vodplayer",
		Version: cfg.Version,
		File:    cfg.Log.File,
	})
	return loader, cfg, nil
}

func newBackend(cfg config.AppConfig) (*backend.Client, error) {
	return backend.NewClient(backend.Options{
		BaseURL:             cfg.Backend.BaseURL,
		Token:               cfg.Backend.Token,
		Timeout:             cfg.Backend.Timeout,
		MetricRatePerSecond: cfg.Backend.MetricRatePerSecond,
	})
}
