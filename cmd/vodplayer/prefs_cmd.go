// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/ManuGH/vodplayer/internal/prefs"
)

// runPrefs reads and writes the configured preference store.
func runPrefs(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Error: prefs needs get, set or delete")
		return 2
	}
	op := args[0]

	fs := flag.NewFlagSet("vodplayer prefs "+op, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	scope := fs.String("scope", "global", "preference scope (global, library:<id>, player)")
	key := fs.String("key", "", "preference key")
	value := fs.String("value", "", "value for set")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if *key == "" {
		fmt.Fprintln(stderr, "Error: --key is required")
		return 2
	}

	_, cfg, err := common.loadConfig(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	store, err := prefs.NewStore(prefs.Options{
		Backend:    cfg.Preferences.Backend,
		SQLitePath: cfg.Preferences.SQLitePath,
		RedisAddr:  cfg.Preferences.RedisAddr,
		RedisDB:    cfg.Preferences.RedisDB,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	switch op {
	case "get":
		v, ok, err := store.Get(ctx, *scope, *key)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(stderr, "(unset)")
			return 1
		}
		fmt.Fprintln(stdout, v)
	case "set":
		if err := store.Set(ctx, *scope, *key, *value); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case "delete":
		if err := store.Delete(ctx, *scope, *key); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "Unknown prefs operation: %s\n", op)
		return 2
	}
	return 0
}
