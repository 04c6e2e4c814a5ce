// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/vodplayer/internal/config"
	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/ManuGH/vodplayer/internal/telemetry"
	"github.com/ManuGH/vodplayer/internal/version"
)

const (
	scrapeLimit  = 60
	scrapeWindow = time.Minute
)

// runServeMetrics exposes the playback Prometheus registry and keeps logging in
// step with the watched configuration file.
func runServeMetrics(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("vodplayer serve-metrics", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", "", "listen address (default from metricsAddr)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	loader, cfg, err := common.loadConfig(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if *addr == "" {
		*addr = cfg.MetricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := xglog.WithComponent("metrics-server")

	provider, err := telemetry.NewProvider(ctx, tracingConfig(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "Telemetry error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	holder := config.NewHolder(cfg, loader, common.configPath)
	if common.configPath != "" {
		if err := holder.StartWatcher(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher unavailable, hot reload disabled")
		}
		defer holder.Stop()
	}
	updates := make(chan config.AppConfig, 1)
	holder.RegisterListener(updates)
	go followLogConfig(ctx, updates, stderr)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMetricsRouter(holder),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", *addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return 0
}

// followLogConfig applies log level and file changes from hot reloads.
func followLogConfig(ctx context.Context, updates <-chan config.AppConfig, stderr io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			xglog.Reconfigure(xglog.Config{
				Level:   cfg.Log.Level,
				Output:  stderr,
				Service: "vodplayer",
				Version: cfg.Version,
				File:    cfg.Log.File,
			})
		}
	}
}

func newMetricsRouter(holder *config.Holder) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(httprate.Limit(scrapeLimit, scrapeWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(scrapeWindow.Seconds())))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}),
	))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		_ = printJSON(w, map[string]string{
			"version":   holder.Get().Version,
			"commit":    version.Commit,
			"buildDate": version.Date,
		})
	})
	r.Post("/-/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := holder.Reload(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "vodplayer.metrics")
}
