// SPDX-License-Identifier: MIT

// Command daemon runs the messaging session daemon: one account, one
// transport connection, a chatbot flow and a dashboard HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/digimedia-pe/wagate/internal/api"
	"github.com/digimedia-pe/wagate/internal/config"
	"github.com/digimedia-pe/wagate/internal/dialogue"
	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/session"
	"github.com/digimedia-pe/wagate/internal/transport"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	envFile := flag.String("env", "", "path to a .env file (optional)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := config.FromEnv()

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "wagate",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	flow := dialogue.Default()
	if cfg.FlowPath != "" {
		loaded, err := dialogue.LoadFile(cfg.FlowPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.FlowPath).Msg("failed to load dialogue flow")
		}
		flow = loaded
		logger.Info().Str("path", cfg.FlowPath).Msg("dialogue flow loaded from file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := &transport.BridgeDialer{URL: cfg.BridgeURL}
	sess := session.New(cfg, dialer, flow)

	server := api.NewServer(sess)
	httpSrv := api.NewHTTPServer(cfg.ListenAddr, server.Routes())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("dashboard API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.FlowPath != "" {
		watcher := dialogue.NewWatcher(cfg.FlowPath, sess.Engine())
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn().Err(err).Msg("flow watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		sess.Close()
		return nil
	})

	// The first pairing comes from the dashboard; connect eagerly only when
	// the bridge already holds credentials from a previous run.
	if err := sess.ForceReconnect(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial connection failed, waiting for pairing request")
	}

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("daemon stopped")
}
