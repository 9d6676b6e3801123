// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// fluxboard is the headless board session. It joins one board, keeps
// the local replica converged with the change feed, announces itself on
// the presence roster, and narrates everything to the structured log.
//
// There is no UI here. The binary exists to exercise a full session
// against a real deployment or the fluxboard-sim development server,
// and to serve as the reference wiring for embedding [client.Session].
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Dasi-Technology/fluxboard-sub000/client"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/config"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("fluxboard", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to fluxboard.yaml (overrides FLUXBOARD_CONFIG)")
	shareToken := flagSet.String("board", "", "share token of the board to join (overrides the config file)")
	username := flagSet.String("username", "", "name announced on the presence roster (overrides the config file)")
	demo := flagSet.Bool("demo", false, "issue a few demonstration intents once the session is open")
	verbose := flagSet.Bool("verbose", false, "log cursor traffic and other debug detail")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("fluxboard %s\n", version.Info())
		return nil
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *shareToken != "" {
		cfg.Board.ShareToken = *shareToken
	}
	if *username != "" {
		cfg.Session.Username = *username
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureCacheDir(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := client.New(sessionConfig(cfg, logger))
	if err != nil {
		return err
	}
	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close()

	logger.Info("session running",
		"board", cfg.Board.ShareToken,
		"username", cfg.Session.Username,
		"board_url", cfg.Server.BoardURL,
		"presence_url", cfg.Server.PresenceURL,
	)

	if *demo {
		go runDemo(ctx, session, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// sessionConfig maps the file configuration onto the session. Durations
// arrive as strings; Validate has already vetted them, so a parse
// failure here falls back loudly rather than aborting the session.
func sessionConfig(cfg *config.Config, logger *slog.Logger) client.Config {
	return client.Config{
		BoardURL:          cfg.Server.BoardURL,
		FeedURL:           cfg.Server.FeedURL,
		PresenceURL:       cfg.Server.PresenceURL,
		ShareToken:        cfg.Board.ShareToken,
		Password:          cfg.Board.Password,
		Username:          cfg.Session.Username,
		Listener:          &logListener{logger: logger},
		Logger:            logger,
		CursorInterval:    parseDuration(logger, "cursor_interval", cfg.Session.CursorInterval, 50*time.Millisecond),
		HeartbeatInterval: parseDuration(logger, "heartbeat_interval", cfg.Session.HeartbeatInterval, 30*time.Second),
		MaxAttempts:       cfg.Reconnect.MaxAttempts,
		BaseDelay:         parseDuration(logger, "base_delay", cfg.Reconnect.BaseDelay, time.Second),
		CacheDir:          cfg.Cache.Dir,
		CacheMaxAge:       parseDuration(logger, "max_age", cfg.Cache.MaxAge, 24*time.Hour),
	}
}

func parseDuration(logger *slog.Logger, field, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		// Validate should have caught this, but fail loud if not.
		logger.Error("invalid duration in config, using fallback",
			"field", field, "value", value, "fallback", fallback)
		return fallback
	}
	return parsed
}

// runDemo issues a small burst of intents so a watcher on the other end
// of the board sees live traffic. Rejections are logged and tolerated;
// the demo is decoration, not a health check.
func runDemo(ctx context.Context, session *client.Session, logger *slog.Logger) {
	columnID := ""
	if columns := session.Board().Columns; len(columns) > 0 {
		columnID = columns[0].ID
	} else {
		column, err := session.CreateColumn(ctx, "Inbox")
		if err != nil {
			logger.Warn("demo column rejected", "error", err)
			return
		}
		columnID = column.ID
	}

	card, err := session.CreateCard(ctx, columnID, "Hello from fluxboard")
	if err != nil {
		logger.Warn("demo card rejected", "error", err)
		return
	}
	logger.Info("demo card created", "card_id", card.ID, "column_id", columnID)

	// Sweep the cursor across the board; the throttle condenses this
	// to a handful of sends.
	for i := 0; i <= 20; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
		session.UpdateCursor(float64(i)/20, 0.5)
	}
}
