// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// fluxboard-sim is the development server for the sync core. It
// implements all three services a session needs, in one process and
// entirely in memory:
//
//   - the Board Service REST surface under /api/boards/{token}
//   - the Change Feed as server-sent events at /api/boards/{token}/events
//   - the Presence Service binary protocol on a websocket at /presence
//
// State lives for the life of the process. Boards come from --seed (a
// JSONC fixture) or from a built-in demo board with share token "demo".
// The sim is a development collaborator for fluxboard and the client
// tests, not a persistence engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"github.com/Dasi-Technology/fluxboard-sub000/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("fluxboard-sim", pflag.ContinueOnError)
	listen := flagSet.String("listen", ":4100", "address to serve all three services on")
	seedPath := flagSet.String("seed", "", "JSONC fixture with the boards to serve (default: one demo board)")
	verbose := flagSet.Bool("verbose", false, "log cursor traffic and other debug detail")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("fluxboard-sim %s\n", version.Info())
		return nil
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	seed, err := loadSeed(*seedPath)
	if err != nil {
		return err
	}

	sim := newSimulator(logger)
	for _, seeded := range seed.Boards {
		b, err := sim.addBoard(seeded.Board, seeded.Password)
		if err != nil {
			return fmt.Errorf("seeding board %q: %w", seeded.Board.Title, err)
		}
		logger.Info("board ready",
			"token", b.ShareToken, "title", b.Title, "channel", b.Channel, "locked", b.Locked)
	}

	router := mux.NewRouter()
	router.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			metrics := httpsnoop.CaptureMetrics(handler, writer, request)
			logger.Debug("handled",
				"method", request.Method, "path", request.URL.Path,
				"status", metrics.Code, "duration", metrics.Duration)
		})
	})
	sim.install(router)

	server := &http.Server{Addr: *listen, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.ListenAndServe()
	}()
	logger.Info("fluxboard-sim running", "listen", *listen, "boards", len(seed.Boards))

	select {
	case err := <-serveDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Streams and websockets hold their connections open, so a graceful
	// Shutdown would wait on them forever. Close cuts everyone off.
	logger.Info("shutting down")
	server.Close()
	<-serveDone
	return nil
}
