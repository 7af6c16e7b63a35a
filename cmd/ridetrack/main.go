package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/ridetrack/ridetrack/internal/api"
	"github.com/ridetrack/ridetrack/internal/app"
	"github.com/ridetrack/ridetrack/internal/config"
	"github.com/ridetrack/ridetrack/internal/room"
	"github.com/ridetrack/ridetrack/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file is the normal case; environment variables apply.
	}
	cfg := config.Load()

	apiURL := pflag.String("api-url", cfg.APIURL, "RideTrack backend base URL")
	wsURL := pflag.String("ws-url", cfg.WSURL, "realtime channel URL")
	stateDir := pflag.String("state-dir", cfg.StateDir, "directory for persisted session state")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	if *wsURL == cfg.WSURL && *apiURL != cfg.APIURL {
		// --api-url without --ws-url: keep the two endpoints paired.
		derived := config.DeriveWSURL(*apiURL)
		wsURL = &derived
	}

	store, err := session.NewStore(*stateDir)
	if err != nil {
		logger.Error("session store unavailable", "error", err)
		os.Exit(1)
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: *apiURL,
		Tokens:  store,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("invalid backend configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// The realtime channel is best-effort: with no connection the client
	// still browses and manages groups, chat just stays silent.
	var transport room.Transport
	websocketTransport, err := room.Dial(ctx, *wsURL, logger)
	if err != nil {
		logger.Warn("realtime channel unavailable, chat disabled", "error", err)
		transport = room.OfflineTransport{}
	} else {
		transport = websocketTransport
		defer websocketTransport.Close()
	}

	application := app.New(app.Options{
		API:     client,
		Session: store,
		Rooms:   room.NewCoordinator(transport, logger),
		Logger:  logger,
	})
	application.Start(ctx)
	if err := application.Run(ctx); err != nil {
		logger.Error("client terminated", "error", err)
		os.Exit(1)
	}
}
