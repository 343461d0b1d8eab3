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
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"github.com/dsgolman/supportai-bot-sub000/facilitator"
	"github.com/dsgolman/supportai-bot-sub000/feed"
	"github.com/dsgolman/supportai-bot-sub000/httpapi"
	"github.com/dsgolman/supportai-bot-sub000/logs"
	"github.com/dsgolman/supportai-bot-sub000/media"
	"github.com/dsgolman/supportai-bot-sub000/moderation"
	"github.com/dsgolman/supportai-bot-sub000/relay"
	"github.com/dsgolman/supportai-bot-sub000/repositories"
	"github.com/dsgolman/supportai-bot-sub000/runtime"
	"github.com/dsgolman/supportai-bot-sub000/runtime/workers"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Circle server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern keeps 'defer' statements (like database cleanup) running before the
// program exits and decouples the initialization logic from the main entry point.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & change feed
	sessions := repositories.NewSessionRepository(db, logger)
	turns := repositories.NewTurnRepository(db, logger)
	participants := repositories.NewParticipantRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	broadcasts := repositories.NewBroadcastRepository(db, logger, config.AudioChunkTTL)
	changeFeed := feed.New(db, logger, config.BufferSize)

	// 4. Core components
	moderator, err := moderation.New(charReplacement)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation init failed: %w", err)
	}

	registry := runtime.NewConnRegistry()
	coordinator := runtime.NewCoordinator(logger, turns, participants)
	sup := workers.NewSupervisor(logger, config.RestartInterval)

	creds := media.NewCredentialService(config.MediaAppID, config.MediaAppCert, config.MediaTokenTTL)
	orchestrator := media.NewOrchestrator(
		logger, creds, media.NewLoopbackTransport(),
		func() (media.LocalTrack, error) { return media.NewMicTrack("mic"), nil },
		broadcasts, changeFeed,
	)

	facilitatorCfg := facilitator.DefaultConfig()
	facilitatorCfg.Endpoint = config.FacilitatorEndpoint
	facilitatorCfg.APIKey = config.FacilitatorAPIKey
	facilitatorCfg.ConfigID = config.FacilitatorConfigID
	facilitatorCfg.FacilitatorID = config.FacilitatorID

	manager := facilitator.NewManager(
		logger, facilitatorCfg, facilitator.NewWSDialer(logger),
		registry, sessions, turns, messages, orchestrator, sup,
	)

	rel := relay.New(logger, changeFeed, messages, participants, registry, moderator)

	// 5. Supervision
	sup.Add(changeFeed, manager, workers.NewTelemetryWorker(logger, config.MetricInterval))

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting supervisor...")
		sup.Run(ctx)
	}()

	// 7. HTTP server
	api := httpapi.New(logger, sessions, messages, manager, coordinator, rel, creds)
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", config.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
