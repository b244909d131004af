package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vedran77/cypherchat/internal/config"
	"github.com/vedran77/cypherchat/internal/presence"
	"github.com/vedran77/cypherchat/internal/repository"
	filerepo "github.com/vedran77/cypherchat/internal/repository/file"
	postgresrepo "github.com/vedran77/cypherchat/internal/repository/postgres"
	redisrepo "github.com/vedran77/cypherchat/internal/repository/redis"
	sqliterepo "github.com/vedran77/cypherchat/internal/repository/sqlite"
	"github.com/vedran77/cypherchat/internal/service"
	"github.com/vedran77/cypherchat/internal/telemetry"
	"github.com/vedran77/cypherchat/internal/transport/http/handlers"
	"github.com/vedran77/cypherchat/internal/transport/http/router"
	"github.com/vedran77/cypherchat/internal/transport/ws"
)

const (
	serviceName    = "cypherchat"
	serviceVersion = "0.1.0"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	shutdownTracing, err := telemetry.InitTracing(logger, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer shutdownTracing()

	ctx := context.Background()

	// Storage
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("opening store failed")
	}
	defer store.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	// Services
	channelService := service.NewChannelService(store.Channels(), cfg.StoreBackend, logger)
	messageService := service.NewMessageService(store.Messages(), cfg.StoreBackend, logger)
	channelService.SetMessageLog(messageService)

	if err := channelService.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("channel table not fully persisted")
	}
	var channelIDs []string
	for _, ch := range channelService.List() {
		channelIDs = append(channelIDs, ch.ID)
	}
	if err := messageService.Load(ctx, channelIDs); err != nil {
		logger.Error().Err(err).Msg("loading message logs failed")
	}

	// Presence + real-time
	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, logger)
	notifier := ws.NewHubNotifier(hub)
	channelService.SetNotifier(notifier)
	messageService.SetNotifier(notifier)

	gateway := ws.NewGateway(hub, channelService, messageService, ws.Options{
		OriginPatterns:     cfg.OriginHosts(),
		InsecureSkipVerify: cfg.AllowAllOrigins(),
		SendBuffer:         cfg.SendBuffer,
		ReadLimit:          cfg.MaxMessageBytes,
		CloseSuperseded:    cfg.CloseSuperseded,
	}, logger)

	// Routes
	r := router.New(router.Deps{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Channels:       handlers.NewChannelHandler(channelService, messageService, logger),
		Health:         handlers.NewHealthHandler(store, cfg.StoreBackend, registry.Count),
		Gateway:        gateway,
	})

	// No ReadTimeout/WriteTimeout: they would also apply to hijacked WebSocket connections.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.ServerPort).
			Str("env", cfg.Env).
			Msg("starting cypherchat relay")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server forced to shutdown")
	}
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("sessions did not close in time")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		return filerepo.Open(cfg.DataDir)
	case config.BackendPostgres:
		return postgresrepo.Open(ctx, cfg.PostgresDSN())
	case config.BackendSQLite:
		return sqliterepo.Open(ctx, cfg.SQLitePath)
	case config.BackendRedis:
		return redisrepo.Open(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
