package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/api"
	"github.com/REZ3X/ghostchat-backend/internal/blob"
	"github.com/REZ3X/ghostchat-backend/internal/config"
	"github.com/REZ3X/ghostchat-backend/internal/gateway"
	"github.com/REZ3X/ghostchat-backend/internal/handlers"
	"github.com/REZ3X/ghostchat-backend/internal/history"
	"github.com/REZ3X/ghostchat-backend/internal/janitor"
	"github.com/REZ3X/ghostchat-backend/internal/lifecycle"
	"github.com/REZ3X/ghostchat-backend/internal/room"
	"github.com/REZ3X/ghostchat-backend/internal/schedule"
	"github.com/REZ3X/ghostchat-backend/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable store: Redis when configured, in-memory fallback otherwise.
	var msgStore store.MessageStore
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		msgStore = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		msgStore = store.NewMemoryStore()
		logger.Warn().Msg("no REDIS_URL configured, using in-memory store")
	}

	// Blob store for uploaded images
	blobs, err := blob.NewFSStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store init failed")
	}
	logger.Info().Str("dir", cfg.UploadDir).Msg("blob store ready")

	// Core components
	sched := schedule.New(schedule.RealClock(), logger)
	manager := lifecycle.NewManager(msgStore, blobs, sched, logger)
	registry := room.NewRegistry()
	hist := history.NewService(msgStore, logger)
	hub := gateway.NewHub(registry, manager, sched, cfg.FrontendURL, logger)
	jan := janitor.New(msgStore, blobs, cfg.CleanupInterval, logger)

	go sched.Run(ctx)
	go hub.Run(ctx)
	go jan.Run(ctx)

	// HTTP surface
	h := handlers.NewHandler(registry, msgStore, blobs, manager, hist, logger)
	router := api.NewRouter(cfg, logger, h, hub)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting GhostChat relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Stop background loops; pending deletions are covered by the
	// janitor's retention ceiling on next start.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let in-flight mirror writes land, then close the store last.
	manager.Flush()
	if err := msgStore.Close(); err != nil {
		logger.Warn().Err(err).Msg("store close failed")
	}

	logger.Info().Msg("server stopped")
}
