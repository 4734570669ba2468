package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach/internal/api/v1/router"
	"outreach/internal/bootstrap"
	"outreach/internal/config"
	"outreach/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.New().Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Msgf("Error loading config: %v", err)
	}
	logger := logger.NewWithLevel(cfg.LogLevel)

	// 2. Wire store, providers and services
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	svcs, err := bootstrap.Build(startupCtx, cfg, logger)
	cancelStartup()
	if err != nil {
		logger.Fatal().Msgf("Failed to build services: %v", err)
	}

	// 3. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(cfg, svcs, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ResumeBudget() + time.Minute, // resume polls the provider inside the request
		IdleTimeout:  60 * time.Second,
	}

	// 4. Start server in a goroutine
	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s\n", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Msgf("Server forced to shutdown: %v", err)
	}
	// In-flight jobs keep their provider handles, so anything cut off here can be resumed.
	svcs.Close(ctx, logger)
	logger.Info().Msg("Server shut down gracefully")
}
