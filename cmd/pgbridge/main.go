package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pgbridge/pgbridge/internal/api"
	"github.com/pgbridge/pgbridge/internal/config"
	"github.com/pgbridge/pgbridge/internal/database"
	"github.com/pgbridge/pgbridge/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	logger.Info().Str("schema", cfg.Schema).Msg("Starting pgbridge")

	// Initialize database
	db, err := database.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Create router with all handlers and middleware
	apiRouter, err := api.NewRouter(cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
	}
	defer apiRouter.Stop()
	router := apiRouter.SetupRoutes()

	// Start the CDC engine when subscriptions are enabled
	cdcCtx, cancelCDC := context.WithCancel(context.Background())
	defer cancelCDC()
	if engine := apiRouter.Engine(); engine != nil {
		engine.Start(cdcCtx)
		defer engine.Stop()
		logger.Info().
			Str("slot", cfg.CDCSlotName).
			Str("publication", cfg.CDCPublicationName).
			Msg("CDC engine started")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
