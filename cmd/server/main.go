// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/datapipe/internal/api"
	"github.com/andresuchdata/datapipe/internal/archiver"
	"github.com/andresuchdata/datapipe/internal/cache"
	"github.com/andresuchdata/datapipe/internal/config"
	"github.com/andresuchdata/datapipe/internal/poller"
	"github.com/andresuchdata/datapipe/internal/processor"
	"github.com/andresuchdata/datapipe/internal/repository/postgres"
	"github.com/andresuchdata/datapipe/internal/service"
	"github.com/andresuchdata/datapipe/internal/storage"
	"github.com/andresuchdata/datapipe/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	if cfg.Server.Mode == "debug" {
		logger.SetLevel("debug")
		gin.SetMode(gin.DebugMode)
	} else {
		logger.SetLevel("info")
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object stores
	stores, err := storage.NewStores(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object stores: %v", err)
	}

	// Initialize stats cache
	statsCache, err := cache.NewStatsCache(cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to initialize stats cache: %v", err)
	}

	// Optional run-history database
	var runs *postgres.RunRepository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		runs = postgres.NewRunRepository(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure database schema: %v", err)
		}
	}

	// Initialize pipeline components
	engine := processor.NewEngine(stores.Raw, stores.Processed, cfg.App.Environment, cfg.App.WorkerCount)
	sweeper := archiver.NewSweeper(stores.Processed, stores.Archive, cfg.Retention.RetentionDays, cfg.Retention.SweepConcurrency)
	pipelineService := service.NewPipelineService(engine, sweeper, statsCache, runs)

	// Start incoming poller when configured
	if cfg.App.PollIntervalSeconds > 0 {
		interval := time.Duration(cfg.App.PollIntervalSeconds) * time.Second
		go poller.New(stores.Raw, pipelineService, interval).Run(ctx)
	}

	// Initialize HTTP server
	router := api.NewRouter(pipelineService, cfg)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().
			Str("port", cfg.Server.Port).
			Str("environment", cfg.App.Environment).
			Int("retention_days", cfg.Retention.RetentionDays).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// Stop the poller and in-flight batch work
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
