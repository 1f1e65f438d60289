package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/petmatch/internal/api"
	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/embedding"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/metrics"
	"github.com/timmy/petmatch/internal/repository"
	"github.com/timmy/petmatch/internal/service"
	"github.com/timmy/petmatch/internal/storage"
	"github.com/timmy/petmatch/internal/upload"
)

func main() {
	// Initialize logger first so config errors are structured too
	opts := logger.OptionsFromEnv()
	if opts.ServiceName == "petmatch" {
		opts.ServiceName = "petmatch-api"
	}
	appLogger := logger.New(opts)
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	metrics.Register()

	ctx := context.Background()

	store, closeStore, err := repository.OpenStore(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize datastore")
	}
	defer closeStore()

	// Initialize storage (supports MinIO, R2, S3)
	objectStorage, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	embedder := embedding.NewClient(&cfg.Embedding)
	spooler := upload.NewOSSpooler(cfg.Ingest.TempDir, cfg.Server.MaxUploadBytes())

	services := api.Services{
		Ingest: service.NewIngestService(store, objectStorage, embedder, spooler, service.IngestConfig{
			KeyPrefix:           cfg.Ingest.KeyPrefix,
			CompensateOnFailure: cfg.Ingest.CompensateOnFailure,
		}),
		Search: service.NewSearchService(store, objectStorage, embedder, spooler, service.SearchConfig{
			KeyPrefix:        cfg.Search.KeyPrefix,
			DefaultRadiusKm:  cfg.Matching.DefaultRadiusKm,
			DefaultLimit:     cfg.Matching.DefaultLimit,
			MaxLimit:         cfg.Matching.MaxLimit,
			DeleteQueryImage: cfg.Search.DeleteQueryImage,
		}),
		Animals:   service.NewAnimalService(store),
		Embedding: embedder,
	}

	router := api.SetupRouter(&cfg.Server, services, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"backend":  cfg.Matching.Backend,
			"metric":   cfg.Matching.Metric,
			"database": cfg.Database.Driver,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
