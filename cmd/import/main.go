package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/embedding"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/repository"
	"github.com/timmy/petmatch/internal/service"
	"github.com/timmy/petmatch/internal/source/manifest"
	"github.com/timmy/petmatch/internal/storage"
	"github.com/timmy/petmatch/internal/upload"
)

func main() {
	// Initialize logger first (with defaults)
	opts := logger.OptionsFromEnv()
	if opts.ServiceName == "petmatch" {
		opts.ServiceName = "petmatch-import"
	}
	appLogger := logger.New(opts)
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Parse command line flags
	dir := flag.String("dir", "", "Directory holding manifest.csv or manifest.jsonl and an images/ folder")
	limit := flag.Int("limit", 0, "Maximum number of items to import (0 for all)")
	workers := flag.Int("workers", 0, "Concurrent registrations (defaults to ingest.workers)")
	batchSize := flag.Int("batch", 50, "Manifest rows fetched per batch")
	dryRun := flag.Bool("dry-run", false, "Validate the manifest and images without registering")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *dir == "" {
		appLogger.Fatal("-dir is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *workers <= 0 {
		*workers = cfg.Ingest.Workers
	}

	appLogger.WithFields(logger.Fields{
		"dir":     *dir,
		"limit":   *limit,
		"workers": *workers,
		"dry_run": *dryRun,
	}).Info("Starting import")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := afero.NewOsFs()
	src := manifest.NewAdapter(fs, *dir)
	count, err := src.Count()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read manifest")
	}
	for _, p := range src.Problems() {
		appLogger.WithFields(logger.Fields{"line": p.Line, "reason": p.Reason}).Warn("Skipping manifest row")
	}
	appLogger.WithFields(logger.Fields{
		"items":   count,
		"skipped": len(src.Problems()),
	}).Info("Manifest loaded")

	var registrar service.Registrar
	if !*dryRun {
		store, closeStore, err := repository.OpenStore(ctx, cfg)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize datastore")
		}
		defer closeStore()

		objectStorage, err := storage.New(ctx, &cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}

		embedder := embedding.NewClient(&cfg.Embedding)
		if h := embedder.Health(ctx); h.Status != "ok" {
			appLogger.WithField("embedding", h.Status).Warn("Embedding service is not healthy; registrations may fail")
		}

		registrar = service.NewIngestService(store, objectStorage, embedder,
			upload.NewOSSpooler(cfg.Ingest.TempDir, cfg.Server.MaxUploadBytes()),
			service.IngestConfig{
				KeyPrefix:           cfg.Ingest.KeyPrefix,
				CompensateOnFailure: cfg.Ingest.CompensateOnFailure,
			})
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	importer := service.NewImporter(registrar, fs)
	stats, err := importer.ImportFromSource(ctx, src, service.ImportOptions{
		Workers:   *workers,
		BatchSize: *batchSize,
		Limit:     *limit,
		DryRun:    *dryRun,
	})
	if err != nil {
		appLogger.WithError(err).Error("Import stopped early")
	}

	appLogger.WithFields(logger.Fields{
		"total":      stats.TotalItems,
		"registered": stats.RegisteredItems,
		"failed":     stats.FailedItems,
		"skipped":    len(src.Problems()),
		"duration":   stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Import finished")

	if err != nil || stats.FailedItems > 0 {
		logger.Sync()
		os.Exit(1)
	}
}
