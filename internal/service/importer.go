package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/source"
	"github.com/timmy/petmatch/internal/upload"
)

// Registrar registers one report. IngestService implements it.
type Registrar interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Animal, error)
}

// ImportOptions controls a bulk import run.
type ImportOptions struct {
	Workers   int
	BatchSize int
	Limit     int  // 0 imports everything
	DryRun    bool // validate and count without registering
}

// ImportStats holds statistics for an import run.
type ImportStats struct {
	TotalItems      int64
	RegisteredItems int64
	FailedItems     int64
	Failures        []ImportFailure
	StartTime       time.Time
	EndTime         time.Time
}

// ImportFailure is an item that could not be registered.
type ImportFailure struct {
	SourceID string
	Line     int
	Err      error
}

// Importer runs the register pipeline over a bulk source with a worker pool.
type Importer struct {
	registrar Registrar
	fs        afero.Fs
}

// NewImporter creates an Importer reading images from fs.
func NewImporter(registrar Registrar, fs afero.Fs) *Importer {
	return &Importer{registrar: registrar, fs: fs}
}

type importResult struct {
	item source.ReportItem
	err  error
}

// ImportFromSource registers the items of src.
// Parameters:
//   - ctx: cancellation stops fetching; items already handed to workers finish.
//   - src: bulk source to read.
//   - opts: worker count, batch size, limit and dry run.
//
// Returns:
//   - *ImportStats: per-run counters and failed items.
//   - error: non-nil when the source cannot be read or ctx is canceled.
func (im *Importer) ImportFromSource(ctx context.Context, src source.Source, opts ImportOptions) (*ImportStats, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	stats := &ImportStats{StartTime: time.Now()}
	log := logger.FromContext(ctx).WithField("source", src.GetSourceID())
	log.WithFields(logger.Fields{
		"workers": opts.Workers,
		"limit":   opts.Limit,
		"dry_run": opts.DryRun,
	}).Info("Starting import")

	items := make(chan source.ReportItem, opts.Workers*2)
	results := make(chan importResult, opts.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				results <- importResult{item: item, err: im.importItem(ctx, item, opts.DryRun)}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for r := range results {
			if r.err == nil {
				atomic.AddInt64(&stats.RegisteredItems, 1)
				continue
			}
			atomic.AddInt64(&stats.FailedItems, 1)
			stats.Failures = append(stats.Failures, ImportFailure{SourceID: r.item.SourceID, Line: r.item.Line, Err: r.err})
			log.WithError(r.err).WithFields(logger.Fields{
				"source_id": r.item.SourceID,
				"line":      r.item.Line,
			}).Warn("Failed to import item")
		}
		close(done)
	}()

	fetchErr := im.feed(ctx, src, opts, items, stats)

	close(items)
	wg.Wait()
	close(results)
	<-done

	stats.EndTime = time.Now()
	log.WithFields(logger.Fields{
		"total":      stats.TotalItems,
		"registered": stats.RegisteredItems,
		"failed":     stats.FailedItems,
		"duration":   stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Import completed")

	if fetchErr != nil {
		return stats, fetchErr
	}
	return stats, nil
}

func (im *Importer) feed(ctx context.Context, src source.Source, opts ImportOptions, items chan<- source.ReportItem, stats *ImportStats) error {
	cursor := ""
	fetched := 0
	for ctx.Err() == nil {
		batch := opts.BatchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - fetched
			if remaining <= 0 {
				return nil
			}
			if batch > remaining {
				batch = remaining
			}
		}

		page, next, err := src.FetchBatch(ctx, cursor, batch)
		if err != nil {
			return fmt.Errorf("failed to fetch batch: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, item := range page {
			select {
			case items <- item:
				atomic.AddInt64(&stats.TotalItems, 1)
				fetched++
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
	return ctx.Err()
}

func (im *Importer) importItem(ctx context.Context, item source.ReportItem, dryRun bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := im.fs.Open(item.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	if dryRun {
		if _, err := upload.Inspect(file); err != nil {
			return err
		}
		_, err := validateRegister(RegisterInput{
			Image:       file,
			Filename:    item.Filename,
			Latitude:    item.Latitude,
			Longitude:   item.Longitude,
			Description: item.Description,
			Status:      item.Status,
		})
		return err
	}

	itemCtx := logger.WithFields(ctx, logger.Fields{"source_id": item.SourceID})
	_, err = im.registrar.Register(itemCtx, RegisterInput{
		Image:       file,
		Filename:    item.Filename,
		Latitude:    item.Latitude,
		Longitude:   item.Longitude,
		Description: item.Description,
		Status:      item.Status,
	})
	return err
}
