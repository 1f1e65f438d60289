package storage

import (
	"context"
	"fmt"

	"github.com/timmy/petmatch/internal/config"
)

// New creates the configured ObjectStorage, wrapped with per-attempt
// timeouts and upload retries.
func New(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Type {
	case "minio", "":
		backend, err = NewMinIOStorage(cfg)
	case "s3":
		backend, err = NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewRetryingStorage(backend, RetryOptions{
		MaxRetries:     cfg.UploadRetries,
		AttemptTimeout: cfg.Timeout,
	}), nil
}
