package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/metrics"
)

// RetryOptions controls RetryingStorage.
type RetryOptions struct {
	MaxRetries      int           // retries after the first attempt; 0 disables retrying
	AttemptTimeout  time.Duration // bound on each attempt; 0 means none
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryingStorage retries failed uploads with exponential backoff and bounds
// every call with AttemptTimeout. Timeouts are retried like other upstream
// failures; validation errors are not.
type RetryingStorage struct {
	next ObjectStorage
	opts RetryOptions
}

// NewRetryingStorage wraps next.
func NewRetryingStorage(next ObjectStorage, opts RetryOptions) *RetryingStorage {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 2 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &RetryingStorage{next: next, opts: opts}
}

func (r *RetryingStorage) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxRetries)), ctx)
}

func (r *RetryingStorage) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.AttemptTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.AttemptTimeout)
}

// Put uploads obj, rewinding the body before every attempt.
func (r *RetryingStorage) Put(ctx context.Context, obj Object) (string, error) {
	if obj.Body == nil {
		return "", apperr.Validation("image", "image is required")
	}

	var (
		url     string
		attempt int
	)
	operation := func() error {
		attempt++
		if _, err := obj.Body.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("rewind upload body: %w", err))
		}

		actx, cancel := r.attemptContext(ctx)
		defer cancel()

		u, err := r.next.Put(actx, obj)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindValidation {
				return backoff.Permanent(err)
			}
			return err
		}
		url = u
		return nil
	}

	notify := func(err error, wait time.Duration) {
		metrics.StorageUploadRetriesTotal.Inc()
		logger.With(logger.Fields{
			"storage_key": obj.Key,
			"attempt":     attempt,
			"wait_ms":     wait.Milliseconds(),
		}).Warn(ctx, "Upload failed, retrying: %v", err)
	}

	err := backoff.RetryNotify(operation, r.policy(ctx), notify)
	if err != nil {
		err = classify("storage.put", "object upload failed", err)
		metrics.StorageUploadsTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return "", err
	}
	metrics.StorageUploadsTotal.WithLabelValues("ok").Inc()
	return url, nil
}

// Delete removes key within one bounded attempt.
func (r *RetryingStorage) Delete(ctx context.Context, key string) error {
	actx, cancel := r.attemptContext(ctx)
	defer cancel()
	return r.next.Delete(actx, key)
}

// URL delegates to the wrapped storage.
func (r *RetryingStorage) URL(key string) string {
	return r.next.URL(key)
}

// EnsureBucket delegates to the wrapped storage.
func (r *RetryingStorage) EnsureBucket(ctx context.Context) error {
	return r.next.EnsureBucket(ctx)
}
