package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/logger"
)

// MinIOStorage implements ObjectStorage using the MinIO client.
type MinIOStorage struct {
	client     *minio.Client
	bucket     string
	endpoint   string
	region     string
	useSSL     bool
	publicURL  string
	publicRead bool
}

// NewMinIOStorage creates a MinIO client. No request is made until first use.
func NewMinIOStorage(cfg *config.StorageConfig) (*MinIOStorage, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOStorage{
		client:     client,
		bucket:     cfg.Bucket,
		endpoint:   endpoint,
		region:     cfg.Region,
		useSSL:     cfg.UseSSL,
		publicURL:  cfg.PublicURL,
		publicRead: cfg.PublicRead,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist and opens it for anonymous reads.
func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	logger.CtxInfo(ctx, "Created bucket %s", s.bucket)

	if !s.publicRead {
		return nil
	}
	// The bucket is usable without the policy; the embedding service just
	// cannot fetch by URL until an operator fixes it.
	if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to set public bucket policy")
	}
	return nil
}

// Put uploads obj and returns its public URL.
func (s *MinIOStorage) Put(ctx context.Context, obj Object) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, obj.Key, obj.Body, obj.Size, minio.PutObjectOptions{
		ContentType: obj.ContentType,
	})
	if err != nil {
		return "", classify("storage.put", "object upload failed", err)
	}
	return s.URL(obj.Key), nil
}

// URL returns the public URL for key.
func (s *MinIOStorage) URL(key string) string {
	return publicObjectURL(s.publicURL, s.useSSL, s.endpoint, s.bucket, key)
}

// Delete removes key.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	return classify("storage.delete", "object delete failed", err)
}
