package storage

import (
	"context"
	"io"
)

// Object is an upload request. Body must be seekable so a failed attempt can
// be retried from the start.
type Object struct {
	Key         string
	Body        io.ReadSeeker
	Size        int64
	ContentType string
}

// ObjectStorage stores images and hands back the public URL the embedding
// service fetches them from.
type ObjectStorage interface {
	// Put uploads obj and returns its public URL.
	Put(ctx context.Context, obj Object) (string, error)

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the public URL for key.
	URL(key string) string

	// EnsureBucket creates the bucket when missing and, if configured, makes
	// its objects publicly readable.
	EnsureBucket(ctx context.Context) error
}
