package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/config"
)

type flakyStorage struct {
	failures int
	err      error
	block    bool
	calls    int
	bodies   []string
	deleted  []string
}

func (f *flakyStorage) Put(ctx context.Context, obj Object) (string, error) {
	f.calls++
	data, _ := io.ReadAll(obj.Body)
	f.bodies = append(f.bodies, string(data))
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.URL(obj.Key), nil
}

func (f *flakyStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *flakyStorage) URL(key string) string             { return "http://store/" + key }
func (f *flakyStorage) EnsureBucket(context.Context) error { return nil }

func fastRetry(next ObjectStorage, retries int, timeout time.Duration) *RetryingStorage {
	return NewRetryingStorage(next, RetryOptions{
		MaxRetries:      retries,
		AttemptTimeout:  timeout,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func jpegObject(key string) Object {
	body := []byte("\xff\xd8\xff fake jpeg")
	return Object{Key: key, Body: bytes.NewReader(body), Size: int64(len(body)), ContentType: "image/jpeg"}
}

func TestRetryingStorageRetriesAndRewinds(t *testing.T) {
	backend := &flakyStorage{failures: 2, err: errors.New("connection reset")}
	s := fastRetry(backend, 3, 0)

	url, err := s.Put(context.Background(), jpegObject("animals/1-a-dog.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "http://store/animals/1-a-dog.jpg", url)
	assert.Equal(t, 3, backend.calls)
	for _, body := range backend.bodies {
		assert.Equal(t, "\xff\xd8\xff fake jpeg", body)
	}
}

func TestRetryingStorageGivesUp(t *testing.T) {
	backend := &flakyStorage{failures: 10, err: errors.New("503 slow down")}
	s := fastRetry(backend, 2, 0)

	_, err := s.Put(context.Background(), jpegObject("k"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamFailure)
	assert.Equal(t, 3, backend.calls)
	assert.Contains(t, apperr.DetailOf(err), "503 slow down")
}

func TestRetryingStorageDoesNotRetryValidation(t *testing.T) {
	backend := &flakyStorage{failures: 10, err: apperr.Validation("image", "too large")}
	s := fastRetry(backend, 5, 0)

	_, err := s.Put(context.Background(), jpegObject("k"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 1, backend.calls)
}

func TestRetryingStorageAttemptTimeout(t *testing.T) {
	backend := &flakyStorage{block: true}
	s := fastRetry(backend, 0, 10*time.Millisecond)

	_, err := s.Put(context.Background(), jpegObject("k"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamTimeout)
}

func TestRetryingStorageRequiresBody(t *testing.T) {
	s := fastRetry(&flakyStorage{}, 0, 0)
	_, err := s.Put(context.Background(), Object{Key: "k"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewKey(t *testing.T) {
	now := time.UnixMilli(1717000000123)

	key := NewKey("animals", "My Dog (1).JPG", now)
	assert.Regexp(t, regexp.MustCompile(`^animals/1717000000123-[0-9a-f]{8}-My_Dog__1_.JPG$`), key)

	assert.NotEqual(t, NewKey("search", "a.png", now), NewKey("search", "a.png", now))
	assert.True(t, strings.HasPrefix(NewKey("/search/", "a.png", now), "search/1717000000123-"))
	assert.True(t, strings.HasSuffix(NewKey("", "", now), "-image"))
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"dog.jpg":             "dog.jpg",
		"../../etc/passwd":    "passwd",
		`C:\photos\cat.png`:   "cat.png",
		"cão perdido.webp":    "c_o_perdido.webp",
		"...":                 "image",
		strings.Repeat("a", 100) + ".jpg": strings.Repeat("a", 60) + ".jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeName(in), in)
	}
}

func TestPublicObjectURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/animal-images/animals/x.jpg",
		publicObjectURL("", false, "localhost:9000", "animal-images", "animals/x.jpg"))
	assert.Equal(t, "https://cdn.example.com/animals/x.jpg",
		publicObjectURL("https://cdn.example.com/", true, "minio:9000", "b", "animals/x.jpg"))
}

func TestPublicReadPolicy(t *testing.T) {
	p := publicReadPolicy("animal-images")
	assert.Contains(t, p, `"arn:aws:s3:::animal-images/*"`)
	assert.Contains(t, p, `"s3:GetObject"`)
}

func TestNewMinIOStorageURL(t *testing.T) {
	s, err := NewMinIOStorage(&config.StorageConfig{
		Endpoint:  "http://minio:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "animal-images",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/animal-images/search/k.png", s.URL("search/k.png"))
}

func TestNewS3StorageURL(t *testing.T) {
	s, err := NewS3Storage(context.Background(), &config.StorageConfig{
		Region:    "sa-east-1",
		Bucket:    "pets",
		AccessKey: "AKIA",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pets.s3.sa-east-1.amazonaws.com/animals/k.jpg", s.URL("animals/k.jpg"))

	s, err = NewS3Storage(context.Background(), &config.StorageConfig{
		Endpoint:       "https://r2.example.com/ignored",
		UseSSL:         true,
		ForcePathStyle: true,
		Bucket:         "pets",
		AccessKey:      "AKIA",
		SecretKey:      "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://r2.example.com/pets/animals/k.jpg", s.URL("animals/k.jpg"))
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(context.Background(), &config.StorageConfig{Type: "gcs"})
	assert.Error(t, err)
}
