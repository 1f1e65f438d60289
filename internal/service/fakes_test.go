package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/repository"
	"github.com/timmy/petmatch/internal/storage"
	"github.com/timmy/petmatch/internal/upload"
)

const tempDir = "/tmp/petmatch"

type fakeStorage struct {
	mu      sync.Mutex
	putErr  error
	puts    []string
	bodies  [][]byte
	deleted []string
}

func (f *fakeStorage) Put(_ context.Context, obj storage.Object) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	data, _ := io.ReadAll(obj.Body)
	f.puts = append(f.puts, obj.Key)
	f.bodies = append(f.bodies, data)
	return f.URL(obj.Key), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) URL(key string) string             { return "http://minio:9000/animal-images/" + key }
func (f *fakeStorage) EnsureBucket(context.Context) error { return nil }

type fakeEmbedder struct {
	mu   sync.Mutex
	vec  []float32
	err  error
	urls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, imageURL string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, imageURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeStore struct {
	mu         sync.Mutex
	createErr  error
	matches    []domain.Candidate
	matchErr   error
	created    []*domain.Animal
	queries    []domain.SearchQuery
	getCalls   int
	listFilter *repository.ListFilter
}

func (f *fakeStore) Create(_ context.Context, a *domain.Animal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	a.ID = "3f1c2a4e-9a51-4d3b-8f7e-2c6d1b0a9e11"
	f.created = append(f.created, a)
	return nil
}

func (f *fakeStore) FindMatches(_ context.Context, q domain.SearchQuery) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	if f.matches == nil {
		return []domain.Candidate{}, nil
	}
	return f.matches, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*domain.Animal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	return nil, apperr.NotFound("animal")
}

func (f *fakeStore) List(_ context.Context, filter repository.ListFilter) ([]domain.Animal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilter = &filter
	return []domain.Animal{}, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

var errTimeout = apperr.Timeout("embedding.embed", errors.New("deadline exceeded"))

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{R: 120, G: 80, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newSpooler() (*upload.Spooler, afero.Fs) {
	fs := afero.NewMemMapFs()
	return upload.NewSpooler(fs, tempDir, 0), fs
}

func tempFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	entries, err := afero.ReadDir(fs, tempDir)
	if err != nil {
		return 0
	}
	return len(entries)
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
