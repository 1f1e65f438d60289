package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/embedding"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/repository"
	"github.com/timmy/petmatch/internal/service"
	"github.com/timmy/petmatch/internal/storage"
	"github.com/timmy/petmatch/internal/upload"
)

type memStorage struct{}

func (memStorage) Put(_ context.Context, obj storage.Object) (string, error) {
	_, _ = io.Copy(io.Discard, obj.Body)
	return "http://minio:9000/animal-images/" + obj.Key, nil
}
func (memStorage) Delete(context.Context, string) error { return nil }
func (memStorage) URL(key string) string                { return key }
func (memStorage) EnsureBucket(context.Context) error   { return nil }

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) Health(context.Context) embedding.Health {
	return embedding.Health{Status: "ok", Model: "clip"}
}

type memStore struct {
	created []*domain.Animal
	pingErr error
}

func (m *memStore) Create(_ context.Context, a *domain.Animal) error {
	a.ID = "0b7e4a52-6f0c-4c1e-9a43-2d9f8e1c5b70"
	a.CreatedAt = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m.created = append(m.created, a)
	return nil
}

func (m *memStore) FindMatches(context.Context, domain.SearchQuery) ([]domain.Candidate, error) {
	return []domain.Candidate{}, nil
}

func (m *memStore) GetByID(context.Context, string) (*domain.Animal, error) {
	return nil, apperr.NotFound("animal")
}

func (m *memStore) List(context.Context, repository.ListFilter) ([]domain.Animal, error) {
	return []domain.Animal{}, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func newTestRouter(t *testing.T, store *memStore, embedder stubEmbedder) http.Handler {
	t.Helper()
	spooler := upload.NewSpooler(afero.NewMemMapFs(), "/tmp", 0)
	log := logger.New(logger.Options{Level: "error", Output: io.Discard})

	return SetupRouter(&config.ServerConfig{Mode: "test", MaxUploadMB: 1}, Services{
		Ingest:    service.NewIngestService(store, memStorage{}, embedder, spooler, service.IngestConfig{}),
		Search:    service.NewSearchService(store, memStorage{}, embedder, spooler, service.SearchConfig{}),
		Animals:   service.NewAnimalService(store),
		Embedding: embedder,
	}, log)
}

func multipartBody(t *testing.T, fields map[string]string, img []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if img != nil {
		part, err := w.CreateFormFile("image", "dog.png")
		require.NoError(t, err)
		_, err = part.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestRegisterEndpoint(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(t, store, stubEmbedder{})

	body, ct := multipartBody(t, map[string]string{
		"latitude": "-23.5", "longitude": "-46.6", "status": "lost", "description": "brown dog",
	}, pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	rec, resp := do(t, r, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Animal registrado com sucesso", resp["message"])

	animal := resp["animal"].(map[string]interface{})
	assert.Equal(t, "lost", animal["status"])
	assert.Equal(t, "brown dog", animal["description"])
	assert.NotEmpty(t, animal["image_url"])
	assert.NotContains(t, animal, "embedding")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Len(t, store.created, 1)
}

func TestRegisterEndpointValidation(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})

	body, ct := multipartBody(t, map[string]string{"latitude": "-23.5", "longitude": "-46.6", "status": "stolen"}, pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", ct)

	rec, resp := do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", resp["kind"])
	assert.Equal(t, `Status must be "lost" or "found"`, resp["error"])
	assert.NotEmpty(t, resp["details"])

	body, ct = multipartBody(t, map[string]string{"latitude": "abc", "longitude": "-46.6", "status": "lost"}, pngBytes(t))
	req = httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept-Language", "pt-BR")

	rec, resp = do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Latitude e longitude são obrigatórias e devem ser coordenadas válidas", resp["error"])
}

func TestRegisterEndpointMissingImage(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})

	body, ct := multipartBody(t, map[string]string{"latitude": "1", "longitude": "1", "status": "found"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", ct)

	rec, resp := do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", resp["kind"])
}

func TestRegisterEndpointBodyTooLarge(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})

	big := append(pngBytes(t), bytes.Repeat([]byte{0}, 3<<20)...)
	body, ct := multipartBody(t, map[string]string{"latitude": "1", "longitude": "1", "status": "found"}, big)
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("Content-Type", ct)

	rec, resp := do(t, r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", resp["kind"])
}

func TestSearchEndpoint(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})

	body, ct := multipartBody(t, map[string]string{"lat": "-23.5", "lon": "-46.6", "status": "lost", "topK": "5"}, pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/search", body)
	req.Header.Set("Content-Type", ct)

	rec, resp := do(t, r, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	query := resp["query"].(map[string]interface{})
	assert.Equal(t, "lost", query["searchStatus"])
	assert.Equal(t, "found", query["resultsStatus"])
	assert.Equal(t, 10.0, query["maxDistanceKm"])
	assert.Equal(t, 5.0, query["limit"])
	assert.Equal(t, []interface{}{}, resp["candidates"])
	assert.Equal(t, 0.0, resp["total"])
}

func TestSearchEndpointUpstreamErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.Timeout("embedding.embed", errors.New("deadline")), http.StatusGatewayTimeout, "upstream_timeout"},
		{apperr.Upstream("embedding.embed", "embedding service error", errors.New("status 500")), http.StatusBadGateway, "upstream_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			r := newTestRouter(t, &memStore{}, stubEmbedder{err: tt.err})

			body, ct := multipartBody(t, map[string]string{"lat": "-23.5", "lon": "-46.6", "status": "found"}, pngBytes(t))
			req := httptest.NewRequest(http.MethodPost, "/api/search", body)
			req.Header.Set("Content-Type", ct)

			rec, resp := do(t, r, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, resp["kind"])
			assert.NotEmpty(t, resp["details"])
		})
	}
}

func TestAnimalEndpoints(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})

	req := httptest.NewRequest(http.MethodGet, "/api/animals/not-an-id", nil)
	req.Header.Set("Accept-Language", "pt-BR")
	rec, resp := do(t, r, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Animal não encontrado", resp["error"])
	assert.Equal(t, "not_found", resp["kind"])

	rec, resp = do(t, r, httptest.NewRequest(http.MethodGet, "/api/animals?status=found&limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, resp["total"])

	rec, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/api/animals?status=stolen", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(t, store, stubEmbedder{})

	rec, resp := do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ok", resp["embeddingService"].(map[string]interface{})["status"])

	store.pingErr = errors.New("connection refused")
	rec, resp = do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})
	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, &memStore{}, stubEmbedder{})

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec, _ := do(t, r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
