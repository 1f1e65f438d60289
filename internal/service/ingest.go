package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/geo"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/metrics"
	"github.com/timmy/petmatch/internal/storage"
	"github.com/timmy/petmatch/internal/upload"
)

// IngestConfig holds configuration for the register pipeline.
type IngestConfig struct {
	KeyPrefix string
	// CompensateOnFailure deletes the uploaded image when embedding or
	// persisting fails. Off by default: the image is left behind.
	CompensateOnFailure bool
}

// RegisterInput is one registration request. Latitude and Longitude are
// pointers so a missing coordinate can be told apart from 0.
type RegisterInput struct {
	Image       io.Reader
	Filename    string
	Latitude    *float64
	Longitude   *float64
	Description string
	Status      string
}

// IngestService registers new animal reports.
type IngestService struct {
	store    AnimalStore
	storage  storage.ObjectStorage
	embedder Embedder
	spooler  *upload.Spooler
	cfg      IngestConfig
	now      func() time.Time
}

// NewIngestService creates the register pipeline.
// Parameters:
//   - store: datastore the record is persisted to.
//   - objectStorage: where the image is uploaded; the embedding service reads it from there.
//   - embedder: embedding service client.
//   - spooler: temp file spooler for the upload.
//   - cfg: key prefix and compensation policy.
//
// Returns:
//   - *IngestService: initialized service.
func NewIngestService(store AnimalStore, objectStorage storage.ObjectStorage, embedder Embedder, spooler *upload.Spooler, cfg IngestConfig) *IngestService {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "animals"
	}
	return &IngestService{
		store:    store,
		storage:  objectStorage,
		embedder: embedder,
		spooler:  spooler,
		cfg:      cfg,
		now:      time.Now,
	}
}

type registerRequest struct {
	point       geo.Point
	status      domain.Status
	description *string
}

func validateRegister(in RegisterInput) (registerRequest, error) {
	if in.Image == nil {
		return registerRequest{}, apperr.Validation("image", "image is required")
	}
	if in.Latitude == nil {
		return registerRequest{}, apperr.Validation("latitude", "latitude is required")
	}
	if in.Longitude == nil {
		return registerRequest{}, apperr.Validation("longitude", "longitude is required")
	}
	point := geo.Point{Lat: *in.Latitude, Lon: *in.Longitude}
	if err := point.Validate(); err != nil {
		return registerRequest{}, err
	}
	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return registerRequest{}, err
	}

	req := registerRequest{point: point, status: status}
	if d := strings.TrimSpace(in.Description); d != "" {
		req.description = &d
	}
	return req, nil
}

// Register runs the register pipeline: validate, spool, upload, embed, persist.
// The temp file is removed on every path. An uploaded image is only deleted
// again when CompensateOnFailure is set.
// Parameters:
//   - ctx: request context.
//   - in: image, coordinates, status and optional description.
//
// Returns:
//   - *domain.Animal: the persisted record with its ID and CreatedAt.
//   - error: *apperr.Error classifying the failed step.
func (s *IngestService) Register(ctx context.Context, in RegisterInput) (animal *domain.Animal, err error) {
	start := time.Now()
	ctx = logger.SetOperation(ctx, "register")
	defer func() {
		metrics.ObservePipeline("register", outcomeOf(err), time.Since(start))
	}()

	req, err := validateRegister(in)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldStatus: string(req.status),
		"latitude":         req.point.Lat,
		"longitude":        req.point.Lon,
	})

	file, err := s.spooler.Spool(in.Image, in.Filename)
	if err != nil {
		return nil, err
	}
	defer s.releaseTemp(ctx, file)

	key := storage.NewKey(s.cfg.KeyPrefix, in.Filename, s.now())
	imageURL, err := s.storage.Put(ctx, storage.Object{
		Key:         key,
		Body:        file,
		Size:        file.Size,
		ContentType: file.ContentType,
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Image upload failed")
		return nil, err
	}
	logger.With(logger.Fields{"key": key, logger.FieldSize: file.Size}).Debug(ctx, "Image stored")

	embedding, err := s.embedder.Embed(ctx, imageURL)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Embedding failed")
		s.compensate(ctx, key)
		return nil, err
	}

	animal = &domain.Animal{
		ImageURL:    imageURL,
		Embedding:   pgvector.NewVector(embedding),
		Latitude:    req.point.Lat,
		Longitude:   req.point.Lon,
		Description: req.description,
		Status:      req.status,
	}
	if err := s.store.Create(ctx, animal); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Failed to persist animal")
		s.compensate(ctx, key)
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldAnimalID: animal.ID,
		"dimensions":         len(embedding),
	}).WithDuration(time.Since(start)).Info(ctx, "Animal registered")
	return animal, nil
}

func (s *IngestService) compensate(ctx context.Context, key string) {
	if !s.cfg.CompensateOnFailure {
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Warn("Failed to delete orphaned image")
		return
	}
	logger.CtxInfo(ctx, "Deleted orphaned image %s", key)
}

func (s *IngestService) releaseTemp(ctx context.Context, file *upload.File) {
	if err := file.Release(); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to remove temp file")
	}
}
