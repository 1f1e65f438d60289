package service

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/geo"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/metrics"
	"github.com/timmy/petmatch/internal/storage"
	"github.com/timmy/petmatch/internal/upload"
)

// SearchConfig holds configuration for the search pipeline.
type SearchConfig struct {
	KeyPrefix       string
	DefaultRadiusKm float64
	DefaultLimit    int
	MaxLimit        int // 0 disables the cap
	// DeleteQueryImage removes the transient query image once the search is done.
	DeleteQueryImage bool
}

// SearchInput is one search request. Nil MaxDistanceKm and Limit take the defaults.
type SearchInput struct {
	Image         io.Reader
	Filename      string
	Latitude      *float64
	Longitude     *float64
	Status        string // what the caller has
	MaxDistanceKm *float64
	Limit         *int
}

// QueryEcho is the normalized search input returned with the results.
type QueryEcho struct {
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	MaxDistanceKm float64       `json:"maxDistanceKm"`
	Limit         int           `json:"limit"`
	SearchStatus  domain.Status `json:"searchStatus"`
	ResultsStatus domain.Status `json:"resultsStatus"`
}

// CandidateView is a Candidate rounded for display.
type CandidateView struct {
	ID            string        `json:"id"`
	ImageURL      string        `json:"image_url"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	Description   *string       `json:"description"`
	Status        domain.Status `json:"status"`
	DistanceKm    float64       `json:"distance_km"`
	Similarity    float64       `json:"similarity"`
	CombinedScore float64       `json:"combined_score"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SearchResult is the outcome of a search. Candidates is never nil.
type SearchResult struct {
	Query      QueryEcho       `json:"query"`
	Candidates []CandidateView `json:"candidates"`
	Total      int             `json:"total"`
}

// SearchService finds reports of the opposite status that look like the
// query image and are close to the query point.
type SearchService struct {
	store    AnimalStore
	storage  storage.ObjectStorage
	embedder Embedder
	spooler  *upload.Spooler
	cfg      SearchConfig
	now      func() time.Time
}

// NewSearchService creates the search pipeline.
func NewSearchService(store AnimalStore, objectStorage storage.ObjectStorage, embedder Embedder, spooler *upload.Spooler, cfg SearchConfig) *SearchService {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "search"
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = 10
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	return &SearchService{
		store:    store,
		storage:  objectStorage,
		embedder: embedder,
		spooler:  spooler,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *SearchService) validate(in SearchInput) (domain.SearchQuery, error) {
	if in.Image == nil {
		return domain.SearchQuery{}, apperr.Validation("image", "image is required")
	}
	if in.Latitude == nil {
		return domain.SearchQuery{}, apperr.Validation("lat", "latitude is required")
	}
	if in.Longitude == nil {
		return domain.SearchQuery{}, apperr.Validation("lon", "longitude is required")
	}
	point := geo.Point{Lat: *in.Latitude, Lon: *in.Longitude}
	if err := point.Validate(); err != nil {
		return domain.SearchQuery{}, err
	}
	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return domain.SearchQuery{}, err
	}

	radius := s.cfg.DefaultRadiusKm
	if in.MaxDistanceKm != nil {
		radius = *in.MaxDistanceKm
		if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
			return domain.SearchQuery{}, apperr.Validation("maxDistanceKm", "maxDistanceKm must be a positive number")
		}
	}

	limit := s.cfg.DefaultLimit
	if in.Limit != nil {
		limit = *in.Limit
		if limit <= 0 {
			return domain.SearchQuery{}, apperr.Validation("topK", "topK must be a positive integer")
		}
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	return domain.SearchQuery{
		Latitude:      point.Lat,
		Longitude:     point.Lon,
		Status:        status,
		MaxDistanceKm: radius,
		Limit:         limit,
	}, nil
}

// Search runs the search pipeline: validate, spool, upload the query image,
// embed, match against the opposite status, format. The temp file is removed
// on every path. An empty match is a successful result.
// Parameters:
//   - ctx: request context.
//   - in: query image, coordinates, the caller's status, optional radius and limit.
//
// Returns:
//   - *SearchResult: query echo and candidates, best first.
//   - error: *apperr.Error classifying the failed step.
func (s *SearchService) Search(ctx context.Context, in SearchInput) (result *SearchResult, err error) {
	start := time.Now()
	ctx = logger.SetOperation(ctx, "search")
	defer func() {
		metrics.ObservePipeline("search", outcomeOf(err), time.Since(start))
	}()

	q, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldSearchStatus: string(q.Status),
		"latitude":               q.Latitude,
		"longitude":              q.Longitude,
		"max_distance_km":        q.MaxDistanceKm,
		"limit":                  q.Limit,
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
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Query image upload failed")
		return nil, err
	}
	if s.cfg.DeleteQueryImage {
		defer s.deleteQueryImage(ctx, key)
	}

	q.Embedding, err = s.embedder.Embed(ctx, imageURL)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Query embedding failed")
		return nil, err
	}

	candidates, err := s.store.FindMatches(ctx, q)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Match query failed")
		return nil, err
	}

	result = formatResult(q, candidates)
	metrics.SearchCandidates.Observe(float64(result.Total))
	logger.With(logger.Fields{"results_status": string(q.TargetStatus())}).
		WithCount(result.Total).
		WithDuration(time.Since(start)).
		Info(ctx, "Search completed")
	return result, nil
}

func formatResult(q domain.SearchQuery, candidates []domain.Candidate) *SearchResult {
	views := make([]CandidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, CandidateView{
			ID:            c.ID,
			ImageURL:      c.ImageURL,
			Latitude:      c.Latitude,
			Longitude:     c.Longitude,
			Description:   c.Description,
			Status:        c.Status,
			DistanceKm:    round(c.DistanceKm, 2),
			Similarity:    round(c.Similarity, 4),
			CombinedScore: round(c.CombinedScore, 4),
			CreatedAt:     c.CreatedAt,
		})
	}
	return &SearchResult{
		Query: QueryEcho{
			Latitude:      q.Latitude,
			Longitude:     q.Longitude,
			MaxDistanceKm: q.MaxDistanceKm,
			Limit:         q.Limit,
			SearchStatus:  q.Status,
			ResultsStatus: q.TargetStatus(),
		},
		Candidates: views,
		Total:      len(views),
	}
}

func (s *SearchService) deleteQueryImage(ctx context.Context, key string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Warn("Failed to delete query image")
	}
}

func (s *SearchService) releaseTemp(ctx context.Context, file *upload.File) {
	if err := file.Release(); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to remove temp file")
	}
}
