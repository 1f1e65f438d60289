package repository

import (
	"context"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/geo"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/matching"
)

// VectorIndex is the nearest-neighbour side of IndexedStore. QdrantIndex implements it.
type VectorIndex interface {
	Upsert(ctx context.Context, animal *domain.Animal) error
	Search(ctx context.Context, vector []float32, status domain.Status, box geo.Box, limit int) ([]IndexHit, error)
	Delete(ctx context.Context, id string) error
}

// IndexedStore keeps records in SQL and vectors in an external index.
// Searches ask the index for a candidate window filtered by status and GeoBox,
// then rank the window with the exact distance and combined score.
type IndexedStore struct {
	animals    *AnimalRepository
	index      VectorIndex
	oversample int
	minWindow  int
}

// NewIndexedStore creates an IndexedStore. The candidate window for a search
// with limit n is max(n*oversample, minWindow).
func NewIndexedStore(animals *AnimalRepository, index VectorIndex, oversample, minWindow int) *IndexedStore {
	if oversample < 1 {
		oversample = 1
	}
	return &IndexedStore{animals: animals, index: index, oversample: oversample, minWindow: minWindow}
}

// Create persists animal and indexes its embedding. If indexing fails the
// SQL row is removed so the two stores stay consistent.
func (s *IndexedStore) Create(ctx context.Context, animal *domain.Animal) error {
	if err := s.animals.Create(ctx, animal); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, animal); err != nil {
		if delErr := s.animals.Delete(context.WithoutCancel(ctx), animal.ID); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).WithField(logger.FieldAnimalID, animal.ID).
				Error("Failed to remove record after index failure")
		}
		return apperr.Persistence("index.upsert", err)
	}
	return nil
}

func (s *IndexedStore) window(limit int) int {
	w := limit * s.oversample
	if w < s.minWindow {
		w = s.minWindow
	}
	return w
}

// FindMatches ranks the index's nearest neighbours of q.
func (s *IndexedStore) FindMatches(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error) {
	box := geo.Bounds(geo.Point{Lat: q.Latitude, Lon: q.Longitude}, q.MaxDistanceKm)

	hits, err := s.index.Search(ctx, q.Embedding, q.TargetStatus(), box, s.window(q.Limit))
	if err != nil {
		return nil, apperr.Persistence("index.search", err)
	}
	if len(hits) == 0 {
		return []domain.Candidate{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	records, err := s.animals.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Animal, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	// index order (nearest first) is the input order for stable ties
	entries := make([]matching.Entry, 0, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.ID]
		if !ok {
			continue
		}
		entries = append(entries, matching.Entry{Animal: rec, VectorDistance: h.VectorDistance})
	}
	return matching.Rank(q, entries), nil
}

// GetByID delegates to the SQL store.
func (s *IndexedStore) GetByID(ctx context.Context, id string) (*domain.Animal, error) {
	return s.animals.GetByID(ctx, id)
}

// List delegates to the SQL store.
func (s *IndexedStore) List(ctx context.Context, filter ListFilter) ([]domain.Animal, error) {
	return s.animals.List(ctx, filter)
}

// Ping delegates to the SQL store.
func (s *IndexedStore) Ping(ctx context.Context) error {
	return s.animals.Ping(ctx)
}
