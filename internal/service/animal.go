package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/repository"
)

// AnimalService serves listings and single-record lookups.
type AnimalService struct {
	store AnimalStore
}

// NewAnimalService creates an AnimalService.
func NewAnimalService(store AnimalStore) *AnimalService {
	return &AnimalService{store: store}
}

// List returns records newest first, optionally filtered by status.
// limit <= 0 means repository.DefaultListLimit; larger values are capped at
// repository.MaxListLimit.
func (s *AnimalService) List(ctx context.Context, status *domain.Status, limit int) ([]domain.Animal, error) {
	if status != nil && !status.Valid() {
		return nil, apperr.Validation("status", `status must be "lost" or "found"`)
	}
	return s.store.List(ctx, repository.ListFilter{Status: status, Limit: limit})
}

// Get returns one record. Unknown and malformed ids are both NotFound.
func (s *AnimalService) Get(ctx context.Context, id string) (*domain.Animal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("animal")
	}
	return s.store.GetByID(ctx, id)
}

// Ping checks the datastore.
func (s *AnimalService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
