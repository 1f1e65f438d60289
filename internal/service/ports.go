// Package service holds the register and search pipelines and the read-side
// lookups behind the HTTP handlers and the import CLI.
package service

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/repository"
)

// Embedder turns a stored image URL into an embedding.
type Embedder interface {
	Embed(ctx context.Context, imageURL string) ([]float32, error)
}

// AnimalStore is the datastore used by the pipelines. Both the plain SQL
// repository and the Qdrant-indexed store satisfy it.
type AnimalStore interface {
	Create(ctx context.Context, animal *domain.Animal) error
	FindMatches(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error)
	GetByID(ctx context.Context, id string) (*domain.Animal, error)
	List(ctx context.Context, filter repository.ListFilter) ([]domain.Animal, error)
	Ping(ctx context.Context) error
}

// ParseFloatField parses an optional numeric form field. Empty input yields nil.
func ParseFloatField(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperr.Validation(field, field+" must be a number")
	}
	return &v, nil
}

// ParseIntField parses an optional integer form field. Empty input yields nil.
func ParseIntField(field, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperr.Validation(field, field+" must be an integer")
	}
	return &v, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
