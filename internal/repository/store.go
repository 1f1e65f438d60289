package repository

import (
	"context"
	"fmt"

	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/matching"
)

// Store is what OpenStore returns: AnimalRepository alone, or wrapped in an
// IndexedStore when matching runs through Qdrant.
type Store interface {
	Create(ctx context.Context, animal *domain.Animal) error
	FindMatches(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error)
	GetByID(ctx context.Context, id string) (*domain.Animal, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Animal, error)
	Ping(ctx context.Context) error
}

// OpenStore connects the database and, for matching backend "qdrant", the
// vector index. The returned close function releases both.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	metric, err := matching.ParseMetric(cfg.Matching.Metric)
	if err != nil {
		return nil, nil, err
	}

	db, err := InitDB(ctx, &cfg.Database, cfg.Embedding.Dimensions, metric)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	animals := NewAnimalRepository(db, metric, cfg.Database.QueryTimeout)

	if cfg.Matching.Backend != "qdrant" {
		return animals, sqlDB.Close, nil
	}

	index, err := NewQdrantIndex(&QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
		Metric:          metric,
	})
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	if err := index.EnsureCollection(ctx); err != nil {
		index.Close()
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
	}

	closeAll := func() error {
		indexErr := index.Close()
		if err := sqlDB.Close(); err != nil {
			return err
		}
		return indexErr
	}
	return NewIndexedStore(animals, index, cfg.Matching.CandidateOversample, cfg.Matching.MinCandidateWindow), closeAll, nil
}
