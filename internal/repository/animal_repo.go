package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/geo"
	"github.com/timmy/petmatch/internal/matching"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListFilter narrows AnimalRepository.List.
type ListFilter struct {
	Status *domain.Status
	Limit  int
}

// AnimalRepository persists animal reports and runs the geo+vector match query.
type AnimalRepository struct {
	db           *gorm.DB
	metric       matching.Metric
	ranker       *matching.Ranker
	queryTimeout time.Duration
}

// NewAnimalRepository creates an AnimalRepository.
// Parameters:
//   - db: GORM handle (postgres or sqlite).
//   - metric: vector metric used for similarity; must match the vector index.
//   - queryTimeout: bound applied to each datastore call; 0 disables it.
func NewAnimalRepository(db *gorm.DB, metric matching.Metric, queryTimeout time.Duration) *AnimalRepository {
	return &AnimalRepository{
		db:           db,
		metric:       metric,
		ranker:       matching.NewRanker(metric),
		queryTimeout: queryTimeout,
	}
}

func (r *AnimalRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Create inserts animal. ID and CreatedAt are filled in on success.
func (r *AnimalRepository) Create(ctx context.Context, animal *domain.Animal) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(animal).Error; err != nil {
		return apperr.Persistence("animals.create", err)
	}
	return nil
}

// Delete removes an animal by ID. Missing rows are not an error.
func (r *AnimalRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.WithContext(ctx).Delete(&domain.Animal{}, "id = ?", id).Error; err != nil {
		return apperr.Persistence("animals.delete", err)
	}
	return nil
}

// GetByID returns the animal with id, or an apperr NotFound error.
func (r *AnimalRepository) GetByID(ctx context.Context, id string) (*domain.Animal, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var animal domain.Animal
	err := r.db.WithContext(ctx).First(&animal, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("animal")
	}
	if err != nil {
		return nil, apperr.Persistence("animals.get", err)
	}
	return &animal, nil
}

// GetByIDs returns the animals whose IDs are in ids, in no particular order.
func (r *AnimalRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Animal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var animals []domain.Animal
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&animals).Error; err != nil {
		return nil, apperr.Persistence("animals.get_many", err)
	}
	return animals, nil
}

// List returns animals newest first, without embeddings.
func (r *AnimalRepository) List(ctx context.Context, filter ListFilter) ([]domain.Animal, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := r.db.WithContext(ctx).Model(&domain.Animal{}).Omit("embedding")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var animals []domain.Animal
	if err := query.Order("created_at DESC").Limit(limit).Find(&animals).Error; err != nil {
		return nil, apperr.Persistence("animals.list", err)
	}
	return animals, nil
}

// InBox returns animals with status whose coordinates fall inside box.
func (r *AnimalRepository) InBox(ctx context.Context, status domain.Status, box geo.Box) ([]domain.Animal, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var animals []domain.Animal
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("longitude BETWEEN ? AND ?", box.MinLon, box.MaxLon).
		Order("created_at ASC").
		Find(&animals).Error
	if err != nil {
		return nil, apperr.Persistence("animals.in_box", err)
	}
	return animals, nil
}

// Ping checks datastore connectivity.
func (r *AnimalRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// FindMatches ranks stored reports of q.TargetStatus() against q.
// On postgres the whole ranking is one SQL statement; other dialects pre-filter
// by status and GeoBox in SQL and rank in process.
func (r *AnimalRepository) FindMatches(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error) {
	if r.db.Dialector.Name() == "postgres" {
		return r.findMatchesSQL(ctx, q)
	}

	box := geo.Bounds(geo.Point{Lat: q.Latitude, Lon: q.Longitude}, q.MaxDistanceKm)
	records, err := r.InBox(ctx, q.TargetStatus(), box)
	if err != nil {
		return nil, err
	}
	return r.ranker.RankRecords(q, records), nil
}

// matchQueryTemplate takes the similarity weight, proximity weight and the
// pgvector distance operator. The acos argument is clamped so coincident
// points do not produce NaN.
const matchQueryTemplate = `
WITH filtered AS (
  SELECT id, image_url, latitude, longitude, description, status, created_at, embedding,
    6371 * acos(LEAST(1.0, GREATEST(-1.0,
      cos(radians(@lat)) * cos(radians(latitude)) * cos(radians(longitude) - radians(@lon)) +
      sin(radians(@lat)) * sin(radians(latitude))
    ))) AS distance_km
  FROM animals
  WHERE status = @status
    AND latitude BETWEEN @min_lat AND @max_lat
    AND longitude BETWEEN @min_lon AND @max_lon
)
SELECT id, image_url, latitude, longitude, description, status, created_at, distance_km,
  1 - (embedding %[3]s CAST(@embedding AS vector)) AS similarity,
  %[1]g * (1 - (embedding %[3]s CAST(@embedding AS vector))) + %[2]g * (1 - LEAST(distance_km / @max_km, 1)) AS combined_score
FROM filtered
WHERE distance_km <= @max_km
ORDER BY combined_score DESC
LIMIT @limit
`

func matchQuery(metric matching.Metric) string {
	return fmt.Sprintf(matchQueryTemplate, matching.SimilarityWeight, matching.ProximityWeight, metric.SQLOperator())
}

type matchRow struct {
	ID            string
	ImageURL      string
	Latitude      float64
	Longitude     float64
	Description   *string
	Status        domain.Status
	CreatedAt     time.Time
	DistanceKm    float64
	Similarity    float64
	CombinedScore float64
}

func (r *AnimalRepository) findMatchesSQL(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error) {
	box := geo.Bounds(geo.Point{Lat: q.Latitude, Lon: q.Longitude}, q.MaxDistanceKm)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rows []matchRow
	err := r.db.WithContext(ctx).Raw(matchQuery(r.metric), map[string]interface{}{
		"embedding": pgvector.NewVector(q.Embedding),
		"lat":       q.Latitude,
		"lon":       q.Longitude,
		"status":    q.TargetStatus(),
		"min_lat":   box.MinLat,
		"max_lat":   box.MaxLat,
		"min_lon":   box.MinLon,
		"max_lon":   box.MaxLon,
		"max_km":    q.MaxDistanceKm,
		"limit":     q.Limit,
	}).Scan(&rows).Error
	if err != nil {
		return nil, apperr.Persistence("animals.find_matches", err)
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, domain.Candidate{
			Animal: domain.Animal{
				ID:          row.ID,
				ImageURL:    row.ImageURL,
				Latitude:    row.Latitude,
				Longitude:   row.Longitude,
				Description: row.Description,
				Status:      row.Status,
				CreatedAt:   row.CreatedAt,
			},
			DistanceKm:    row.DistanceKm,
			Similarity:    row.Similarity,
			CombinedScore: row.CombinedScore,
		})
	}
	return candidates, nil
}
