package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Animal is a registered lost or found animal report.
// Records are immutable after creation; ID and CreatedAt are assigned by the store.
type Animal struct {
	ID          string          `gorm:"type:text;primaryKey" json:"id"`
	ImageURL    string          `gorm:"type:text;not null" json:"image_url"`
	Embedding   pgvector.Vector `gorm:"type:vector;not null" json:"-"`
	Latitude    float64         `gorm:"not null;index:idx_animals_status_geo,priority:2" json:"latitude"`
	Longitude   float64         `gorm:"not null;index:idx_animals_status_geo,priority:3" json:"longitude"`
	Description *string         `gorm:"type:text" json:"description"`
	Status      Status          `gorm:"type:text;not null;index:idx_animals_status_geo,priority:1" json:"status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index:idx_animals_created_at" json:"created_at"`
}

// TableName returns the database table name for Animal.
func (Animal) TableName() string {
	return "animals"
}

// BeforeCreate assigns the record identity when the caller left it empty.
func (a *Animal) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Candidate is an Animal projected into a search result with its derived scores.
// Scores carry full precision; display rounding happens at formatting time.
type Candidate struct {
	Animal
	DistanceKm    float64 `json:"distance_km"`
	Similarity    float64 `json:"similarity"`
	CombinedScore float64 `json:"combined_score"`
}

// SearchQuery is the transient, never persisted input of a match.
type SearchQuery struct {
	Embedding     []float32
	Latitude      float64
	Longitude     float64
	Status        Status // what the caller has; records of Status.Opposite() are searched
	MaxDistanceKm float64
	Limit         int
}

// TargetStatus returns the status of the records this query matches against.
func (q SearchQuery) TargetStatus() Status {
	return q.Status.Opposite()
}
