// Package matching ranks stored animal reports against a search query by
// combining visual similarity with geographic proximity.
package matching

import (
	"sort"

	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/geo"
)

// Score weights. Visual similarity dominates; proximity breaks ties and
// downranks distant look-alikes.
const (
	SimilarityWeight = 0.7
	ProximityWeight  = 0.3
)

// CombinedScore returns the weighted sum of similarity and proximity.
func CombinedScore(similarity, proximity float64) float64 {
	return SimilarityWeight*similarity + ProximityWeight*proximity
}

// Entry is a stored record paired with its vector distance to the query embedding.
type Entry struct {
	Animal         domain.Animal
	VectorDistance float64
}

// Rank turns entries into candidates for q:
//  1. keep records of q.TargetStatus() inside the GeoBox around the query point
//  2. drop records whose exact distance exceeds q.MaxDistanceKm
//  3. similarity = 1 - vector distance (not clamped)
//  4. combined = 0.7*similarity + 0.3*proximity
//  5. stable sort by combined descending, truncate to q.Limit (0 means no limit)
//
// An empty result is not an error.
func Rank(q domain.SearchQuery, entries []Entry) []domain.Candidate {
	origin := geo.Point{Lat: q.Latitude, Lon: q.Longitude}
	box := geo.Bounds(origin, q.MaxDistanceKm)
	target := q.TargetStatus()

	candidates := make([]domain.Candidate, 0, len(entries))
	for _, e := range entries {
		if e.Animal.Status != target {
			continue
		}
		p := geo.Point{Lat: e.Animal.Latitude, Lon: e.Animal.Longitude}
		if !box.Contains(p) {
			continue
		}
		distance := geo.DistanceKm(origin, p)
		if distance > q.MaxDistanceKm {
			continue
		}
		similarity := 1 - e.VectorDistance
		candidates = append(candidates, domain.Candidate{
			Animal:        e.Animal,
			DistanceKm:    distance,
			Similarity:    similarity,
			CombinedScore: CombinedScore(similarity, geo.Proximity(distance, q.MaxDistanceKm)),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})

	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates
}

// Ranker ranks plain records by computing vector distances in process.
// It backs datastores that cannot evaluate the match query natively.
type Ranker struct {
	Metric Metric
}

// NewRanker creates a Ranker for metric.
func NewRanker(metric Metric) *Ranker {
	return &Ranker{Metric: metric}
}

// RankRecords computes the vector distance of every record to q.Embedding and
// ranks them. Records whose embedding length differs from the query are skipped.
func (r *Ranker) RankRecords(q domain.SearchQuery, records []domain.Animal) []domain.Candidate {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		d, err := r.Metric.Distance(q.Embedding, rec.Embedding.Slice())
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Animal: rec, VectorDistance: d})
	}
	return Rank(q, entries)
}
