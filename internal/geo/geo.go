// Package geo holds the geographic half of matching: the bounding-box
// pre-filter and the great-circle distance score.
package geo

import (
	"math"

	"github.com/timmy/petmatch/internal/apperr"
)

const (
	// EarthRadiusKm is the sphere radius used by DistanceKm.
	EarthRadiusKm = 6371.0
	// KmPerDegree approximates the length of one degree of latitude.
	KmPerDegree = 111.0

	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate rejects coordinates outside [-90,90]x[-180,180] and non-finite values.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < -90 || p.Lat > 90 {
		return apperr.Validation("latitude", "latitude must be between -90 and 90")
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || p.Lon < -180 || p.Lon > 180 {
		return apperr.Validation("longitude", "longitude must be between -180 and 180")
	}
	return nil
}

// Box is a latitude/longitude rectangle that contains every point within a
// radius of its center. It is a superset filter; the exact radius cut is done
// with DistanceKm afterwards.
type Box struct {
	Center   Point
	LatDelta float64
	LonDelta float64
	MinLat   float64
	MaxLat   float64
	MinLon   float64
	MaxLon   float64
}

// Bounds computes the pre-filter rectangle for a circle of radiusKm around center.
//
// The latitude delta is radiusKm/111. The longitude delta starts from
// radiusKm/(111·cos(lat)) and is widened to the exact spherical bound where
// that is larger. When the circle reaches a pole, or the rectangle would cross
// the antimeridian, the box spans all longitudes.
func Bounds(center Point, radiusKm float64) Box {
	if radiusKm < 0 {
		radiusKm = 0
	}
	angular := radiusKm / EarthRadiusKm

	latDelta := math.Max(radiusKm/KmPerDegree, angular*radToDeg)
	lonDelta := longitudeDelta(center.Lat, radiusKm, angular)

	b := Box{
		Center:   center,
		LatDelta: latDelta,
		LonDelta: lonDelta,
		MinLat:   math.Max(center.Lat-latDelta, -90),
		MaxLat:   math.Min(center.Lat+latDelta, 90),
		MinLon:   center.Lon - lonDelta,
		MaxLon:   center.Lon + lonDelta,
	}
	if lonDelta >= 180 || b.MinLon < -180 || b.MaxLon > 180 {
		b.MinLon, b.MaxLon = -180, 180
	}
	return b
}

func longitudeDelta(lat, radiusKm, angular float64) float64 {
	cosLat := math.Cos(lat * degToRad)
	if cosLat < 1e-12 {
		return 180
	}
	if math.Abs(lat)*degToRad+angular >= math.Pi/2 {
		return 180
	}

	approx := radiusKm / (KmPerDegree * cosLat)

	ratio := math.Sin(angular) / cosLat
	if ratio >= 1 {
		return 180
	}
	exact := math.Asin(ratio) * radToDeg

	return math.Min(math.Max(approx, exact), 180)
}

// AllLongitudes reports whether the box does not constrain longitude.
func (b Box) AllLongitudes() bool {
	return b.MinLon <= -180 && b.MaxLon >= 180
}

// Contains reports whether p lies inside the rectangle (edges included).
func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// DistanceKm returns the great-circle distance between a and b using the
// spherical law of cosines. The acos argument is clamped to [-1, 1].
func DistanceKm(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	cosine := math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon) + math.Sin(lat1)*math.Sin(lat2)
	cosine = math.Max(-1, math.Min(1, cosine))

	return EarthRadiusKm * math.Acos(cosine)
}

// Proximity normalizes a distance into [0,1]: 1 at zero distance, 0 at or
// beyond maxKm.
func Proximity(distanceKm, maxKm float64) float64 {
	if maxKm <= 0 {
		return 0
	}
	return 1 - math.Min(distanceKm/maxKm, 1)
}
