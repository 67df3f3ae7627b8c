package domain

import "math"

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// HaversineMeters returns the great-circle distance in meters between two
// points specified in decimal degrees.
func HaversineMeters(a, b Point) float64 {
	dLat := degreesToRadians(b.Latitude - a.Latitude)
	dLng := degreesToRadians(b.Longitude - a.Longitude)

	rLat1 := degreesToRadians(a.Latitude)
	rLat2 := degreesToRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Within reports whether the subject position lies inside the circular fence
// around target. The boundary is inclusive. A missing or malformed
// coordinate on either side fails closed.
func Within(subject, target *Point, radiusMeters float64) bool {
	if subject == nil || target == nil {
		return false
	}
	if !subject.Valid() || !target.Valid() {
		return false
	}
	return HaversineMeters(*subject, *target) <= radiusMeters
}
