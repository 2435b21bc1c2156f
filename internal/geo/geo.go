// Package geo holds the coordinate type and the spatial helpers shared by
// the proximity caches: great-circle distance, zone keys and bounding boxes.
package geo

import (
	"fmt"
	"math"
)

const (
	earthRadiusMeters = 6371000.0

	// zoneGridSize is the cache cell edge in degrees, roughly 1 km at
	// Lyon's latitude.
	zoneGridSize = 0.01
)

// Coordinate is a WGS-84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the haversine great-circle distance between a and b in
// meters. Symmetric, and exactly zero when a == b.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ZoneKey quantizes a coordinate to its cache grid cell. Two coordinates in
// the same ~1 km cell map to the same key.
func ZoneKey(c Coordinate) string {
	return fmt.Sprintf("zone_%d_%d",
		int(math.Floor(c.Latitude/zoneGridSize)),
		int(math.Floor(c.Longitude/zoneGridSize)))
}

// BoundingBox returns a box around center with the given radius in meters.
// Used as a cheap pre-filter before exact distance checks.
func BoundingBox(center Coordinate, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRadians(center.Latitude)))

	return center.Latitude - latDelta, center.Longitude - lonDelta,
		center.Latitude + latDelta, center.Longitude + lonDelta
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
