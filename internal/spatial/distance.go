package spatial

import (
	"github.com/golang/geo/s2"
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Midpoint calculates the geodesic midpoint between two points
func Midpoint(a, b Point) Point {
	p1 := s2.PointFromLatLng(s2.LatLngFromDegrees(a.Lat, a.Lon))
	p2 := s2.PointFromLatLng(s2.LatLngFromDegrees(b.Lat, b.Lon))

	mid := s2.LatLngFromPoint(s2.Interpolate(0.5, p1, p2))
	return Point{Lat: mid.Lat.Degrees(), Lon: mid.Lng.Degrees()}
}

// RingArea returns the geodesic area enclosed by a ring in square meters,
// independent of its winding.
func RingArea(ring []Point) float64 {
	if len(ring) < 3 {
		return 0
	}

	pts := make([]s2.Point, 0, len(ring))
	for _, p := range ring {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)))
	}
	loop := s2.LoopFromPoints(pts)
	// S2 expects counter-clockwise loops; a clockwise ring would otherwise
	// describe the rest of the sphere
	loop.Normalize()
	return loop.Area() * EarthRadiusMeters * EarthRadiusMeters
}

// PolygonArea returns the outer ring area minus its holes, in square meters
func PolygonArea(paths [][]Point) float64 {
	if len(paths) == 0 {
		return 0
	}
	area := RingArea(paths[0])
	for _, hole := range paths[1:] {
		area -= RingArea(hole)
	}
	if area < 0 {
		return 0
	}
	return area
}

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	SquareMetersPerHa = 10000.0
)
