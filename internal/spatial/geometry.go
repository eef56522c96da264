package spatial

import (
	"math"
)

// Point represents a 2D point with latitude and longitude
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Bounds is a geographic box given by its south-west and north-east corners
type Bounds struct {
	SW Point `json:"sw"`
	NE Point `json:"ne"`
}

// Contains reports whether p lies inside the box (edges inclusive)
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.SW.Lat && p.Lat <= b.NE.Lat &&
		p.Lon >= b.SW.Lon && p.Lon <= b.NE.Lon
}

// Center returns the geodesic midpoint of the box diagonal
func (b Bounds) Center() Point {
	return Midpoint(b.SW, b.NE)
}

// Centroid calculates the arithmetic centroid of a set of points
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return Point{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// BoundingBox calculates the bounding box of a set of points
func BoundingBox(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{SW: points[0], NE: points[0]}
	for _, p := range points[1:] {
		b.SW.Lat = math.Min(b.SW.Lat, p.Lat)
		b.SW.Lon = math.Min(b.SW.Lon, p.Lon)
		b.NE.Lat = math.Max(b.NE.Lat, p.Lat)
		b.NE.Lon = math.Max(b.NE.Lon, p.Lon)
	}
	return b
}

// SignedArea returns the planar shoelace area of a ring with longitude as x
// and latitude as y. Counter-clockwise rings are positive.
func SignedArea(ring []Point) float64 {
	if len(ring) < 3 {
		return 0
	}

	var sum float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i].Lon*ring[j].Lat - ring[j].Lon*ring[i].Lat
	}
	return sum / 2
}

// PointInPolygon checks if a point is inside a ring using ray casting
func PointInPolygon(point Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1

	for i := 0; i < len(polygon); i++ {
		if ((polygon[i].Lat > point.Lat) != (polygon[j].Lat > point.Lat)) &&
			(point.Lon < (polygon[j].Lon-polygon[i].Lon)*(point.Lat-polygon[i].Lat)/(polygon[j].Lat-polygon[i].Lat)+polygon[i].Lon) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// PointInPaths checks a point against an outer ring and its holes
func PointInPaths(point Point, paths [][]Point) bool {
	if len(paths) == 0 || !PointInPolygon(point, paths[0]) {
		return false
	}
	for _, hole := range paths[1:] {
		if PointInPolygon(point, hole) {
			return false
		}
	}
	return true
}
