package spatial

import "math"

// TileSize is the edge of a map tile in pixels
const TileSize = 256

// MaxMercatorLat is the latitude where Web Mercator is clipped
const MaxMercatorLat = 85.05112878

// Pixel is a position in world-pixel space
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WebMercator converts between geographic coordinates and world pixels at an
// integer zoom level, using 256 px tiles.
type WebMercator struct {
	Zoom int
}

// WorldSize returns the width of the world in pixels at the zoom
func (m WebMercator) WorldSize() float64 {
	return TileSize * math.Exp2(float64(m.Zoom))
}

// LatLngToPixel projects a point to world pixels
func (m WebMercator) LatLngToPixel(p Point) Pixel {
	lat := clamp(p.Lat, -MaxMercatorLat, MaxMercatorLat)
	siny := math.Sin(lat * math.Pi / 180)
	size := m.WorldSize()

	return Pixel{
		X: (p.Lon + 180) / 360 * size,
		Y: (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)) * size,
	}
}

// PixelToLatLng unprojects world pixels
func (m WebMercator) PixelToLatLng(px Pixel) Point {
	size := m.WorldSize()
	lon := px.X/size*360 - 180
	n := math.Pi - 2*math.Pi*px.Y/size
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return Point{Lat: lat, Lon: lon}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
