package grid

import (
	"math"

	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

// Projection maps between geographic and world-pixel coordinates at the
// map's current zoom
type Projection interface {
	LatLngToPixel(p spatial.Point) spatial.Pixel
	PixelToLatLng(px spatial.Pixel) spatial.Point
}

// DefaultWorldBounds covers the monitored region
var DefaultWorldBounds = spatial.Bounds{
	SW: spatial.Point{Lat: -18.47960905583197, Lon: -74.0478515625},
	NE: spatial.Point{Lat: 5.462895560209557, Lon: -43.43994140625},
}

// Rect is a normalized cell rectangle in world pixels
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Index converts cell addresses to pixel rectangles and geographic bounds.
// Its projection is fixed at construction; callers on other map zooms go
// through geographic coordinates.
type Index struct {
	world spatial.Bounds
	proj  Projection
}

// NewIndex creates an index over world using proj
func NewIndex(world spatial.Bounds, proj Projection) *Index {
	return &Index{world: world, proj: proj}
}

// World returns the configured world bounds
func (ix *Index) World() spatial.Bounds {
	return ix.world
}

type frect struct {
	x, y, w, h float64
}

// raw returns the unnormalized pixel rectangle of a cell
func (ix *Index) raw(x, y, z int) frect {
	ne := ix.proj.LatLngToPixel(ix.world.NE)
	sw := ix.proj.LatLngToPixel(ix.world.SW)
	sp := float64(span(z))
	cw := (ne.X - sw.X) / sp
	ch := (sw.Y - ne.Y) / sp

	return frect{
		x: sw.X + float64(x)*cw,
		y: ne.Y + float64(y)*ch,
		w: cw,
		h: ch,
	}
}

// CellPosition returns the cell rectangle, floored and with width and height
// rounded down to multiples of 5 pixels so neighbouring cells do not leave
// sub-pixel seams
func (ix *Index) CellPosition(x, y, z int) Rect {
	r := ix.raw(x, y, z)
	return Rect{
		X:      int(math.Floor(r.x)),
		Y:      int(math.Floor(r.y)),
		Width:  int(math.Floor(r.w/5)) * 5,
		Height: int(math.Floor(r.h/5)) * 5,
	}
}

// CellBounds returns the geographic box of the normalized cell rectangle
func (ix *Index) CellBounds(x, y, z int) spatial.Bounds {
	p := ix.CellPosition(x, y, z)
	return spatial.Bounds{
		SW: ix.PixelToLatLng(spatial.Pixel{X: float64(p.X), Y: float64(p.Y + p.Height)}),
		NE: ix.PixelToLatLng(spatial.Pixel{X: float64(p.X + p.Width), Y: float64(p.Y)}),
	}
}

// PixelToLatLng unprojects a world pixel
func (ix *Index) PixelToLatLng(px spatial.Pixel) spatial.Point {
	return ix.proj.PixelToLatLng(px)
}

// LatLngToPixel projects a point to world pixels
func (ix *Index) LatLngToPixel(p spatial.Point) spatial.Pixel {
	return ix.proj.LatLngToPixel(p)
}

// CellAt returns the level-z cell containing p
func (ix *Index) CellAt(p spatial.Point, z int) (Address, bool) {
	px := ix.LatLngToPixel(p)
	origin := ix.raw(0, 0, z)
	if origin.w <= 0 || origin.h <= 0 {
		return Address{}, false
	}
	a := Address{
		Z: z,
		X: int(math.Floor((px.X - origin.x) / origin.w)),
		Y: int(math.Floor((px.Y - origin.y) / origin.h)),
	}
	return a, a.Valid()
}

// VisibleCells lists the level-z cells intersecting a world-pixel viewport
func (ix *Index) VisibleCells(viewport Rect, z int) []Address {
	origin := ix.raw(0, 0, z)
	if origin.w <= 0 || origin.h <= 0 {
		return nil
	}
	n := span(z)
	clampIdx := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > n-1 {
			return n - 1
		}
		return v
	}

	x0 := int(math.Floor((float64(viewport.X) - origin.x) / origin.w))
	x1 := int(math.Floor((float64(viewport.X+viewport.Width) - origin.x) / origin.w))
	y0 := int(math.Floor((float64(viewport.Y) - origin.y) / origin.h))
	y1 := int(math.Floor((float64(viewport.Y+viewport.Height) - origin.y) / origin.h))
	if x1 < 0 || y1 < 0 || x0 > n-1 || y0 > n-1 {
		return nil
	}

	var out []Address
	for y := clampIdx(y0); y <= clampIdx(y1); y++ {
		for x := clampIdx(x0); x <= clampIdx(x1); x++ {
			out = append(out, Address{Z: z, X: x, Y: y})
		}
	}
	return out
}

// VisibleCellsIn lists the level-z cells intersecting a geographic viewport
func (ix *Index) VisibleCellsIn(viewport spatial.Bounds, z int) []Address {
	nw := ix.LatLngToPixel(spatial.Point{Lat: viewport.NE.Lat, Lon: viewport.SW.Lon})
	se := ix.LatLngToPixel(spatial.Point{Lat: viewport.SW.Lat, Lon: viewport.NE.Lon})
	if se.X < nw.X || se.Y < nw.Y {
		return nil
	}
	x, y := math.Floor(nw.X), math.Floor(nw.Y)
	return ix.VisibleCells(Rect{
		X:      int(x),
		Y:      int(y),
		Width:  int(math.Ceil(se.X - x)),
		Height: int(math.Ceil(se.Y - y)),
	}, z)
}

// Occlusion world box used to shade everything outside the current cell
const (
	occlusionX = 179.5
	occlusionY = 85.0
)

// VisibleZone returns the shading polygon that darkens the map outside
// bounds: the world box as outer ring and the cell box as a hole
func VisibleZone(bounds spatial.Bounds) [][]spatial.Point {
	world := []spatial.Point{
		{Lat: -occlusionY, Lon: -occlusionX},
		{Lat: occlusionY, Lon: -occlusionX},
		{Lat: occlusionY, Lon: occlusionX},
		{Lat: -occlusionY, Lon: occlusionX},
	}
	cell := []spatial.Point{
		{Lat: bounds.SW.Lat, Lon: bounds.SW.Lon},
		{Lat: bounds.SW.Lat, Lon: bounds.NE.Lon},
		{Lat: bounds.NE.Lat, Lon: bounds.NE.Lon},
		{Lat: bounds.NE.Lat, Lon: bounds.SW.Lon},
	}
	return [][]spatial.Point{world, cell}
}
