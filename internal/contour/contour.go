package contour

import (
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/jengzang/forestwatch-backend-go/internal/classify"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

const (
	// Tolerance is the Douglas-Peucker tolerance in pixels
	Tolerance = 30.0
	// MinHolePoints is the traced size at or below which a hole is ignored
	MinHolePoints = 10
)

// Outcome is the result of a click on the classified canvas. Declined is set
// when the clicked pixel is not a deforestation or degradation pixel; it is
// not an error.
type Outcome struct {
	Declined bool               `json:"declined"`
	Reason   string             `json:"reason,omitempty"`
	Type     models.PolygonType `json:"type"`
	Paths    [][]spatial.Point  `json:"paths,omitempty"`
	Pixels   [][]image.Point    `json:"-"`
}

// Unproject maps a canvas pixel to a geographic position
type Unproject func(px spatial.Pixel) spatial.Point

// Extract outlines the 4-connected region of the seed's color and returns it
// as an outer ring followed by holes, each open (first point not repeated).
func Extract(canvas *image.NRGBA, seed image.Point, table classify.Table, unproject Unproject) Outcome {
	if !seed.In(canvas.Bounds()) {
		return Outcome{Declined: true, Reason: "outside canvas"}
	}
	b := canvas.Bounds()
	w, h := b.Dx(), b.Dy()
	sx, sy := seed.X-b.Min.X, seed.Y-b.Min.Y

	c := canvas.NRGBAAt(seed.X, seed.Y)
	color := classify.Color{R: c.R, G: c.G, B: c.B}
	var typ models.PolygonType
	switch {
	case c.A == 0:
		return Outcome{Declined: true, Reason: "transparent pixel"}
	case color == table.Deforestation:
		typ = models.PolygonDeforestation
	case color == table.Degradation:
		typ = models.PolygonDegradation
	default:
		return Outcome{Declined: true, Reason: "not a deforestation or degradation pixel"}
	}

	same := func(idx int) bool {
		p := canvas.Pix[(idx/w)*canvas.Stride+(idx%w)*4:]
		return p[3] != 0 && p[0] == color.R && p[1] == color.G && p[2] == color.B
	}

	comp := fill(w, h, sy*w+sx, same)
	outerPx := trace(w, h, comp)
	holesPx := holes(w, h, comp)

	outer := orb.Ring(toOrb(outerPx))
	orient := closed(outer).Orientation()

	rings := [][]image.Point{simplifyRing(outerPx, true)}
	for _, hole := range holesPx {
		if len(hole) <= MinHolePoints {
			continue
		}
		if closed(orb.Ring(toOrb(hole))).Orientation() == orient {
			reverse(hole)
		}
		if s := simplifyRing(hole, false); s != nil {
			rings = append(rings, s)
		}
	}

	out := Outcome{Type: typ, Pixels: rings}
	for _, ring := range rings {
		path := make([]spatial.Point, len(ring))
		for i, p := range ring {
			path[i] = unproject(spatial.Pixel{X: float64(p.X + b.Min.X), Y: float64(p.Y + b.Min.Y)})
		}
		out.Paths = append(out.Paths, path)
	}
	return out
}

// fill marks the 4-connected component of start whose pixels satisfy member
func fill(w, h, start int, member func(idx int) bool) []bool {
	in := make([]bool, w*h)
	visited := make([]bool, w*h)
	stack := []int{start}
	visited[start] = true
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if !member(cur) {
			continue
		}
		in[cur] = true
		x, y := cur%w, cur/w
		if x > 0 && !visited[cur-1] {
			visited[cur-1] = true
			stack = append(stack, cur-1)
		}
		if x+1 < w && !visited[cur+1] {
			visited[cur+1] = true
			stack = append(stack, cur+1)
		}
		if y > 0 && !visited[cur-w] {
			visited[cur-w] = true
			stack = append(stack, cur-w)
		}
		if y+1 < h && !visited[cur+w] {
			visited[cur+w] = true
			stack = append(stack, cur+w)
		}
	}
	return in
}

// holes returns the traced boundary of every region not in comp that cannot
// reach the canvas edge, in scan order of their first pixel
func holes(w, h int, comp []bool) [][]image.Point {
	// outside: everything reachable from the edge without crossing comp
	outside := make([]bool, w*h)
	var stack []int
	push := func(idx int) {
		if !comp[idx] && !outside[idx] {
			outside[idx] = true
			stack = append(stack, idx)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		x, y := cur%w, cur/w
		if x > 0 {
			push(cur - 1)
		}
		if x+1 < w {
			push(cur + 1)
		}
		if y > 0 {
			push(cur - w)
		}
		if y+1 < h {
			push(cur + w)
		}
	}

	enclosed := func(idx int) bool { return !comp[idx] && !outside[idx] }
	seen := make([]bool, w*h)
	var out [][]image.Point
	for idx := 0; idx < w*h; idx++ {
		if seen[idx] || !enclosed(idx) {
			continue
		}
		region := fill(w, h, idx, enclosed)
		for i, in := range region {
			if in {
				seen[i] = true
			}
		}
		out = append(out, trace(w, h, region))
	}
	return out
}

// Moore neighbourhood, clockwise in image coordinates starting east
var (
	ndx = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	ndy = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

func dirIndex(dx, dy int) int {
	for i := range 8 {
		if ndx[i] == dx && ndy[i] == dy {
			return i
		}
	}
	return 0
}

// trace follows the boundary of the marked region with Moore-neighbour
// tracing, starting at its top-left pixel. The loop ends when the start
// pixel is about to be left the same way it was the first time.
func trace(w, h int, region []bool) []image.Point {
	in := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && region[y*w+x]
	}

	start := -1
	for idx, ok := range region {
		if ok {
			start = idx
			break
		}
	}
	if start < 0 {
		return nil
	}

	s := image.Pt(start%w, start/w)
	cur, back := s, image.Pt(s.X-1, s.Y)
	pts := []image.Point{s}
	limit := 4*w*h + 8
	for steps := 0; steps < limit; steps++ {
		d := dirIndex(back.X-cur.X, back.Y-cur.Y)
		next, nextBack, found := image.Point{}, image.Point{}, false
		prev := back
		for k := 1; k <= 8; k++ {
			i := (d + k) % 8
			p := image.Pt(cur.X+ndx[i], cur.Y+ndy[i])
			if in(p.X, p.Y) {
				next, nextBack, found = p, prev, true
				break
			}
			prev = p
		}
		if !found {
			break
		}
		if cur == s && len(pts) > 1 && next == pts[1] {
			break
		}
		cur, back = next, nextBack
		pts = append(pts, cur)
	}
	if len(pts) > 1 && pts[len(pts)-1] == pts[0] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// simplifyRing runs Douglas-Peucker on the closed ring. A result with fewer
// than three distinct points keeps the input for the outer ring and drops a
// hole (nil).
func simplifyRing(ring []image.Point, outer bool) []image.Point {
	if len(ring) < 3 {
		if outer {
			return ring
		}
		return nil
	}
	ls := orb.LineString(closed(orb.Ring(toOrb(ring))))
	simplified, ok := simplify.DouglasPeucker(Tolerance).Simplify(ls.Clone()).(orb.LineString)
	if !ok || len(simplified) < 4 {
		if outer {
			return ring
		}
		return nil
	}
	out := make([]image.Point, 0, len(simplified)-1)
	for _, p := range simplified[:len(simplified)-1] {
		out = append(out, image.Pt(int(p[0]), int(p[1])))
	}
	return out
}

func toOrb(pts []image.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{float64(p.X), float64(p.Y)}
	}
	return out
}

func closed(r orb.Ring) orb.Ring {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

func reverse(pts []image.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
