package contour

import (
	"image"
	"image/color"
	"reflect"
	"testing"

	"github.com/jengzang/forestwatch-backend-go/internal/classify"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

var table = classify.SADTable

func paint(img *image.NRGBA, r image.Rectangle, c classify.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
}

func newCanvas() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	paint(img, img.Bounds(), table.Forest)
	return img
}

// flat maps pixels to degrees with y pointing north
func flat(px spatial.Pixel) spatial.Point {
	return spatial.Point{Lat: -px.Y, Lon: px.X}
}

func TestExtractSquare(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(20, 20, 180, 180), table.Deforestation)

	out := Extract(img, image.Pt(100, 100), table, flat)
	if out.Declined {
		t.Fatalf("declined: %s", out.Reason)
	}
	if out.Type != models.PolygonDeforestation {
		t.Fatalf("type = %v, want deforestation", out.Type)
	}
	if len(out.Paths) != 1 {
		t.Fatalf("rings = %d, want 1", len(out.Paths))
	}
	if n := len(out.Paths[0]); n != 4 {
		t.Fatalf("outer ring has %d points after simplification, want 4 corners", n)
	}
	for _, p := range out.Pixels[0] {
		if p.X < 20 || p.X > 179 || p.Y < 20 || p.Y > 179 {
			t.Fatalf("point %v outside the blob", p)
		}
	}
}

func TestExtractDegradationType(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(50, 50, 120, 120), table.Degradation)
	out := Extract(img, image.Pt(60, 60), table, flat)
	if out.Declined || out.Type != models.PolygonDegradation {
		t.Fatalf("outcome = %+v, want degradation polygon", out)
	}
}

func TestExtractDeclined(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(20, 20, 60, 60), table.Deforestation)
	img.SetNRGBA(150, 150, color.NRGBA{})

	tests := []struct {
		name string
		seed image.Point
	}{
		{"forest", image.Pt(100, 100)},
		{"transparent", image.Pt(150, 150)},
		{"outside", image.Pt(500, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := Extract(img, tt.seed, table, flat); !out.Declined {
				t.Fatalf("expected declined, got %+v", out)
			}
		})
	}
}

func TestHoleWindingOpposite(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(20, 20, 180, 180), table.Deforestation)
	paint(img, image.Rect(60, 60, 140, 140), table.Forest)

	out := Extract(img, image.Pt(30, 30), table, flat)
	if len(out.Paths) != 2 {
		t.Fatalf("rings = %d, want outer and one hole", len(out.Paths))
	}
	outer := spatial.SignedArea(out.Paths[0])
	hole := spatial.SignedArea(out.Paths[1])
	if outer == 0 || hole == 0 || (outer > 0) == (hole > 0) {
		t.Fatalf("outer area %f and hole area %f must have opposite signs", outer, hole)
	}
}

func TestSmallHoleDropped(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(20, 20, 180, 180), table.Deforestation)
	paint(img, image.Rect(100, 100, 102, 102), table.Forest)

	out := Extract(img, image.Pt(30, 30), table, flat)
	if len(out.Paths) != 1 {
		t.Fatalf("rings = %d, small hole must be dropped", len(out.Paths))
	}
}

func TestHoleTouchingEdgeIsNotAHole(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(0, 0, 200, 200), table.Deforestation)
	// a notch open to the canvas edge
	paint(img, image.Rect(0, 80, 120, 120), table.Forest)

	out := Extract(img, image.Pt(10, 10), table, flat)
	if len(out.Paths) != 1 {
		t.Fatalf("rings = %d, want only the outer ring", len(out.Paths))
	}
}

func TestExtractDeterministic(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(20, 20, 180, 180), table.Deforestation)
	paint(img, image.Rect(60, 60, 140, 140), table.Forest)
	paint(img, image.Rect(150, 30, 170, 170), table.Degradation)

	a := Extract(img, image.Pt(30, 30), table, flat)
	b := Extract(img, image.Pt(30, 30), table, flat)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("extraction is not deterministic")
	}
}

func TestTinyBlobKeepsUnsimplifiedRing(t *testing.T) {
	img := newCanvas()
	paint(img, image.Rect(10, 10, 14, 14), table.Deforestation)

	out := Extract(img, image.Pt(11, 11), table, flat)
	if out.Declined || len(out.Paths) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if n := len(out.Paths[0]); n < 3 {
		t.Fatalf("outer ring collapsed to %d points", n)
	}
}
