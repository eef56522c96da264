package editor

import (
	"errors"
	"image"
	"sync"

	"github.com/jengzang/forestwatch-backend-go/internal/classify"
	"github.com/jengzang/forestwatch-backend-go/internal/contour"
	"github.com/jengzang/forestwatch-backend-go/internal/event"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
)

// Tool events
const (
	EventPolygon = "polygon"
	EventEdited  = "edited"
)

// ErrToolInactive is returned when a drawing is completed while the draw
// tool is neither drawing nor editing
var ErrToolInactive = errors.New("draw tool is not active")

// Drawn is a finished ring set from the draw tool or the picker. ID is set
// when an existing polygon was edited.
type Drawn struct {
	ID    string
	Paths [][]models.LatLng
	Type  models.PolygonType
}

// DrawTool collects polygons drawn by hand and edits existing ones
type DrawTool struct {
	mu       sync.Mutex
	drawing  bool
	polytype models.PolygonType
	editing  *models.Polygon
	events   *event.Bus[Drawn]
}

// NewDrawTool creates an idle draw tool
func NewDrawTool() *DrawTool {
	return &DrawTool{events: event.NewBus[Drawn]()}
}

// Events returns the draw tool bus
func (d *DrawTool) Events() *event.Bus[Drawn] { return d.events }

// Start enables drawing of new polygons of the given type
func (d *DrawTool) Start(t models.PolygonType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawing = true
	d.editing = nil
	d.polytype = t
}

// SetPolytype changes the type assigned to new drawings
func (d *DrawTool) SetPolytype(t models.PolygonType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polytype = t
}

// Edit opens p for editing
func (d *DrawTool) Edit(p *models.Polygon) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawing = false
	d.editing = p.Clone()
}

// Editing returns the polygon open for editing
func (d *DrawTool) Editing() (*models.Polygon, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.editing == nil {
		return nil, false
	}
	return d.editing.Clone(), true
}

// Stop leaves drawing and editing
func (d *DrawTool) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawing = false
	d.editing = nil
}

// Complete finishes the current drawing or edit with paths and publishes
// polygon or edited respectively
func (d *DrawTool) Complete(paths [][]models.LatLng) error {
	d.mu.Lock()
	var name string
	var out Drawn
	switch {
	case d.editing != nil:
		name = EventEdited
		out = Drawn{ID: d.editing.ID, Paths: paths, Type: d.editing.Type}
		d.editing = nil
	case d.drawing:
		name = EventPolygon
		out = Drawn{Paths: paths, Type: d.polytype}
	default:
		d.mu.Unlock()
		return ErrToolInactive
	}
	d.mu.Unlock()

	d.events.Emit(name, out)
	return nil
}

// Canvas is the rendered classification overlay the picker reads from
type Canvas interface {
	Mosaic(center tiles.Coord, radius int) (*image.NRGBA, spatial.Pixel)
	Strategy() classify.Strategy
}

// Picker turns clicks on the classification overlay into polygons
type Picker struct {
	canvas  Canvas
	mu      sync.Mutex
	zoom    int
	editing bool
	events  *event.Bus[Drawn]
}

// NewPicker creates a picker reading canvas
func NewPicker(canvas Canvas) *Picker {
	return &Picker{canvas: canvas, events: event.NewBus[Drawn]()}
}

// Events returns the picker bus
func (p *Picker) Events() *event.Bus[Drawn] { return p.events }

// SetZoom sets the tile zoom of the overlay
func (p *Picker) SetZoom(z int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zoom = z
}

// SetEditing enables or disables picking
func (p *Picker) SetEditing(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.editing = on
}

// Editing reports whether picking is enabled
func (p *Picker) Editing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.editing
}

// Pick extracts the classified region under pt from the tile containing it
// and its neighbours. A polygon event is published unless the outcome is
// declined.
func (p *Picker) Pick(pt spatial.Point) contour.Outcome {
	p.mu.Lock()
	zoom, editing := p.zoom, p.editing
	p.mu.Unlock()
	if !editing {
		return contour.Outcome{Declined: true, Reason: "picker disabled"}
	}

	center, offset := tiles.TileAt(pt, zoom)
	canvas, origin := p.canvas.Mosaic(center, 1)
	seed := offset.Add(image.Pt(spatial.TileSize, spatial.TileSize))
	proj := spatial.WebMercator{Zoom: zoom}
	unproject := func(px spatial.Pixel) spatial.Point {
		return proj.PixelToLatLng(spatial.Pixel{X: px.X + origin.X, Y: px.Y + origin.Y})
	}

	out := contour.Extract(canvas, seed, p.canvas.Strategy().Table(), unproject)
	if out.Declined {
		return out
	}
	paths := make([][]models.LatLng, len(out.Paths))
	for i, ring := range out.Paths {
		paths[i] = make([]models.LatLng, len(ring))
		for j, q := range ring {
			paths[i][j] = models.LatLng{Lat: q.Lat, Lng: q.Lon}
		}
	}
	p.events.Emit(EventPolygon, Drawn{Paths: paths, Type: out.Type})
	return out
}
